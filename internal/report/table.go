package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// WriteTable prints the summary as aligned plain-text tables.
func (s *Summary) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "run\t%s\n", s.RunID)
	if s.Input != "" {
		fmt.Fprintf(tw, "input\t%s\n", s.Input)
	}
	fmt.Fprintf(tw, "frames\t%d (%d degenerate)\n", s.Stats.Frames, s.Stats.Degenerate)
	fmt.Fprintf(tw, "events\t%d (%d invalid)\n", s.Stats.Events, s.Stats.Invalid)
	fmt.Fprintf(tw, "dropped\t%d\n", s.Stats.Dropped)
	fmt.Fprintf(tw, "duration\t%s\n", time.Duration(s.TraceNS))
	fmt.Fprintln(tw)

	if len(s.Tasks) > 0 {
		fmt.Fprintln(tw, "TASK\tNAME\tPRIO\tSWITCHES\tRUNNING\tBLOCKED")
		for _, t := range s.Tasks {
			name := t.Name
			if len(t.Flags) > 0 {
				name += " [" + strings.Join(t.Flags, ",") + "]"
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\n",
				t.ID, name, t.Priority, t.Switches,
				time.Duration(t.StateNS["running"]), time.Duration(t.StateNS["blocked"]))
		}
		fmt.Fprintln(tw)
	}

	if len(s.Interrupts) > 0 {
		fmt.Fprintln(tw, "ISR\tNAME\tENTRIES\tBUSY")
		for _, isr := range s.Interrupts {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", isr.ID, isr.Name, isr.Entries, time.Duration(isr.BusyNS))
		}
		fmt.Fprintln(tw)
	}

	if len(s.Resources) > 0 {
		fmt.Fprintln(tw, "QUEUE\tNAME\tKIND\tCAPACITY\tPEAK")
		for _, r := range s.Resources {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", r.ID, r.Name, r.Kind, r.Capacity, r.Peak)
		}
		fmt.Fprintln(tw)
	}

	if len(s.EventsByKind) > 0 {
		kinds := make([]string, 0, len(s.EventsByKind))
		for k := range s.EventsByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)

		fmt.Fprintln(tw, "KIND\tCOUNT")
		for _, k := range kinds {
			fmt.Fprintf(tw, "%s\t%d\n", k, s.EventsByKind[k])
		}
		fmt.Fprintln(tw)
	}

	if len(s.Diagnostics) > 0 {
		fmt.Fprintln(tw, "DIAGNOSTIC\tAT")
		for _, d := range s.Diagnostics {
			fmt.Fprintf(tw, "%s\t%s\n", d.Message, time.Duration(d.TS))
		}
	}

	return tw.Flush()
}
