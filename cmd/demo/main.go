package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ChuLiYu/frtrace/internal/config"
	"github.com/ChuLiYu/frtrace/internal/logging"
	"github.com/ChuLiYu/frtrace/internal/pipeline"
	"github.com/ChuLiYu/frtrace/internal/report"
	"github.com/ChuLiYu/frtrace/internal/synth"
)

// demo generates a scripted capture, converts it and prints the summary.
//
//	go run ./cmd/demo [clean|damaged] [out-dir]
func main() {
	mode := "clean"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	dir := "demo-out"
	if len(os.Args) > 2 {
		dir = os.Args[2]
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.Init(cfg.Logging, os.Stderr)

	sc := synth.Default()
	sc.Steps = 2000
	switch mode {
	case "clean":
	case "damaged":
		sc.Corrupt = 5
	default:
		fmt.Println("Usage: go run ./cmd/demo <clean|damaged> [out-dir]")
		os.Exit(1)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("Failed to create %s: %v", dir, err)
	}

	events, err := synth.Generate(sc)
	if err != nil {
		log.Fatalf("Failed to generate scenario: %v", err)
	}
	capturePath := filepath.Join(dir, "capture.hex")
	f, err := os.Create(capturePath)
	if err != nil {
		log.Fatalf("Failed to create capture: %v", err)
	}
	if err := synth.Write(f, cfg.Input.Encoding, events, sc.Corrupt); err != nil {
		log.Fatalf("Failed to write capture: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to close capture: %v", err)
	}
	fmt.Printf("✓ Wrote %d events to %s (%d damaged frames)\n", len(events), capturePath, sc.Corrupt)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(pipeline.Config{
		Workers:    cfg.WorkerCount(),
		BufferSize: cfg.Decode.BufferSize,
		Encoding:   cfg.Input.Encoding,
		IncludeRaw: cfg.Output.IncludeRaw,
		Logger:     logger,
	})
	res, err := p.RunFile(ctx, capturePath)
	if err != nil {
		log.Fatalf("Failed to convert capture: %v", err)
	}

	tracePath := filepath.Join(dir, "trace.json")
	if err := res.Document.WriteFile(tracePath, false); err != nil {
		log.Fatalf("Failed to write trace: %v", err)
	}
	fmt.Printf("✓ Wrote %d trace events to %s\n", len(res.Document.TraceEvents), tracePath)
	fmt.Printf("💡 Open it at https://ui.perfetto.dev or chrome://tracing\n\n")

	sum := report.Build(report.NewRunID(), capturePath, res)
	if err := sum.WriteTable(os.Stdout); err != nil {
		log.Fatalf("Failed to print summary: %v", err)
	}

	if mode == "damaged" {
		fmt.Printf("\n⚠️  %d invalid events, %d diagnostics\n", res.Stats.Invalid, res.Stats.Diagnostics)
		fmt.Printf("💡 Damaged frames cost one event each; the rest of the trace is intact.\n")
	}
}
