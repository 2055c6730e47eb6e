package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/frtrace/internal/pipeline"
	"github.com/ChuLiYu/frtrace/internal/schema"
	"github.com/ChuLiYu/frtrace/internal/storage/capture"
	"github.com/ChuLiYu/frtrace/internal/synth"
	"github.com/ChuLiYu/frtrace/pkg/types"
)

func convert(t *testing.T, events ...schema.Event) *pipeline.Result {
	t.Helper()
	raw, err := synth.Encode(events)
	require.NoError(t, err)

	res, err := pipeline.New(pipeline.Config{Logger: zerolog.Nop()}).Run(context.Background(), capture.New(raw))
	require.NoError(t, err)
	return res
}

func ev(kind schema.Kind, ts types.Timestamp, args ...uint64) schema.Event {
	return schema.Make(kind, ts, args...)
}

func sample(t *testing.T) *Summary {
	t.Helper()
	res := convert(t,
		ev(schema.KindTSResolutionNS, 0, 10),
		ev(schema.KindTaskCreated, 0, 1, 2).WithText("sensor"),
		ev(schema.KindTaskCreated, 0, 2, 0).WithText("IDLE"),
		ev(schema.KindTaskIsIdleTask, 0, 2, 0),
		ev(schema.KindQueueCreated, 0, 7, 4),
		ev(schema.KindQueueKind, 0, 7, uint64(types.KindQueue)),
		ev(schema.KindTaskSwitchedIn, 0, 1),
		ev(schema.KindQueueSend, 2, 7, 1),
		ev(schema.KindQueueSend, 3, 7, 2),
		ev(schema.KindCurtaskDelay, 4, 5),
		ev(schema.KindTaskSwitchedIn, 5, 2),
		ev(schema.KindISREnter, 6, 3),
		ev(schema.KindISRExit, 8, 3),
		ev(schema.KindTaskSwitchedIn, 10, 1),
		ev(schema.KindDroppedEvtCnt, 11, 2),
	)
	return Build("run-1", "capture.hex", res)
}

func TestBuild(t *testing.T) {
	s := sample(t)

	assert.Equal(t, SchemaVersion, s.SchemaVersion)
	assert.Equal(t, uint64(10), s.Resolution)
	assert.Equal(t, uint64(110), s.TraceNS)
	assert.Equal(t, 3, s.EventsByKind["task_switched_in"])
	assert.Equal(t, uint64(2), s.Stats.Dropped)

	require.Len(t, s.Tasks, 2)
	sensor := s.Tasks[0]
	assert.Equal(t, "sensor", sensor.Name)
	assert.Equal(t, 2, sensor.Switches)
	assert.Equal(t, int64(2), sensor.Priority)
	assert.Equal(t, uint64(50+10), sensor.StateNS["running"])
	assert.Equal(t, uint64(50), sensor.StateNS["blocked"])
	assert.Equal(t, "running", sensor.Final)
	assert.Equal(t, []string{"idle"}, s.Tasks[1].Flags)
	assert.Equal(t, "ready", s.Tasks[1].Final)

	require.Len(t, s.Interrupts, 1)
	assert.Equal(t, "ISR #3", s.Interrupts[0].Name)
	assert.Equal(t, 1, s.Interrupts[0].Entries)
	assert.Equal(t, uint64(20), s.Interrupts[0].BusyNS)

	require.Len(t, s.Resources, 1)
	assert.Equal(t, "queue", s.Resources[0].Kind)
	assert.Equal(t, uint32(4), s.Resources[0].Capacity)
	assert.Equal(t, int64(2), s.Resources[0].Peak)
}

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewRunID())
}

func TestEncode_UnknownFormat(t *testing.T) {
	err := sample(t).Encode(&bytes.Buffer{}, "toml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWriteFileAndLoad(t *testing.T) {
	s := sample(t)

	for _, name := range []string{"report.yaml", "report.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			format := FormatYAML
			if filepath.Ext(name) == ".json" {
				format = FormatJSON
			}
			require.NoError(t, s.WriteFile(path, format))

			_, err := os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err), "temp file should be renamed")

			back, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, s, back)
		})
	}
}

func TestLoad_Corrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrCorruptedReport)
}

func TestLoad_IncompatibleVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schema_version: 9\nrun_id: x\n"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sample(t).WriteTable(&buf))

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "IDLE [idle]")
	assert.Contains(t, out, "task_switched_in")
	assert.Contains(t, out, "2 events dropped")
}
