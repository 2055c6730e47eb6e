package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/frtrace/internal/emit"
	"github.com/ChuLiYu/frtrace/internal/report"
)

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := BuildCLI()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--log-level", "off"}, args...))

	err := cmd.Execute()
	return stdout.String(), err
}

// synthCapture writes a small scripted capture into a temp dir.
func synthCapture(t *testing.T, extra ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture.hex")
	_, err := run(t, append([]string{"synth", path, "--steps", "150"}, extra...)...)
	require.NoError(t, err)
	return path
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "frtrace", cmd.Use, "Root command should be 'frtrace'")
	assert.Equal(t, Version, cmd.Version)

	// 檢查子命令
	commands := cmd.Commands()
	assert.Len(t, commands, 4, "Should have 4 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Name()] = true
	}

	assert.True(t, commandNames["convert"], "Should have 'convert' command")
	assert.True(t, commandNames["frames"], "Should have 'frames' command")
	assert.True(t, commandNames["inspect"], "Should have 'inspect' command")
	assert.True(t, commandNames["synth"], "Should have 'synth' command")

	// 檢查持久化標誌
	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue, "Empty config path falls back to configs/default.yaml")
}

func TestConvertCommand_Flags(t *testing.T) {
	cmd, _, err := BuildCLI().Find([]string{"convert"})
	require.NoError(t, err)

	for _, name := range []string{"output", "report", "metrics", "pretty", "raw", "encoding", "workers"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "convert should have --%s", name)
	}
	assert.Equal(t, "o", cmd.Flags().Lookup("output").Shorthand)
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestConvert_DefaultOutputPath(t *testing.T) {
	input := synthCapture(t)

	_, err := run(t, "convert", input)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(filepath.Dir(input), "capture.json"))
	require.NoError(t, err)

	var doc emit.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.NotEmpty(t, doc.TraceEvents)
}

func TestConvert_Stdout(t *testing.T) {
	input := synthCapture(t)

	out, err := run(t, "convert", input, "-o", "-", "--raw=false")
	require.NoError(t, err)

	var doc emit.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	for _, e := range doc.TraceEvents {
		if e.PID == emit.PIDRaw {
			assert.Equal(t, "diagnostic", e.Cat, "raw lane disabled, only diagnostics remain")
		}
	}
}

func TestConvert_WorkersDoNotChangeOutput(t *testing.T) {
	input := synthCapture(t, "--corrupt", "2")

	one, err := run(t, "convert", input, "-o", "-", "--workers", "1")
	require.NoError(t, err)
	four, err := run(t, "convert", input, "-o", "-", "--workers", "4")
	require.NoError(t, err)

	assert.Equal(t, one, four)
}

func TestConvert_ReportAndMetrics(t *testing.T) {
	input := synthCapture(t)
	dir := filepath.Dir(input)
	reportPath := filepath.Join(dir, "run.yaml")
	metricsPath := filepath.Join(dir, "run.prom")

	_, err := run(t, "convert", input,
		"-o", filepath.Join(dir, "trace.json"),
		"--report", reportPath,
		"--metrics", metricsPath,
	)
	require.NoError(t, err)

	sum, err := report.Load(reportPath)
	require.NoError(t, err)
	assert.Equal(t, input, sum.Input)
	assert.NotEmpty(t, sum.RunID)
	assert.NotEmpty(t, sum.Tasks)

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "frtrace_frames_total")
}

func TestConvert_MissingCapture(t *testing.T) {
	_, err := run(t, "convert", filepath.Join(t.TempDir(), "missing.hex"))
	assert.Error(t, err)
}

func TestConvert_BadEncodingFlag(t *testing.T) {
	input := synthCapture(t)

	_, err := run(t, "convert", input, "--encoding", "base64")
	assert.Error(t, err)
}

func TestFrames(t *testing.T) {
	input := synthCapture(t, "--encoding", "binary")

	out, err := run(t, "frames", input, "-e", "binary")
	require.NoError(t, err)

	assert.Contains(t, out, "ts_resolution")
	assert.Contains(t, out, "task_switched_in")
}

func TestInspect_Formats(t *testing.T) {
	input := synthCapture(t)

	table, err := run(t, "inspect", input)
	require.NoError(t, err)
	assert.Contains(t, table, "sensor")

	out, err := run(t, "inspect", input, "--format", "yaml")
	require.NoError(t, err)
	var sum report.Summary
	require.NoError(t, yaml.Unmarshal([]byte(out), &sum))
	assert.Equal(t, report.SchemaVersion, sum.SchemaVersion)

	out, err = run(t, "inspect", input, "-f", "json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))
}

func TestInspect_SavedSummary(t *testing.T) {
	input := synthCapture(t)
	reportPath := filepath.Join(filepath.Dir(input), "run.json")

	_, err := run(t, "convert", input, "--report", reportPath)
	require.NoError(t, err)

	out, err := run(t, "inspect", "--summary", reportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "sensor")
}

func TestInspect_NeedsInput(t *testing.T) {
	_, err := run(t, "inspect")
	assert.Error(t, err)
}

func TestSynth_Deterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.hex")
	b := filepath.Join(dir, "b.hex")

	_, err := run(t, "synth", a, "--seed", "7")
	require.NoError(t, err)
	_, err = run(t, "synth", b, "--seed", "7")
	require.NoError(t, err)

	left, err := os.ReadFile(a)
	require.NoError(t, err)
	right, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, left, right)
}

func TestSynth_InvalidScenario(t *testing.T) {
	_, err := run(t, "synth", filepath.Join(t.TempDir(), "x.hex"), "--tasks", "0")
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	input := synthCapture(t)
	dir := filepath.Dir(input)
	configPath := filepath.Join(dir, "frtrace.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte(`
output:
  pretty: true
  include_raw: false
`), 0o644))

	out, err := run(t, "-c", configPath, "convert", input, "-o", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "\n  \"traceEvents\": [")
}

func TestConfigFile_Invalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("decode:\n  workers: -2\n"), 0o644))

	_, err := run(t, "-c", configPath, "synth", filepath.Join(t.TempDir(), "x.hex"))
	assert.Error(t, err)
}

func TestDefaultOutput(t *testing.T) {
	assert.Equal(t, "dir/cap.json", defaultOutput("dir/cap.hex"))
	assert.Equal(t, "cap.json", defaultOutput("cap"))
}
