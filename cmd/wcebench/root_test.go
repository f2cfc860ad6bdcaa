package main

import (
	"bytes"
	"github.com/Borislavv/wcsketch/pkg/sketch"
	"github.com/Borislavv/wcsketch/pkg/snapshot"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

const testConfig = `
sketch:
  variant: fast_exp
  m: 64
bench:
  env: test
  log_level: error
  trials: 3
  elements: 100
  jaccard_steps: 2
  operations: 500
  snapshot:
    format: gzip
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	var out bytes.Buffer
	cmd := BuildRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", path}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestAccuracyCommandPrintsReportAndMetrics(t *testing.T) {
	out, err := execute(t, "accuracy", "--metrics")
	require.NoError(t, err)
	require.Contains(t, out, "VARIANT")
	require.Contains(t, out, "fast_exp")
	require.Contains(t, out, `sketch_adds_total{variant="fast_exp"} 300`)
}

func TestJaccardCommandWritesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.bin")
	out, err := execute(t, "jaccard", "--snapshot", path)
	require.NoError(t, err)
	require.Contains(t, out, "ESTIMATE")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	states, err := snapshot.Decode(data)
	require.NoError(t, err)
	require.Len(t, states, 6) // two sketches per step, steps 0..2
}

func TestThroughputCommand(t *testing.T) {
	out, err := execute(t, "throughput")
	require.NoError(t, err)
	require.Contains(t, out, "ops/s")
}

func TestVariantFlagOverridesConfig(t *testing.T) {
	out, err := execute(t, "accuracy", "--variant", "log_jacc", "--metrics")
	require.NoError(t, err)
	require.Contains(t, out, `sketch_adds_total{variant="log_jacc"} 300`)

	_, err = execute(t, "accuracy", "--variant", "hll")
	require.ErrorIs(t, err, sketch.ErrUnknownVariant)
}

func TestLogLevelFromEnvironment(t *testing.T) {
	t.Setenv(logLevelEnv, "loud")
	_, err := execute(t, "accuracy")
	require.Error(t, err)
}

func TestMissingConfigFails(t *testing.T) {
	cmd := BuildRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "variants"})
	require.Error(t, cmd.Execute())
}
