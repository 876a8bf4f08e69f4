package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opqueue/internal/op"
	"github.com/roach88/opqueue/internal/queue"
)

func requireLoadError(t *testing.T, err error, code string) *LoadError {
	t.Helper()
	require.Error(t, err)
	var le *LoadError
	require.True(t, errors.As(err, &le), "want *LoadError, got %T: %v", err, err)
	assert.Equal(t, code, le.Code, le.Error())
	return le
}

func assertFullConfig(t *testing.T, cfg queue.Config) {
	t.Helper()
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 100*time.Millisecond, cfg.Interval)
	assert.Equal(t, 4, cfg.IntervalCap)
	assert.Equal(t, 5*time.Millisecond, cfg.BatchWindow)
	assert.Equal(t, 250*time.Millisecond, cfg.CleanupDelay)
	assert.True(t, cfg.DisableBatching)

	assert.Equal(t, op.DependencyTable{
		op.DataAdd:      {op.StyleInit},
		op.RenderUpdate: {op.DataAdd},
	}, cfg.Dependencies)

	assert.Equal(t, op.RuleTable{
		op.RenderUpdate: {Obsoletes: []op.Category{op.RenderUpdate}, SkipRunning: true, RespectProgress: true},
		op.CameraUpdate: {Obsoletes: []op.Category{op.CameraUpdate}},
	}, cfg.Rules)
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load("testdata/full.yaml")
	require.NoError(t, err)
	assertFullConfig(t, cfg)
}

func TestLoad_CUE(t *testing.T) {
	cfg, err := Load("testdata/full.cue")
	require.NoError(t, err)
	assertFullConfig(t, cfg)
}

func TestLoad_EmptyYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, queue.DefaultConfig(), cfg)
}

func TestLoad_EmptyTablesAreHonoured(t *testing.T) {
	cfg, err := Load("testdata/empty_tables.yaml")
	require.NoError(t, err)
	require.NotNil(t, cfg.Dependencies)
	require.NotNil(t, cfg.Rules)
	assert.Empty(t, cfg.Dependencies)
	assert.Empty(t, cfg.Rules)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		code string
	}{
		{"missing file", "testdata/nope.yaml", ErrCodeNotFound},
		{"unsupported extension", "testdata/full.toml", ErrCodeFormat},
		{"unknown yaml key", "testdata/unknown_key.yaml", ErrCodeParse},
		{"cycle", "testdata/cycle.yaml", ErrCodeCycle},
		{"unknown category in cue", "testdata/bad_category.cue", ErrCodeSchema},
		{"concurrency below bound", "testdata/bad_bounds.cue", ErrCodeSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			requireLoadError(t, err, tt.code)
		})
	}
}

func TestLoad_CycleUnwraps(t *testing.T) {
	_, err := Load("testdata/cycle.yaml")
	require.Error(t, err)
	assert.True(t, op.IsCycleError(err))
	assert.Contains(t, err.Error(), "testdata/cycle.yaml")
}

func TestParseCUE_ReportsPosition(t *testing.T) {
	_, err := ParseCUE([]byte("concurrency: 0\n"), "settings.cue")
	le := requireLoadError(t, err, ErrCodeSchema)
	require.True(t, le.Pos.IsValid())
	assert.Contains(t, le.Message, "concurrency")
}

func TestParseCUE_SyntaxError(t *testing.T) {
	_, err := ParseCUE([]byte("concurrency: {\n"), "broken.cue")
	requireLoadError(t, err, ErrCodeParse)
}

func TestParseCUE_RejectsUnknownField(t *testing.T) {
	_, err := ParseCUE([]byte("parallelism: 4\n"), "extra.cue")
	requireLoadError(t, err, ErrCodeSchema)
}

func TestParseYAML_BadDuration(t *testing.T) {
	_, err := ParseYAML([]byte("interval: soon\n"))
	le := requireLoadError(t, err, ErrCodeParse)
	assert.Contains(t, le.Message, "line 1")
}

func TestFileConfig_UnknownCategory(t *testing.T) {
	tests := []struct {
		name string
		file File
	}{
		{"dependent", File{Dependencies: map[string][]string{"mesh": {"data-add"}}}},
		{"dependency", File{Dependencies: map[string][]string{"data-add": {"mesh"}}}},
		{"rule owner", File{Rules: map[string]RuleFile{"mesh": {}}}},
		{"rule target", File{Rules: map[string]RuleFile{"data-add": {Obsoletes: []string{"mesh"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.file.Config()
			le := requireLoadError(t, err, ErrCodeInvalid)
			assert.Contains(t, le.Message, `"mesh"`)
		})
	}
}

func TestFileConfig_OutOfRange(t *testing.T) {
	negative := -1
	_, err := (&File{IntervalCap: &negative}).Config()
	requireLoadError(t, err, ErrCodeInvalid)
}

func TestParse_UnknownFormat(t *testing.T) {
	_, err := Parse([]byte("{}"), Format("toml"), "x.toml")
	requireLoadError(t, err, ErrCodeFormat)
}

func TestSummarize_RoundTripsThroughFile(t *testing.T) {
	cfg, err := Load("testdata/full.yaml")
	require.NoError(t, err)

	summary := Summarize(cfg)
	back, err := summary.Config()
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestSummarize_JSONDurations(t *testing.T) {
	data, err := json.Marshal(Summarize(queue.DefaultConfig()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"batch_window":"1ms"`)
	assert.Contains(t, string(data), `"cleanup_delay":"1s"`)

	var back File
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.BatchWindow)
	assert.Equal(t, Duration(queue.DefaultConfig().BatchWindow), *back.BatchWindow)
}
