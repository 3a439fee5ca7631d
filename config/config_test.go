package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"WORK_ROOT", "MAX_CONCURRENT_RUNS", "PARSER_BACKEND", "MESHER_BACKEND", "GMSH_TIMEOUT", "ASPECT_RATIO_LIMIT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "workspace", cfg.WorkRoot)
	assert.Equal(t, 2, cfg.MaxConcurrentRuns)
	assert.Equal(t, BackendGmsh, cfg.ParserBackend)
	assert.Equal(t, 10*time.Minute, cfg.GmshTimeout)
	assert.Equal(t, 50.0, cfg.AspectRatioLimit)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WORK_ROOT", "/srv/runs")
	t.Setenv("MAX_CONCURRENT_RUNS", "8")
	t.Setenv("PARSER_BACKEND", "step")
	t.Setenv("GMSH_TIMEOUT", "90s")
	t.Setenv("S3_BUCKET", "meshes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/runs", cfg.WorkRoot)
	assert.Equal(t, 8, cfg.MaxConcurrentRuns)
	assert.Equal(t, BackendStep, cfg.ParserBackend)
	assert.Equal(t, 90*time.Second, cfg.GmshTimeout)
	assert.Equal(t, "meshes", cfg.S3Bucket)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"MAX_CONCURRENT_RUNS": "many",
		"GMSH_TIMEOUT":        "soon",
		"PARSER_BACKEND":      "occ",
		"MESHER_BACKEND":      "netgen",
		"ASPECT_RATIO_LIMIT":  "-1",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	cfg.LogLevel = "chatty"
	_, err = cfg.NewLogger()
	assert.ErrorContains(t, err, "invalid LOG_LEVEL")
}
