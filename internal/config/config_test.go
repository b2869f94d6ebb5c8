package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no stray config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "csv", cfg.Source.Format)
	assert.Equal(t, ".", cfg.Source.Path)
	assert.Equal(t, "public", cfg.Source.Schema)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Equal(t, 15, cfg.Output.IDLength)
	assert.Equal(t, []int{5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60}, cfg.Accessibility.Thresholds)
	assert.False(t, cfg.Accessibility.StrictScale)
	assert.Equal(t, 1, cfg.Accessibility.Concurrency)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "coa_runs.db", cfg.Store.Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
source:
  format: shp
  path: /data/inputs
output:
  format: sqlite
  id_length: 20
accessibility:
  thresholds: [10, 20, 30]
  strict_scale: true
  concurrency: 4
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "shp", cfg.Source.Format)
	assert.Equal(t, "/data/inputs", cfg.Source.Path)
	assert.Equal(t, "sqlite", cfg.Output.Format)
	assert.Equal(t, 20, cfg.Output.IDLength)
	assert.Equal(t, []int{10, 20, 30}, cfg.Accessibility.Thresholds)
	assert.True(t, cfg.Accessibility.StrictScale)
	assert.Equal(t, 4, cfg.Accessibility.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, "coa_runs.db", cfg.Store.Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("output:\n  format: xlsx\n"), 0644))

	t.Setenv("COA_OUTPUT_FORMAT", "postgres")
	t.Setenv("COA_OUTPUT_DATABASE_URL", "postgres://localhost/coa")
	t.Setenv("COA_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Output.Format)
	assert.Equal(t, "postgres://localhost/coa", cfg.Output.DatabaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadInvalidFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("source: [unclosed\n"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	return &Config{
		Source:        SourceConfig{Format: "csv", Path: ".", Schema: "public"},
		Output:        OutputConfig{Format: "csv", IDLength: 15},
		Accessibility: AccessibilityConfig{Thresholds: []int{5, 10, 15}, Concurrency: 1},
		Store:         StoreConfig{Driver: "sqlite", Path: "coa_runs.db"},
		Log:           LogConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "unknown source format",
			mutate: func(c *Config) { c.Source.Format = "gdb" },
			want:   []string{`source.format must be one of [csv xlsx shp sqlite postgres], got "gdb"`},
		},
		{
			name:   "shapefile output is not supported",
			mutate: func(c *Config) { c.Output.Format = "shp" },
			want:   []string{"output.format must be one of"},
		},
		{
			name: "postgres output needs a database url",
			mutate: func(c *Config) {
				c.Output.Format = "postgres"
			},
			want: []string{"output.database_url is required"},
		},
		{
			name: "postgres source needs a database url but no path",
			mutate: func(c *Config) {
				c.Source.Format = "postgres"
				c.Source.Path = ""
			},
			want: []string{"source.database_url is required"},
		},
		{
			name:   "file source needs a path",
			mutate: func(c *Config) { c.Source.Path = "" },
			want:   []string{"source.path is required"},
		},
		{
			name:   "empty thresholds",
			mutate: func(c *Config) { c.Accessibility.Thresholds = nil },
			want:   []string{"accessibility.thresholds must have at least 1 entries"},
		},
		{
			name:   "non-positive threshold",
			mutate: func(c *Config) { c.Accessibility.Thresholds = []int{0, 5} },
			want:   []string{"accessibility.thresholds[0] must be greater than 0"},
		},
		{
			name:   "descending thresholds",
			mutate: func(c *Config) { c.Accessibility.Thresholds = []int{10, 5} },
			want:   []string{"accessibility.thresholds must be strictly ascending"},
		},
		{
			name: "several problems reported together",
			mutate: func(c *Config) {
				c.Accessibility.Concurrency = 0
				c.Output.IDLength = 0
				c.Store.Driver = "postgres"
			},
			want: []string{
				"accessibility.concurrency must be greater than 0",
				"output.id_length must be greater than 0",
				"store.database_url is required",
			},
		},
		{
			name:   "store disabled",
			mutate: func(c *Config) { c.Store = StoreConfig{Driver: "none"} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.want) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.yaml")
	content := `
travel_times:
  - tt_auto2015_taz2010
  - tt_transit2015_taz2010
land_use:
  - lu_jobs2010_taz2010
output: results
thresholds: [15, 30, 45]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"tt_auto2015_taz2010", "tt_transit2015_taz2010"}, m.TravelTimes)
	assert.Equal(t, []string{"lu_jobs2010_taz2010"}, m.LandUse)
	assert.Equal(t, "results", m.Output)
	assert.Equal(t, []int{15, 30, 45}, m.Thresholds)
}

func TestLoadManifest_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("travel_times: []\nland_use: [lu_jobs2010_taz2010]\n"), 0644))

	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "travel_times must have at least 1 entries")
	assert.Contains(t, err.Error(), "output is required")

	_, err = LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "read manifest")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
