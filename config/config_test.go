package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gasflex/config"
	"github.com/alejandrodnm/gasflex/internal/domain"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
engine:
  demand_module: constant_elasticity
`

func TestLoad_Defaults(t *testing.T) {
	// Neutralizar overrides de entorno que pueda traer el runner.
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := config.Load(writeFile(t, "config.yaml", minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "constant_elasticity", cfg.Engine.DemandModule)
	assert.False(t, cfg.Engine.FlatPricing)
	assert.Equal(t, 0, cfg.Engine.MaxIterations)
	assert.Equal(t, 1e-4, cfg.Engine.Tolerance)
	assert.False(t, cfg.Engine.StrictLowerBound)
	assert.Nil(t, cfg.Engine.Elasticities())
	assert.Equal(t, "scenario.yaml", cfg.Scenario)
	assert.Equal(t, "gasflex.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_FullFile(t *testing.T) {
	body := `
engine:
  demand_module: constant_elasticity
  flat_pricing: true
  max_iterations: 40
  convergence_tolerance: 1e-6
  strict_lower_bound: true
  elasticity_ei: 0.0
  elasticity_rc: 0.2
storage:
  dsn: ":memory:"
log:
  level: debug
  format: json
scenario: testdata/two-zones.yaml
`
	cfg, err := config.Load(writeFile(t, "config.yaml", body))
	require.NoError(t, err)

	assert.True(t, cfg.Engine.FlatPricing)
	assert.Equal(t, 40, cfg.Engine.MaxIterations)
	assert.Equal(t, 1e-6, cfg.Engine.Tolerance)
	assert.True(t, cfg.Engine.StrictLowerBound)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "testdata/two-zones.yaml", cfg.Scenario)

	// elasticity_ei: 0.0 configurada debe sobrevivir como cero explícito,
	// no confundirse con "sin configurar".
	el := cfg.Engine.Elasticities()
	require.Contains(t, el, domain.SectorEI)
	assert.Equal(t, 0.0, el[domain.SectorEI])
	assert.Equal(t, 0.2, el[domain.SectorRC])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := config.Load(writeFile(t, "config.yaml", minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.Load: read")
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := config.Load(writeFile(t, "config.yaml", "engine: [not a map"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse YAML")
}

func TestLoad_RequiresDemandModule(t *testing.T) {
	_, err := config.Load(writeFile(t, "config.yaml", "engine:\n  max_iterations: 5\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoDemandModule)
}

func TestLoad_RejectsBadElasticity(t *testing.T) {
	body := minimalConfig + "  elasticity_rc: 1.0\n"
	_, err := config.Load(writeFile(t, "config.yaml", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "elasticity_rc")
}

func TestLoad_RejectsNegativeMaxIterations(t *testing.T) {
	body := minimalConfig + "  max_iterations: -1\n"
	_, err := config.Load(writeFile(t, "config.yaml", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_iterations")
}
