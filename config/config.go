// Package config carga la configuración del motor y el escenario de mercado
// desde YAML, con un .env opcional y overrides de entorno.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/gasflex/internal/domain"
)

// Config es la configuración completa del binario.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	// Scenario es la ruta al archivo YAML del escenario de mercado.
	Scenario string `yaml:"scenario"`
}

// EngineConfig controla la corrida del motor de convergencia.
type EngineConfig struct {
	// DemandModule selecciona el módulo de demanda por nombre. Obligatorio.
	DemandModule string `yaml:"demand_module"`
	// FlatPricing activa el precio RC plano por (zona, periodo).
	FlatPricing bool `yaml:"flat_pricing"`
	// MaxIterations limita las iteraciones; 0 = sin límite.
	MaxIterations int `yaml:"max_iterations"`
	// Tolerance es la tolerancia relativa del test de convergencia.
	Tolerance float64 `yaml:"convergence_tolerance"`
	// StrictLowerBound convierte la violación de cota inferior en abortiva.
	StrictLowerBound bool `yaml:"strict_lower_bound"`

	// Elasticidades por sector; sin valor, el módulo aplica las suyas.
	// Punteros para poder distinguir "no configurada" de cero (demanda
	// perfectamente inelástica).
	ElasticityEI *float64 `yaml:"elasticity_ei"`
	ElasticityRC *float64 `yaml:"elasticity_rc"`
}

// StorageConfig controla dónde se persisten las corridas.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si
// existe. Las variables de entorno sobreescriben el YAML para las keys que
// correspondan, y la configuración resultante se valida antes de devolverse.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate comprueba lo que los defaults no pueden arreglar. Se llama desde
// Load; está expuesto para configuraciones construidas a mano.
func (c *Config) Validate() error {
	if c.Engine.DemandModule == "" {
		return fmt.Errorf("config.Validate: engine.demand_module: %w", domain.ErrNoDemandModule)
	}
	if c.Engine.MaxIterations < 0 {
		return fmt.Errorf("config.Validate: engine.max_iterations must be >= 0, got %d", c.Engine.MaxIterations)
	}
	if e := c.Engine.ElasticityEI; e != nil && (*e < 0 || *e >= 1) {
		return fmt.Errorf("config.Validate: engine.elasticity_ei must be in [0, 1), got %v", *e)
	}
	if e := c.Engine.ElasticityRC; e != nil && (*e < 0 || *e >= 1) {
		return fmt.Errorf("config.Validate: engine.elasticity_rc must be in [0, 1), got %v", *e)
	}
	return nil
}

// Elasticities traduce los overrides de elasticidad del YAML al mapa que
// consumen los módulos de demanda. Devuelve nil si no hay ninguno, para que
// el módulo aplique sus valores por defecto.
func (e EngineConfig) Elasticities() map[domain.Sector]float64 {
	if e.ElasticityEI == nil && e.ElasticityRC == nil {
		return nil
	}
	out := make(map[domain.Sector]float64, 2)
	if e.ElasticityEI != nil {
		out[domain.SectorEI] = *e.ElasticityEI
	}
	if e.ElasticityRC != nil {
		out[domain.SectorRC] = *e.ElasticityRC
	}
	return out
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Engine.Tolerance <= 0 {
		cfg.Engine.Tolerance = 1e-4
	}
	if cfg.Scenario == "" {
		cfg.Scenario = "scenario.yaml"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "gasflex.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
