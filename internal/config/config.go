// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Input() InputConfig
	Graph() GraphConfig
	Concepts() []ConceptConfig
	Rules() []RuleConfig
	RulesFile() string
	Export() ExportConfig
	Postgres() PostgresConfig
	Neo4j() Neo4jConfig
	S3() S3Config
	Events() EventsConfig
	Metrics() MetricsConfig

	// Input/Export Setters
	SetInputPath(string)
	SetExportDir(string)
	SetExportCompress(bool)

	// Catalog Setter
	SetCatalog(concepts []ConceptConfig, rules []RuleConfig)
}

// Config holds the entire application configuration. Fields are exported so viper can
// decode into them; callers go through the Interface getters.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	InputCfg     InputConfig     `mapstructure:"input" yaml:"input"`
	GraphCfg     GraphConfig     `mapstructure:"graph" yaml:"graph"`
	ConceptsCfg  []ConceptConfig `mapstructure:"concepts" yaml:"concepts"`
	RulesCfg     []RuleConfig    `mapstructure:"rules" yaml:"rules"`
	RulesFileCfg string          `mapstructure:"rules_file" yaml:"rules_file"`
	ExportCfg    ExportConfig    `mapstructure:"export" yaml:"export"`
	PostgresCfg  PostgresConfig  `mapstructure:"postgres" yaml:"postgres"`
	Neo4jCfg     Neo4jConfig     `mapstructure:"neo4j" yaml:"neo4j"`
	S3Cfg        S3Config        `mapstructure:"s3" yaml:"s3"`
	EventsCfg    EventsConfig    `mapstructure:"events" yaml:"events"`
	MetricsCfg   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// Ensures Config implements Interface at compile time.
var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig      { return c.LoggerCfg }
func (c *Config) Input() InputConfig        { return c.InputCfg }
func (c *Config) Graph() GraphConfig        { return c.GraphCfg }
func (c *Config) Concepts() []ConceptConfig { return c.ConceptsCfg }
func (c *Config) Rules() []RuleConfig       { return c.RulesCfg }
func (c *Config) RulesFile() string         { return c.RulesFileCfg }
func (c *Config) Export() ExportConfig      { return c.ExportCfg }
func (c *Config) Postgres() PostgresConfig  { return c.PostgresCfg }
func (c *Config) Neo4j() Neo4jConfig        { return c.Neo4jCfg }
func (c *Config) S3() S3Config              { return c.S3Cfg }
func (c *Config) Events() EventsConfig      { return c.EventsCfg }
func (c *Config) Metrics() MetricsConfig    { return c.MetricsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetInputPath(p string)    { c.InputCfg.Path = p }
func (c *Config) SetExportDir(d string)    { c.ExportCfg.Dir = d }
func (c *Config) SetExportCompress(b bool) { c.ExportCfg.Compress = b }
func (c *Config) SetCatalog(concepts []ConceptConfig, rules []RuleConfig) {
	c.ConceptsCfg = concepts
	c.RulesCfg = rules
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// InputConfig locates the cleaned visit table and maps logical fields onto its headers.
type InputConfig struct {
	Path      string `mapstructure:"path" yaml:"path"`
	Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
	// Columns maps a logical field name (patient_id, visit_time, ...) to a CSV header.
	// Fields not listed fall back to the built-in defaults.
	Columns map[string]string `mapstructure:"columns" yaml:"columns"`
}

// GraphConfig tunes graph construction.
type GraphConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	// BridgeLabelGaps links the visits on either side of a row dropped for a missing
	// label. Off by default, which leaves the temporal chain broken at the gap.
	BridgeLabelGaps bool `mapstructure:"bridge_label_gaps" yaml:"bridge_label_gaps"`
}

// ConceptConfig is one entry of the concept catalog.
type ConceptConfig struct {
	ID   int    `mapstructure:"id" yaml:"id"`
	Name string `mapstructure:"name" yaml:"name"`
}

// RuleConfig is one bridge rule: when Field (raw value) compared with Threshold holds,
// an edge of type Relation is drawn from the Source node to the named Concept.
type RuleConfig struct {
	Name      string  `mapstructure:"name" yaml:"name"`
	Source    string  `mapstructure:"source" yaml:"source"`
	Field     string  `mapstructure:"field" yaml:"field"`
	Op        string  `mapstructure:"op" yaml:"op"`
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
	Concept   string  `mapstructure:"concept" yaml:"concept"`
	Relation  string  `mapstructure:"relation" yaml:"relation"`
}

// ExportConfig controls where and how the two graph forms are written.
type ExportConfig struct {
	Dir        string `mapstructure:"dir" yaml:"dir"`
	TensorFile string `mapstructure:"tensor_file" yaml:"tensor_file"`
	NodesFile  string `mapstructure:"nodes_file" yaml:"nodes_file"`
	EdgesFile  string `mapstructure:"edges_file" yaml:"edges_file"`
	// Compress brotli-compresses the tensor container and appends ".br" to its name.
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// PostgresConfig configures the relational bulk import sink.
type PostgresConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"-"`
	Migrate bool   `mapstructure:"migrate" yaml:"migrate"`
}

// Neo4jConfig configures the property graph bulk import sink.
type Neo4jConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	URI            string `mapstructure:"uri" yaml:"uri"`
	User           string `mapstructure:"user" yaml:"user"`
	Password       string `mapstructure:"password" yaml:"-"`
	Database       string `mapstructure:"database" yaml:"database"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	BatchSize      int    `mapstructure:"batch_size" yaml:"batch_size"`
}

// S3Config configures the artifact upload sink.
type S3Config struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Bucket   string `mapstructure:"bucket" yaml:"bucket"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	Region   string `mapstructure:"region" yaml:"region"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// EventsConfig configures the build notification publisher.
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
}

// MetricsConfig configures the Prometheus textfile output.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// DefaultConcepts is the reference concept catalog.
func DefaultConcepts() []ConceptConfig {
	return []ConceptConfig{
		{ID: 0, Name: "Brain_Atrophy"},
		{ID: 1, Name: "Cognitive_Decline"},
		{ID: 2, Name: "Genetic_Risk_APOE4"},
		{ID: 3, Name: "Amyloid_Positive"},
	}
}

// DefaultRules is the reference bridge rule set. Thresholds apply to raw values.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{Name: "genetic_risk", Source: "patient", Field: "genetic_risk_count", Op: ">", Threshold: 0, Concept: "Genetic_Risk_APOE4", Relation: "has_risk"},
		{Name: "atrophy", Source: "visit", Field: "hippocampal_volume", Op: "<", Threshold: 5600, Concept: "Brain_Atrophy", Relation: "shows_signs_of"},
		{Name: "cognitive_decline", Source: "visit", Field: "cognitive_score_a", Op: "<", Threshold: 24, Concept: "Cognitive_Decline", Relation: "shows_signs_of"},
		{Name: "amyloid_positive", Source: "visit", Field: "biomarker_av45", Op: ">", Threshold: 1.11, Concept: "Amyloid_Positive", Relation: "shows_signs_of"},
	}
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "cohortgraph")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Input --
	v.SetDefault("input.path", "data/processed/tadpole_clean.csv")
	v.SetDefault("input.delimiter", ",")

	// -- Graph --
	v.SetDefault("graph.name", "tadpole")
	v.SetDefault("graph.bridge_label_gaps", false)

	// -- Catalog --
	v.SetDefault("concepts", conceptMaps(DefaultConcepts()))
	v.SetDefault("rules", ruleMaps(DefaultRules()))
	v.SetDefault("rules_file", "")

	// -- Export --
	v.SetDefault("export.dir", "data/processed/graph")
	v.SetDefault("export.tensor_file", "graph.json")
	v.SetDefault("export.nodes_file", "nodes.csv")
	v.SetDefault("export.edges_file", "edges.csv")
	v.SetDefault("export.compress", false)

	// -- Sinks --
	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.migrate", true)
	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.timeout_seconds", 10)
	v.SetDefault("neo4j.batch_size", 1000)
	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.prefix", "cohortgraph")
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.url", "nats://127.0.0.1:4222")
	v.SetDefault("events.subject", "cohortgraph.graph.built")
	v.SetDefault("metrics.textfile_path", "")
}

// conceptMaps and ruleMaps turn the typed defaults into the generic shape viper stores,
// so a config file can replace the lists wholesale.
func conceptMaps(cs []ConceptConfig) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(cs))
	for _, c := range cs {
		out = append(out, map[string]interface{}{"id": c.ID, "name": c.Name})
	}
	return out
}

func ruleMaps(rs []RuleConfig) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rs))
	for _, r := range rs {
		out = append(out, map[string]interface{}{
			"name":      r.Name,
			"source":    r.Source,
			"field":     r.Field,
			"op":        r.Op,
			"threshold": r.Threshold,
			"concept":   r.Concept,
			"relation":  r.Relation,
		})
	}
	return out
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("postgres.url", "COHORTGRAPH_PG_URL")
	_ = v.BindEnv("neo4j.password", "COHORTGRAPH_NEO4J_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the password if Unmarshal didn't pick it up
	if cfg.Neo4jCfg.Enabled && cfg.Neo4jCfg.Password == "" {
		cfg.Neo4jCfg.Password = os.Getenv("COHORTGRAPH_NEO4J_PASSWORD")
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in every filesystem path setting.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.InputCfg.Path, &c.ExportCfg.Dir, &c.RulesFileCfg, &c.LoggerCfg.LogFile, &c.MetricsCfg.TextfilePath} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.InputCfg.Path) == "" {
		return fmt.Errorf("input.path is a required configuration field")
	}
	if len([]rune(c.InputCfg.Delimiter)) != 1 {
		return fmt.Errorf("input.delimiter must be a single character")
	}
	if err := c.ExportCfg.Validate(); err != nil {
		return fmt.Errorf("export configuration invalid: %w", err)
	}
	if err := c.PostgresCfg.Validate(); err != nil {
		return fmt.Errorf("postgres configuration invalid: %w", err)
	}
	if err := c.Neo4jCfg.Validate(); err != nil {
		return fmt.Errorf("neo4j configuration invalid: %w", err)
	}
	if err := c.S3Cfg.Validate(); err != nil {
		return fmt.Errorf("s3 configuration invalid: %w", err)
	}
	if c.EventsCfg.Enabled && (c.EventsCfg.URL == "" || c.EventsCfg.Subject == "") {
		return fmt.Errorf("events.url and events.subject are required when events are enabled")
	}
	return nil
}

// Validate checks the export settings.
func (e *ExportConfig) Validate() error {
	if strings.TrimSpace(e.Dir) == "" {
		return fmt.Errorf("dir is required")
	}
	if e.TensorFile == "" || e.NodesFile == "" || e.EdgesFile == "" {
		return fmt.Errorf("tensor_file, nodes_file, and edges_file are required")
	}
	if e.NodesFile == e.EdgesFile || e.TensorFile == e.NodesFile || e.TensorFile == e.EdgesFile {
		return fmt.Errorf("output file names must be distinct")
	}
	return nil
}

// Validate checks the Postgres sink settings.
func (p *PostgresConfig) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.URL == "" {
		return fmt.Errorf("url is required but not found. Ensure COHORTGRAPH_PG_URL is set")
	}
	return nil
}

// Validate checks the Neo4j sink settings.
func (n *Neo4jConfig) Validate() error {
	if !n.Enabled {
		return nil
	}
	if n.URI == "" {
		return fmt.Errorf("uri is required")
	}
	if n.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be a positive integer")
	}
	if n.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be a positive integer")
	}
	return nil
}

// Validate checks the S3 sink settings.
func (s *S3Config) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.Bucket == "" || s.Region == "" {
		return fmt.Errorf("bucket and region are required")
	}
	return nil
}
