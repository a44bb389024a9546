package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Catalog      CatalogConfig      `yaml:"catalog" mapstructure:"catalog"`
	Extract      ExtractConfig      `yaml:"extract" mapstructure:"extract"`
	Optimizer    OptimizerConfig    `yaml:"optimizer" mapstructure:"optimizer"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	OCR          OCRConfig          `yaml:"ocr" mapstructure:"ocr"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Batch        BatchConfig        `yaml:"batch" mapstructure:"batch"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the pattern and performance stores.
type StoreConfig struct {
	Driver         string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL    string `yaml:"database_url" mapstructure:"database_url"`
	PerformanceCap int    `yaml:"performance_cap" mapstructure:"performance_cap"`
}

// CatalogConfig locates the normative catalog.
type CatalogConfig struct {
	Path            string `yaml:"path" mapstructure:"path"`
	DefaultLocation string `yaml:"default_location" mapstructure:"default_location"`
}

// ExtractConfig tunes the entity extractor.
type ExtractConfig struct {
	ContextWindow   int     `yaml:"context_window" mapstructure:"context_window"`
	MaxAmount       float64 `yaml:"max_amount" mapstructure:"max_amount"`
	YearMin         int     `yaml:"year_min" mapstructure:"year_min"`
	YearMax         int     `yaml:"year_max" mapstructure:"year_max"`
	DefaultCurrency string  `yaml:"default_currency" mapstructure:"default_currency"`
	LearnThreshold  float64 `yaml:"learn_threshold" mapstructure:"learn_threshold"`
	DedupDistance   int     `yaml:"dedup_distance" mapstructure:"dedup_distance"`
}

// OptimizerConfig tunes history blending.
type OptimizerConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	SuccessThreshold    float64 `yaml:"success_threshold" mapstructure:"success_threshold"`
}

// OrchestratorConfig tunes the backend chain and confidence fusion.
type OrchestratorConfig struct {
	RunBudgetSecs        int     `yaml:"run_budget_secs" mapstructure:"run_budget_secs"`
	CrossValidationBoost float64 `yaml:"cross_validation_boost" mapstructure:"cross_validation_boost"`
	TableWeight          float64 `yaml:"table_weight" mapstructure:"table_weight"`
	EntityWeight         float64 `yaml:"entity_weight" mapstructure:"entity_weight"`
	CrossWeight          float64 `yaml:"cross_weight" mapstructure:"cross_weight"`
}

// OCRConfig configures the pdftotext and Mistral OCR backends.
type OCRConfig struct {
	PdfToTextPath     string  `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey        string  `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel      string  `yaml:"mistral_model" mapstructure:"mistral_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// LLMConfig configures the optional Anthropic table backend.
type LLMConfig struct {
	AnthropicKey string `yaml:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	Model        string `yaml:"model" mapstructure:"model"`
	MaxTokens    int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("claimcheck")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CLAIMCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "claimcheck.db")
	v.SetDefault("store.performance_cap", 100)
	v.SetDefault("catalog.path", "catalog.yaml")
	v.SetDefault("catalog.default_location", "nacional")
	v.SetDefault("extract.context_window", 80)
	v.SetDefault("extract.max_amount", 10_000_000)
	v.SetDefault("extract.year_min", 1900)
	v.SetDefault("extract.year_max", 2100)
	v.SetDefault("extract.default_currency", "MXN")
	v.SetDefault("extract.learn_threshold", 0.85)
	v.SetDefault("extract.dedup_distance", 40)
	v.SetDefault("optimizer.similarity_threshold", 0.8)
	v.SetDefault("optimizer.success_threshold", 0.7)
	v.SetDefault("orchestrator.run_budget_secs", 180)
	v.SetDefault("orchestrator.cross_validation_boost", 0.15)
	v.SetDefault("orchestrator.table_weight", 0.4)
	v.SetDefault("orchestrator.entity_weight", 0.4)
	v.SetDefault("orchestrator.cross_weight", 0.2)
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("ocr.requests_per_second", 2.0)
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("batch.max_concurrent_documents", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite, postgres or memory", c.Store.Driver))
	}
	if c.Store.PerformanceCap <= 0 {
		errs = append(errs, "store.performance_cap must be > 0")
	}
	if c.Extract.ContextWindow < 0 {
		errs = append(errs, "extract.context_window must be >= 0")
	}
	if c.Extract.MaxAmount <= 0 {
		errs = append(errs, "extract.max_amount must be > 0")
	}
	if c.Extract.YearMax < c.Extract.YearMin {
		errs = append(errs, "extract.year_max must be >= extract.year_min")
	}
	if c.Extract.LearnThreshold < 0 || c.Extract.LearnThreshold > 1 {
		errs = append(errs, "extract.learn_threshold must be between 0 and 1")
	}
	o := c.Orchestrator
	if o.TableWeight < 0 || o.EntityWeight < 0 || o.CrossWeight < 0 {
		errs = append(errs, "orchestrator fusion weights must be >= 0")
	}
	if o.TableWeight+o.EntityWeight+o.CrossWeight <= 0 {
		errs = append(errs, "orchestrator fusion weights must sum to > 0")
	}
	if c.Batch.MaxConcurrentDocuments <= 0 {
		errs = append(errs, "batch.max_concurrent_documents must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
