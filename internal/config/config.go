package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Analysis    AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Schools     SchoolsConfig    `yaml:"schools" mapstructure:"schools"`
	Settlements SettlementConfig `yaml:"settlements" mapstructure:"settlements"`
	Census      CensusConfig     `yaml:"census" mapstructure:"census"`
	Fetch       FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Output      OutputConfig     `yaml:"output" mapstructure:"output"`
	Valuation   ValuationConfig  `yaml:"valuation" mapstructure:"valuation"`
	Log         LogConfig        `yaml:"log" mapstructure:"log"`
}

// AnalysisConfig configures the demand/supply ratio analysis.
type AnalysisConfig struct {
	Threshold       float64  `yaml:"threshold" mapstructure:"threshold"`
	AgeColumns      []string `yaml:"age_columns" mapstructure:"age_columns"`
	BoundaryPolicy  string   `yaml:"boundary_policy" mapstructure:"boundary_policy"`
	AmbiguityPolicy string   `yaml:"ambiguity_policy" mapstructure:"ambiguity_policy"`
	TargetCRS       string   `yaml:"target_crs" mapstructure:"target_crs"`
}

// SchoolsConfig describes the school point dataset.
type SchoolsConfig struct {
	Path           string   `yaml:"path" mapstructure:"path"`
	URL            string   `yaml:"url" mapstructure:"url"`
	CRS            string   `yaml:"crs" mapstructure:"crs"`
	IDColumn       string   `yaml:"id_column" mapstructure:"id_column"`
	NameColumn     string   `yaml:"name_column" mapstructure:"name_column"`
	XColumn        string   `yaml:"x_column" mapstructure:"x_column"`
	YColumn        string   `yaml:"y_column" mapstructure:"y_column"`
	CapacityColumn string   `yaml:"capacity_column" mapstructure:"capacity_column"`
	ExcludeColumn  string   `yaml:"exclude_column" mapstructure:"exclude_column"`
	ExcludeValues  []string `yaml:"exclude_values" mapstructure:"exclude_values"`
}

// SettlementConfig describes the settlement boundary dataset.
type SettlementConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	URL        string `yaml:"url" mapstructure:"url"`
	CRS        string `yaml:"crs" mapstructure:"crs"`
	IDColumn   string `yaml:"id_column" mapstructure:"id_column"`
	NameColumn string `yaml:"name_column" mapstructure:"name_column"`
}

// CensusConfig describes the small-area statistics table keyed by settlement.
type CensusConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	URL      string `yaml:"url" mapstructure:"url"`
	IDColumn string `yaml:"id_column" mapstructure:"id_column"`
}

// FetchConfig configures remote dataset retrieval.
type FetchConfig struct {
	CacheDir    string `yaml:"cache_dir" mapstructure:"cache_dir"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	Refresh     bool   `yaml:"refresh" mapstructure:"refresh"`
}

// OutputConfig configures where the ratio table and quality report go.
type OutputConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	Format      string `yaml:"format" mapstructure:"format"`
	ReportPath  string `yaml:"report_path" mapstructure:"report_path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// ValuationConfig describes the commercial valuation dataset.
type ValuationConfig struct {
	Path              string   `yaml:"path" mapstructure:"path"`
	URL               string   `yaml:"url" mapstructure:"url"`
	CategoryColumn    string   `yaml:"category_column" mapstructure:"category_column"`
	AreaColumn        string   `yaml:"area_column" mapstructure:"area_column"`
	ValueColumn       string   `yaml:"value_column" mapstructure:"value_column"`
	ExcludeCategories []string `yaml:"exclude_categories" mapstructure:"exclude_categories"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultAgeColumns are the census single-year-of-age columns for ages 5 through 12.
var DefaultAgeColumns = []string{
	"T1_1AGE5T", "T1_1AGE6T", "T1_1AGE7T", "T1_1AGE8T",
	"T1_1AGE9T", "T1_1AGE10T", "T1_1AGE11T", "T1_1AGE12T",
}

// Output formats understood by the export package.
var validFormats = map[string]bool{
	"csv":      true,
	"geojson":  true,
	"xlsx":     true,
	"sqlite":   true,
	"postgres": true,
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SETTLEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("analysis.threshold", 1.6)
	v.SetDefault("analysis.age_columns", DefaultAgeColumns)
	v.SetDefault("analysis.boundary_policy", "exclude")
	v.SetDefault("analysis.ambiguity_policy", "first")
	v.SetDefault("analysis.target_crs", "EPSG:2157")
	v.SetDefault("schools.crs", "EPSG:4326")
	v.SetDefault("schools.id_column", "Roll Number")
	v.SetDefault("schools.name_column", "Official Name")
	v.SetDefault("schools.x_column", "Longitude")
	v.SetDefault("schools.y_column", "Latitude")
	v.SetDefault("schools.capacity_column", "Total Pupils")
	v.SetDefault("settlements.id_column", "GUID")
	v.SetDefault("settlements.name_column", "SETTL_NAME")
	v.SetDefault("census.id_column", "GUID")
	v.SetDefault("fetch.cache_dir", "data")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "settlement-cli/1.0")
	v.SetDefault("output.path", "settlement_ratios.csv")
	v.SetDefault("output.format", "csv")
	v.SetDefault("output.table", "settlement_ratios")
	v.SetDefault("valuation.category_column", "Category")
	v.SetDefault("valuation.area_column", "Area")
	v.SetDefault("valuation.value_column", "Valuation")

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

	return &cfg, nil
}

// Validate checks that the settings required by the given command mode are
// present and consistent. Supported modes are "run", "fetch" and "valuation".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
		if math.IsNaN(c.Analysis.Threshold) || math.IsInf(c.Analysis.Threshold, 0) {
			errs = append(errs, "analysis.threshold must be a finite number")
		}
		if len(c.Analysis.AgeColumns) == 0 {
			errs = append(errs, "analysis.age_columns must not be empty")
		}
		switch c.Analysis.BoundaryPolicy {
		case "exclude", "include":
		default:
			errs = append(errs, fmt.Sprintf("analysis.boundary_policy %q must be exclude or include", c.Analysis.BoundaryPolicy))
		}
		switch c.Analysis.AmbiguityPolicy {
		case "first", "fail":
		default:
			errs = append(errs, fmt.Sprintf("analysis.ambiguity_policy %q must be first or fail", c.Analysis.AmbiguityPolicy))
		}
		if c.Analysis.TargetCRS == "" {
			errs = append(errs, "analysis.target_crs is required")
		}
		if c.Schools.Path == "" && c.Schools.URL == "" {
			errs = append(errs, "schools.path or schools.url is required")
		}
		if c.Settlements.Path == "" && c.Settlements.URL == "" {
			errs = append(errs, "settlements.path or settlements.url is required")
		}
		if !validFormats[c.Output.Format] {
			errs = append(errs, fmt.Sprintf("output.format %q is not supported", c.Output.Format))
		}
		if c.Output.Format == "postgres" && c.Output.DatabaseURL == "" {
			errs = append(errs, "output.database_url is required for postgres output")
		}
	case "fetch":
		if c.Fetch.CacheDir == "" {
			errs = append(errs, "fetch.cache_dir is required")
		}
	case "valuation":
		if c.Valuation.Path == "" && c.Valuation.URL == "" {
			errs = append(errs, "valuation.path or valuation.url is required")
		}
		if c.Valuation.ValueColumn == "" {
			errs = append(errs, "valuation.value_column is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
