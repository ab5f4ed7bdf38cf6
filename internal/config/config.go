package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	perrors "pospanel/internal/errors"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline" envconfig:"PIPELINE"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Paths    PathsConfig    `yaml:"paths" envconfig:"PATHS"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/pospanel.log"`
}

// PathsConfig contains file system paths configuration.
type PathsConfig struct {
	InputDir   string `yaml:"input_dir" envconfig:"INPUT_DIR" default:"data/raw"`
	OutputFile string `yaml:"output_file" envconfig:"OUTPUT_FILE" default:"data/panel.csv"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// PipelineConfig is the configuration contract consumed by the registry
// and deriver: per-retailer data contracts, availability flags, fallback
// thresholds, clip bounds, and the global week-number origin.
type PipelineConfig struct {
	RetailerDataContracts       map[string]ContractConfig `yaml:"retailer_data_contracts" validate:"required,min=1,dive"`
	Retailers                   map[string]RetailerFlags  `yaml:"retailers" validate:"required,min=1,dive"`
	VolumeSalesFactorByRetailer map[string]float64        `yaml:"volume_sales_factor_by_retailer"`

	BasePrice      BasePriceConfig `yaml:"base_price"`
	PromoDepthClip ClipBounds      `yaml:"promo_depth_clip"`

	// WeekOrigin anchors Week_Number globally so the same calendar date
	// maps to the same index for every retailer.
	WeekOrigin string `yaml:"week_origin" envconfig:"WEEK_ORIGIN" default:"2021-01-03" validate:"required"`

	// BrandFilter selects the focal-brand rows; PrivateLabelFilter
	// selects store-brand rows for the cross-price control.
	BrandFilter        string `yaml:"brand_filter" envconfig:"BRAND_FILTER" validate:"required"`
	PrivateLabelFilter string `yaml:"private_label_filter" envconfig:"PRIVATE_LABEL_FILTER" default:"PRIVATE LABEL"`

	// AllowPartial lets the run continue past a retailer-fatal error and
	// produce a panel from the remaining retailers.
	AllowPartial bool `yaml:"allow_partial" envconfig:"ALLOW_PARTIAL" default:"false"`

	// MaxConcurrency bounds per-retailer parallelism. 1 means sequential.
	MaxConcurrency int `yaml:"max_concurrency" envconfig:"MAX_CONCURRENCY" default:"1" validate:"min=1"`
}

// RetailerFlags carries the per-retailer availability masks.
type RetailerFlags struct {
	HasPromo      int `yaml:"has_promo" validate:"oneof=0 1"`
	HasCompetitor int `yaml:"has_competitor" validate:"oneof=0 1"`
}

// BasePriceConfig controls the base-price fallback and imputation policy.
type BasePriceConfig struct {
	// ProxyWindowWeeks is the trailing window used to impute a missing
	// week's base price from prior valid weeks.
	ProxyWindowWeeks int `yaml:"proxy_window_weeks" envconfig:"PROXY_WINDOW_WEEKS" default:"4" validate:"min=1"`
	// ImputedWarnFraction is the fraction of imputed weeks above which an
	// imputation warning is surfaced for the retailer.
	ImputedWarnFraction float64 `yaml:"imputed_warn_fraction" envconfig:"IMPUTED_WARN_FRACTION" default:"0.25" validate:"gte=0,lte=1"`
	// MinNonPromotedUnits is the minimum weekly non-promoted unit count
	// before NonPromotedDollars/NonPromotedUnits is trusted as a base
	// price; below it, the vendor's average price per unit is used.
	MinNonPromotedUnits float64 `yaml:"min_non_promoted_units" envconfig:"MIN_NON_PROMOTED_UNITS" default:"20" validate:"gte=0"`
}

// ClipBounds bounds the promotional depth feature.
type ClipBounds struct {
	Lower float64 `yaml:"lower" envconfig:"LOWER" default:"-0.80"`
	Upper float64 `yaml:"upper" envconfig:"UPPER" default:"0.50"`
}

// ContractConfig is the raw (file-level) form of one retailer data
// contract. The registry turns it into a validated RetailerDataContract.
type ContractConfig struct {
	SchemaFamily  string               `yaml:"schema_family" validate:"required,oneof=circana crx"`
	File          string               `yaml:"file" validate:"required"`
	HeaderOffset  int                  `yaml:"header_offset" validate:"gte=0"`
	ProductColumn string               `yaml:"product_column"`
	WeekColumn    string               `yaml:"week_column"`
	Columns       ColumnBindingsConfig `yaml:"columns"`

	// MinNonPromotedUnits overrides the global base-price threshold for
	// this retailer when > 0.
	MinNonPromotedUnits float64 `yaml:"min_non_promoted_units" validate:"gte=0"`
}

// ColumnBindingsConfig maps canonical price/volume/promo concepts to the
// vendor's raw column names. Empty bindings mean the vendor does not
// supply that concept.
type ColumnBindingsConfig struct {
	TotalDollars       string `yaml:"total_dollars"`
	TotalUnits         string `yaml:"total_units"`
	VolumeSales        string `yaml:"volume_sales"`
	BaseDollars        string `yaml:"base_dollars"`
	BaseUnits          string `yaml:"base_units"`
	NonPromotedDollars string `yaml:"non_promoted_dollars"`
	NonPromotedUnits   string `yaml:"non_promoted_units"`
	AvgNetPrice        string `yaml:"avg_net_price"`
	AvgPricePerUnit    string `yaml:"avg_price_per_unit"`
	PLDollars          string `yaml:"pl_dollars"`
	PLUnits            string `yaml:"pl_units"`

	// Decomposed accounting columns, consumed only by the integrity
	// validator when present.
	GrossDollars    string `yaml:"gross_dollars"`
	GrossUnits      string `yaml:"gross_units"`
	CouponDollars   string `yaml:"coupon_dollars"`
	CouponUnits     string `yaml:"coupon_units"`
	RefundDollars   string `yaml:"refund_dollars"`
	RefundUnits     string `yaml:"refund_units"`
	DiscountDollars string `yaml:"discount_dollars"`
	PromotedUnits   string `yaml:"promoted_units"`
}

// OriginDate parses the configured global week-number origin.
func (p PipelineConfig) OriginDate() (time.Time, error) {
	t, err := time.Parse("2006-01-02", p.WeekOrigin)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid week_origin %q: %w", p.WeekOrigin, err)
	}
	return t, nil
}

// MinNonPromotedUnitsFor returns the retailer-specific threshold when
// configured, otherwise the global default.
func (p PipelineConfig) MinNonPromotedUnitsFor(retailer string) float64 {
	if cc, ok := p.RetailerDataContracts[retailer]; ok && cc.MinNonPromotedUnits > 0 {
		return cc.MinNonPromotedUnits
	}
	return p.BasePrice.MinNonPromotedUnits
}

// Load loads configuration from environment variables and a YAML file.
// Environment variables take precedence over file values; defaults fill
// whatever neither supplies. Validation runs eagerly so an incomplete
// configuration is rejected before any file is read.
func Load(configFile string) (*Config, error) {
	var cfg Config

	// Defaults and environment overrides first
	if err := envconfig.Process("POSPANEL", &cfg); err != nil {
		return nil, perrors.NewConfigErrorWithCause("failed to load config from env", err)
	}

	if configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, perrors.NewConfigErrorWithCause(fmt.Sprintf("failed to load config file %s", configFile), err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFileConfig copies file values into cfg wherever the environment
// left the zero value; the contract/retailer maps come only from the file.
func mergeFileConfig(cfg *Config, file *Config) {
	cfg.Pipeline.RetailerDataContracts = file.Pipeline.RetailerDataContracts
	cfg.Pipeline.Retailers = file.Pipeline.Retailers
	cfg.Pipeline.VolumeSalesFactorByRetailer = file.Pipeline.VolumeSalesFactorByRetailer

	mergeString(&cfg.Pipeline.WeekOrigin, file.Pipeline.WeekOrigin, "2021-01-03")
	mergeString(&cfg.Pipeline.BrandFilter, file.Pipeline.BrandFilter, "")
	mergeString(&cfg.Pipeline.PrivateLabelFilter, file.Pipeline.PrivateLabelFilter, "PRIVATE LABEL")
	if !cfg.Pipeline.AllowPartial {
		cfg.Pipeline.AllowPartial = file.Pipeline.AllowPartial
	}
	if cfg.Pipeline.MaxConcurrency <= 1 && file.Pipeline.MaxConcurrency > 1 {
		cfg.Pipeline.MaxConcurrency = file.Pipeline.MaxConcurrency
	}

	if file.Pipeline.BasePrice.ProxyWindowWeeks > 0 {
		cfg.Pipeline.BasePrice.ProxyWindowWeeks = file.Pipeline.BasePrice.ProxyWindowWeeks
	}
	if file.Pipeline.BasePrice.ImputedWarnFraction > 0 {
		cfg.Pipeline.BasePrice.ImputedWarnFraction = file.Pipeline.BasePrice.ImputedWarnFraction
	}
	if file.Pipeline.BasePrice.MinNonPromotedUnits > 0 {
		cfg.Pipeline.BasePrice.MinNonPromotedUnits = file.Pipeline.BasePrice.MinNonPromotedUnits
	}
	if file.Pipeline.PromoDepthClip.Lower != 0 || file.Pipeline.PromoDepthClip.Upper != 0 {
		cfg.Pipeline.PromoDepthClip = file.Pipeline.PromoDepthClip
	}

	mergeString(&cfg.Paths.InputDir, file.Paths.InputDir, "data/raw")
	mergeString(&cfg.Paths.OutputFile, file.Paths.OutputFile, "data/panel.csv")
	mergeString(&cfg.Paths.LogsDir, file.Paths.LogsDir, "logs")
	mergeString(&cfg.Logging.Level, file.Logging.Level, "info")
	mergeString(&cfg.Logging.Format, file.Logging.Format, "json")
	mergeString(&cfg.Logging.Output, file.Logging.Output, "console")
	mergeString(&cfg.Logging.FilePath, file.Logging.FilePath, "logs/pospanel.log")
}

// mergeString overwrites dst with src when dst still holds its default
// (env wins over file for any explicitly set value).
func mergeString(dst *string, src, defaultValue string) {
	if src != "" && (*dst == "" || *dst == defaultValue) {
		*dst = src
	}
}

// Validate rejects an incomplete or inconsistent configuration eagerly.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return perrors.NewConfigErrorWithCause("config validation failed", err)
	}

	if _, err := c.Pipeline.OriginDate(); err != nil {
		return perrors.NewConfigErrorWithCause("config validation failed", err)
	}
	if c.Pipeline.PromoDepthClip.Lower >= c.Pipeline.PromoDepthClip.Upper {
		return perrors.NewConfigError("", fmt.Sprintf(
			"promo_depth_clip lower bound %.2f must be below upper bound %.2f",
			c.Pipeline.PromoDepthClip.Lower, c.Pipeline.PromoDepthClip.Upper))
	}

	// Every contract needs matching retailer flags, and the other way
	// round, so a typo in either map fails fast.
	for retailer := range c.Pipeline.RetailerDataContracts {
		if _, ok := c.Pipeline.Retailers[retailer]; !ok {
			return perrors.NewConfigError(retailer, "retailer has a data contract but no retailers entry")
		}
	}
	for retailer := range c.Pipeline.Retailers {
		if _, ok := c.Pipeline.RetailerDataContracts[retailer]; !ok {
			return perrors.NewConfigError(retailer, "retailer is listed but has no data contract")
		}
	}
	return nil
}
