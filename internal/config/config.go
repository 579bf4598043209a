package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	ierr "github.com/instpay/instpay/internal/errors"
)

type Configuration struct {
	Stripe  StripeConfig  `mapstructure:"stripe" validate:"required"`
	Catalog CatalogConfig `mapstructure:"catalog" validate:"required"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type StripeConfig struct {
	SecretKey      string `mapstructure:"secret_key" validate:"required"`
	PublishableKey string `mapstructure:"publishable_key" validate:"required"`
}

type CatalogConfig struct {
	PlansPath     string `mapstructure:"plans_path" validate:"required"`
	LineItemsPath string `mapstructure:"line_items_path" validate:"required"`
	CachePath     string `mapstructure:"cache_path" validate:"required"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// LoadEnv reads the env file for the given deploy environment into the
// process environment. "development" maps to ".env", anything else to
// ".env.<environment>".
func LoadEnv(environment string) error {
	envFile := ".env"
	if environment != "" && environment != "development" {
		envFile = fmt.Sprintf(".env.%s", environment)
	}
	info, err := os.Stat(envFile)
	if err != nil {
		return ierr.NewErrorf("missing env file %q for environment %q", envFile, environment).
			WithHint("Create the env file with STRIPE_SECRET_KEY and STRIPE_PUBLISHABLE_KEY").
			Mark(ierr.ErrValidation)
	}
	if info.IsDir() {
		return ierr.NewErrorf("env file %q for environment %q is a directory", envFile, environment).
			Mark(ierr.ErrValidation)
	}
	return godotenv.Load(envFile)
}

// NewConfig builds the configuration from config files and environment
// variables. STRIPE_SECRET_KEY and STRIPE_PUBLISHABLE_KEY are honored
// directly for compatibility with standard Stripe tooling.
func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/instpay")

	v.SetEnvPrefix("INSTPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	// Conventional Stripe variable names take precedence over the prefix
	_ = v.BindEnv("stripe.secret_key", "STRIPE_SECRET_KEY", "INSTPAY_STRIPE_SECRET_KEY")
	_ = v.BindEnv("stripe.publishable_key", "STRIPE_PUBLISHABLE_KEY", "INSTPAY_STRIPE_PUBLISHABLE_KEY")

	v.SetDefault("catalog.plans_path", "_instpay/plans.json")
	v.SetDefault("catalog.line_items_path", "_instpay/line_items.json")
	v.SetDefault("catalog.cache_path", "_instpay/cache/stripe_plans.json")
	v.SetDefault("logging.level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !ierr.As(err, &notFound) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Stripe secret and publishable keys must be configured").
			Mark(ierr.ErrValidation)
	}

	return &config, nil
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}
