package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`
	Server        struct {
		Addr            string        `mapstructure:"addr"`
		PublicURL       string        `mapstructure:"public_url"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
	DB struct {
		Driver   string `mapstructure:"driver"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"db"`
	Auth struct {
		OktaDomain      string `mapstructure:"okta_domain"`
		ClientID        string `mapstructure:"client_id"`
		ClientSecret    string `mapstructure:"client_secret"`
		RedirectURL     string `mapstructure:"redirect_url"`
		SwaggerClientID string `mapstructure:"swagger_client_id"`
	} `mapstructure:"auth"`
	HubSpot struct {
		BaseURL      string        `mapstructure:"base_url"`
		AccessToken  string        `mapstructure:"access_token"`
		PortalID     int64         `mapstructure:"portal_id"`
		ClientSecret string        `mapstructure:"client_secret"`
		Timeout      time.Duration `mapstructure:"timeout"`
	} `mapstructure:"hubspot"`
	Backup struct {
		Enabled  bool   `mapstructure:"enabled"`
		Schedule string `mapstructure:"schedule"`
	} `mapstructure:"backup"`
	Compliance struct {
		StaleBackupDays int `mapstructure:"stale_backup_days"`
		TargetScore     int `mapstructure:"target_score"`
	} `mapstructure:"compliance"`
	Stats struct {
		RecentActivityWindow time.Duration `mapstructure:"recent_activity_window"`
	} `mapstructure:"stats"`
	Billing struct {
		URL         string         `mapstructure:"url"`
		DefaultPlan string         `mapstructure:"default_plan"`
		Plans       map[string]int `mapstructure:"plans"`
	} `mapstructure:"billing"`
}

// IsDev reports whether the service runs in the DEV environment.
func (c *Config) IsDev() bool {
	return strings.ToUpper(c.Environment) == "DEV"
}

// DSN builds the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "PROD")
	v.SetDefault("dev_mode_bypass", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "workflowguard")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "workflowguard")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 10)

	v.SetDefault("auth.okta_domain", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.redirect_url", "")
	v.SetDefault("auth.swagger_client_id", "")

	v.SetDefault("hubspot.base_url", "https://api.hubapi.com")
	v.SetDefault("hubspot.access_token", "")
	v.SetDefault("hubspot.portal_id", 0)
	v.SetDefault("hubspot.client_secret", "")
	v.SetDefault("hubspot.timeout", 10*time.Second)

	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.schedule", "0 2 * * *")

	v.SetDefault("compliance.stale_backup_days", 7)
	v.SetDefault("compliance.target_score", 80)

	v.SetDefault("stats.recent_activity_window", 24*time.Hour)

	v.SetDefault("billing.url", "")
	v.SetDefault("billing.default_plan", "starter")
	v.SetDefault("billing.plans", map[string]int{
		"starter":      5,
		"professional": 25,
		"enterprise":   -1,
	})
}

// LoadConfig loads the configuration from a file and the environment.
// An empty path searches ./config.yaml and ./config/config.yaml; a missing
// file is not an error since every key has a default.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("WFG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// normalize OKTA issuer url (strip trailing slash if any)
	config.Auth.OktaDomain = normalizeOktaIssuer(config.Auth.OktaDomain)
	config.HubSpot.BaseURL = strings.TrimRight(strings.TrimSpace(config.HubSpot.BaseURL), "/")

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the values that cannot be caught by decoding alone.
func (c *Config) Validate() error {
	var errs []error

	switch c.DB.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("db.driver must be postgres or memory, got %q", c.DB.Driver))
	}
	if c.Backup.Enabled {
		if _, err := cron.ParseStandard(c.Backup.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("backup.schedule %q: %w", c.Backup.Schedule, err))
		}
	}
	if c.Stats.RecentActivityWindow <= 0 {
		errs = append(errs, errors.New("stats.recent_activity_window must be positive"))
	}
	if c.Compliance.StaleBackupDays <= 0 {
		errs = append(errs, errors.New("compliance.stale_backup_days must be positive"))
	}
	if c.Compliance.TargetScore < 0 || c.Compliance.TargetScore > 100 {
		errs = append(errs, errors.New("compliance.target_score must be between 0 and 100"))
	}
	if c.Billing.URL == "" {
		if _, ok := c.Billing.Plans[c.Billing.DefaultPlan]; !ok {
			errs = append(errs, fmt.Errorf("billing.default_plan %q is not in billing.plans", c.Billing.DefaultPlan))
		}
	}

	return errors.Join(errs...)
}

// normalizeOktaIssuer ensures the provided Okta issuer string is in a
// predictable form. It removes any trailing slash and leaves the scheme and
// path intact.
func normalizeOktaIssuer(input string) string {
	iss := strings.TrimSpace(input)
	return strings.TrimRight(iss, "/")
}
