// Package config loads the interface settings from the OpenEMR dotenv file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvConfigPath overrides the default config file location
const EnvConfigPath = "IIS_CONFIG"

// ErrInvalid is returned when the configuration cannot be read or fails validation
var ErrInvalid = errors.New("invalid configuration")

// Database is the EHR connection
type Database struct {
	Driver   string `mapstructure:"if.openemr.dbdriver" validate:"oneof=mysql postgres"`
	Host     string `mapstructure:"if.openemr.dbhost" validate:"required"`
	Port     int    `mapstructure:"if.openemr.dbport" validate:"min=1,max=65535"`
	User     string `mapstructure:"if.openemr.dbuser" validate:"required"`
	Password string `mapstructure:"if.openemr.dbuser.password"`
	Name     string `mapstructure:"if.openemr.dbname" validate:"required"`
}

// Registry is the immunization registry account and endpoint
type Registry struct {
	User     string        `mapstructure:"if.ir.user" validate:"required"`
	Password string        `mapstructure:"if.ir.password" validate:"required"`
	Facility string        `mapstructure:"if.ir.facility" validate:"required"`
	Region   string        `mapstructure:"if.ir.region" validate:"required"`
	OrgCode  string        `mapstructure:"if.ir.orgcode" validate:"required"`
	WSDL     string        `mapstructure:"if.ir.wsdl" validate:"required"`
	Endpoint string        `mapstructure:"if.ir.endpoint" validate:"required,url"`
	Timeout  time.Duration `mapstructure:"if.ir.timeout"`
	Insecure bool          `mapstructure:"if.ir.insecure"`
}

// Jobs holds batch and filesystem settings
type Jobs struct {
	OrdersDir      string `mapstructure:"if.dir.orders.os"`
	LockDir        string `mapstructure:"if.dir.lock" validate:"required"`
	Limit          int    `mapstructure:"if.vxu.limit" validate:"min=1"`
	KnownHosts     string `mapstructure:"if.sftp.known_hosts"`
	ResultsWorkers int    `mapstructure:"if.results.workers" validate:"min=1,max=64"`
}

// Observability holds logging, metrics and tracing settings
type Observability struct {
	LogLevel       string  `mapstructure:"if.log.level" validate:"oneof=debug info warn error"`
	LogFormat      string  `mapstructure:"if.log.format" validate:"oneof=json console"`
	Pushgateway    string  `mapstructure:"if.metrics.pushgateway" validate:"omitempty,url"`
	OTLPEndpoint   string  `mapstructure:"if.otel.endpoint"`
	OTelSampleRate float64 `mapstructure:"if.otel.sample_rate" validate:"min=0,max=1"`
}

// Kafka holds the event producer settings
type Kafka struct {
	Brokers []string `mapstructure:"if.kafka.brokers" validate:"dive,hostname_port"`
}

// API holds the ledger API settings
type API struct {
	Port string   `mapstructure:"if.api.port" validate:"required,numeric"`
	Keys []string `mapstructure:"if.api.keys"`
}

// Config is the complete interface configuration
type Config struct {
	Database      Database      `mapstructure:",squash"`
	Registry      Registry      `mapstructure:",squash"`
	Jobs          Jobs          `mapstructure:",squash"`
	Observability Observability `mapstructure:",squash"`
	Kafka         Kafka         `mapstructure:",squash"`
	API           API           `mapstructure:",squash"`

	// Path is the file the configuration was read from
	Path string `mapstructure:"-"`
}

// keys lists every setting so each one can be bound to its environment variable
var keys = []string{
	"if.OpenEMR.dbdriver",
	"if.OpenEMR.dbhost",
	"if.OpenEMR.dbport",
	"if.OpenEMR.dbuser",
	"if.OpenEMR.dbuser.password",
	"if.OpenEMR.dbname",
	"if.IR.user",
	"if.IR.password",
	"if.IR.facility",
	"if.IR.region",
	"if.IR.orgcode",
	"if.IR.wsdl",
	"if.IR.endpoint",
	"if.IR.timeout",
	"if.IR.insecure",
	"if.dir.orders.os",
	"if.dir.lock",
	"if.vxu.limit",
	"if.sftp.known_hosts",
	"if.results.workers",
	"if.log.level",
	"if.log.format",
	"if.metrics.pushgateway",
	"if.otel.endpoint",
	"if.otel.sample_rate",
	"if.kafka.brokers",
	"if.api.port",
	"if.api.keys",
}

var defaults = map[string]any{
	"if.OpenEMR.dbdriver": "mysql",
	"if.OpenEMR.dbport":   3306,
	"if.IR.timeout":       "60s",
	"if.dir.lock":         os.TempDir(),
	"if.vxu.limit":        100,
	"if.results.workers":  4,
	"if.log.level":        "info",
	"if.log.format":       "json",
	"if.otel.sample_rate": 1.0,
	"if.api.port":         "8080",
}

// DefaultPath is the dotenv file shared with the other clinic interface jobs
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("dotenv", "mdvxu.env")
	}
	return filepath.Join(home, "dotenv", "mdvxu.env")
}

// EnvName maps a config key to its environment variable, e.g. if.OpenEMR.dbhost to IF_OPENEMR_DBHOST
func EnvName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads and validates the configuration at path. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	v.SetConfigType("env")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range keys {
		if err := v.BindEnv(key, EnvName(key)); err != nil {
			return nil, fmt.Errorf("%w: bind %s: %v", ErrInvalid, key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
	}

	cfg := &Config{Path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalid, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and reports all failures at once
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		return name
	})

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// RequireResults checks the settings only the results job needs
func (c *Config) RequireResults() error {
	if strings.TrimSpace(c.Jobs.OrdersDir) == "" {
		return fmt.Errorf("%w: if.dir.orders.os is required for results", ErrInvalid)
	}
	return nil
}

// KafkaEnabled reports whether outcome events are published
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
