package config

import (
	"errors"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/replica-failover/internal/replica"
	"github.com/angeloszaimis/replica-failover/internal/strategy"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

var absolutePath = regexp.MustCompile(`^/`)

// Duration is a Go duration string such as "500ms" or "3s".
type Duration string

// Std returns the parsed duration, or zero for an empty or invalid value.
func (d Duration) Std() time.Duration {
	parsed, err := time.ParseDuration(string(d))
	if err != nil {
		return 0
	}
	return parsed
}

type ServerConfig struct {
	Address      string   `mapstructure:"address" yaml:"address"`
	Environment  string   `mapstructure:"environment" yaml:"environment"`
	ReadTimeout  Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

type ReplicaConfig struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Label string `mapstructure:"label" yaml:"label,omitempty"`
}

// DiscoveryConfig derives one replica per port on a single host. It is used
// when no explicit replicas are listed.
type DiscoveryConfig struct {
	Scheme string `mapstructure:"scheme" yaml:"scheme"`
	Host   string `mapstructure:"host" yaml:"host"`
	Ports  []int  `mapstructure:"ports" yaml:"ports"`
}

type HealthCheckConfig struct {
	Path    string   `mapstructure:"path" yaml:"path"`
	Timeout Duration `mapstructure:"timeout" yaml:"timeout"`
	// Interval enables the background monitor when set.
	Interval Duration `mapstructure:"interval" yaml:"interval,omitempty"`
}

type RequestConfig struct {
	Timeout Duration `mapstructure:"timeout" yaml:"timeout"`
	Backoff Duration `mapstructure:"backoff" yaml:"backoff"`
}

type SelectionConfig struct {
	Strategy string `mapstructure:"strategy" yaml:"strategy"`
}

type TransportConfig struct {
	Timeout Duration `mapstructure:"timeout" yaml:"timeout"`
	Origin  string   `mapstructure:"origin" yaml:"origin,omitempty"`
}

type FallbackConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type MetricsConfig struct {
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Replicas    []ReplicaConfig   `mapstructure:"replicas" yaml:"replicas,omitempty"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery" yaml:"discovery"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check" yaml:"health_check"`
	Request     RequestConfig     `mapstructure:"request" yaml:"request"`
	Selection   SelectionConfig   `mapstructure:"selection" yaml:"selection"`
	Transport   TransportConfig   `mapstructure:"transport" yaml:"transport"`
	Fallback    FallbackConfig    `mapstructure:"fallback" yaml:"fallback"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("discovery.scheme", "http")
	v.SetDefault("discovery.host", "localhost")
	v.SetDefault("discovery.ports", []int{5000, 5001, 5002})
	v.SetDefault("health_check.path", "/health")
	v.SetDefault("health_check.timeout", "3s")
	v.SetDefault("health_check.interval", "")
	v.SetDefault("request.timeout", "5s")
	v.SetDefault("request.backoff", "500ms")
	v.SetDefault("selection.strategy", strategy.NameOrdered)
	v.SetDefault("transport.timeout", "30s")
	v.SetDefault("transport.origin", "")
	v.SetDefault("fallback.path", "/fallback.html")
	v.SetDefault("metrics.buffer_size", 1000)
}

// Load reads config.yaml from the given directories, or from ./config and the
// working directory when none are given. Environment variables override file
// values, with dots in keys replaced by underscores (REQUEST_TIMEOUT).
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// ReplicaSet builds the replica set: the explicit list when present,
// otherwise one replica per discovery port.
func (c *Config) ReplicaSet() (replica.Set, error) {
	if len(c.Replicas) > 0 {
		entries := make([]replica.Entry, len(c.Replicas))
		for i, r := range c.Replicas {
			entries[i] = replica.Entry{URL: r.URL, Label: r.Label}
		}
		return replica.NewSet(entries...)
	}

	return replica.FromHost(c.Discovery.Scheme, c.Discovery.Host, c.Discovery.Ports)
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
					validation.Field(&sc.ReadTimeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&sc.WriteTimeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&sc.IdleTimeout, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Replicas,
			validation.Each(validation.By(validateReplicaConfig)),
		),
		validation.Field(&c.Discovery,
			validation.When(len(c.Replicas) == 0, validation.By(func(value interface{}) error {
				dc, ok := value.(DiscoveryConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a DiscoveryConfig")
				}
				return validation.ValidateStruct(&dc,
					validation.Field(&dc.Scheme,
						validation.Required,
						validation.In("http", "https"),
					),
					validation.Field(&dc.Host,
						validation.Required,
						is.Host,
					),
					validation.Field(&dc.Ports,
						validation.Required,
						validation.Each(validation.Required, validation.Min(1), validation.Max(65535)),
					),
				)
			})),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Path,
						validation.Required,
						validation.Match(absolutePath),
					),
					validation.Field(&hc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Interval,
						validation.When(hc.Interval != "", validation.By(validateDuration)),
					),
				)
			}),
		),
		validation.Field(&c.Request,
			validation.Required,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RequestConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RequestConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.Timeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&rc.Backoff, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Selection,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(SelectionConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a SelectionConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Strategy,
						validation.Required,
						validation.In(strategy.NameOrdered, strategy.NameSticky),
					),
				)
			}),
		),
		validation.Field(&c.Transport,
			validation.By(func(value interface{}) error {
				tc, ok := value.(TransportConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a TransportConfig")
				}
				return validation.ValidateStruct(&tc,
					validation.Field(&tc.Timeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&tc.Origin, is.URL),
				)
			}),
		),
		validation.Field(&c.Fallback,
			validation.Required,
			validation.By(func(value interface{}) error {
				fc, ok := value.(FallbackConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a FallbackConfig")
				}
				return validation.ValidateStruct(&fc,
					validation.Field(&fc.Path,
						validation.Required,
						validation.Match(absolutePath),
						validation.NotIn("/"),
					),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.Required,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.BufferSize,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	d, ok := value.(Duration)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a duration")
	}

	parsed, err := time.ParseDuration(string(d))
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 500ms, 3s, 1m)")
	}
	if parsed <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

func validateReplicaConfig(value interface{}) error {
	rc, ok := value.(ReplicaConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ReplicaConfig")
	}

	if rc.URL == "" {
		return validation.NewError("validation_empty_url", "replica URL cannot be empty")
	}

	parsedURL, err := url.Parse(rc.URL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
