package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "AI_VIRTUAL_ASSISTANT"

type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		Mode         string        `mapstructure:"mode"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`

	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Redis struct {
		// URL is optional; an empty URL disables the introspection cache.
		URL      string `mapstructure:"url"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	Auth struct {
		IntrospectionURL string        `mapstructure:"introspection_url"`
		PeerURL          string        `mapstructure:"peer_url"`
		Timeout          time.Duration `mapstructure:"timeout"`
		CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"auth"`

	LlamaStack struct {
		URL           string `mapstructure:"url"`
		AdminUsername string `mapstructure:"admin_username"`
	} `mapstructure:"llamastack"`

	Kubernetes struct {
		Kubeconfig       string        `mapstructure:"kubeconfig"`
		TokenFile        string        `mapstructure:"token_file"`
		NamespaceFile    string        `mapstructure:"namespace_file"`
		DefaultNamespace string        `mapstructure:"default_namespace"`
		CompanionService string        `mapstructure:"companion_service"`
		ReadyTimeout     time.Duration `mapstructure:"ready_timeout"`
		ReadyInterval    time.Duration `mapstructure:"ready_interval"`
	} `mapstructure:"kubernetes"`

	Startup struct {
		SelfURL       string        `mapstructure:"self_url"`
		ProbeAttempts uint          `mapstructure:"probe_attempts"`
		ProbeInterval time.Duration `mapstructure:"probe_interval"`
	} `mapstructure:"startup"`

	Observability struct {
		MetricsEnabled     bool   `mapstructure:"metrics_enabled"`
		TraceEnabled       bool   `mapstructure:"trace_enabled"`
		TracingEndpointURL string `mapstructure:"tracing_endpoint_url"`
		LogLevel           string `mapstructure:"log_level"`
		Format             string `mapstructure:"log_format"`
		LogSource          bool   `mapstructure:"log_source"`
	} `mapstructure:"observability"`

	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("database.dsn", "file:assistant.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("auth.introspection_url", "http://localhost:8887/validate-token")
	v.SetDefault("auth.peer_url", "http://localhost:8887/validate")
	v.SetDefault("auth.timeout", 10*time.Second)
	v.SetDefault("auth.cache_ttl", time.Duration(0))

	v.SetDefault("llamastack.url", "http://localhost:8321")

	v.SetDefault("kubernetes.token_file", "/var/run/secrets/kubernetes.io/serviceaccount/token")
	v.SetDefault("kubernetes.namespace_file", "/var/run/secrets/kubernetes.io/serviceaccount/namespace")
	v.SetDefault("kubernetes.default_namespace", "default")
	v.SetDefault("kubernetes.companion_service", "ai-virtual-assistant-authenticated")
	v.SetDefault("kubernetes.ready_timeout", 300*time.Second)
	v.SetDefault("kubernetes.ready_interval", 5*time.Second)

	v.SetDefault("startup.self_url", "http://localhost:8000/")
	v.SetDefault("startup.probe_attempts", 20)
	v.SetDefault("startup.probe_interval", 500*time.Millisecond)

	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")

	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// Load reads config.yaml (and config.$APP_ENV.yaml) from path or the default
// search dirs, then applies environment overrides. A missing file is not an
// error: defaults and env vars are enough to run inside a cluster.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The deployment manifests set these unprefixed.
	if err := v.BindEnv("llamastack.url", envPrefix+"_LLAMASTACK_URL", "LLAMASTACK_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind LLAMASTACK_URL: %w", err)
	}
	if err := v.BindEnv("llamastack.admin_username", envPrefix+"_LLAMASTACK_ADMIN_USERNAME", "ADMIN_USERNAME"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_USERNAME: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		slog.Default().Info("No config file found, using defaults and environment")
	}

	if env := os.Getenv("APP_ENV"); env != "" && path == "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			slog.Default().Info("No environment-specific config (optional)", slog.String("env", env))
		} else {
			slog.Default().Info("Environment-specific config loaded", slog.String("env", env))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		slog.Default().Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	return cfg
}
