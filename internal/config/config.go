package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type DispatchConfig struct {
	IntervalMS int `yaml:"interval_ms"`
}

type DiscussionConfig struct {
	SyntheticRoles []string `yaml:"synthetic_roles"`
	HistoryWindow  int      `yaml:"history_window"`
	StartTimeoutMS int      `yaml:"start_timeout_ms"`
	VoiceCatalog   []string `yaml:"voice_catalog"`
}

type GeneratorConfig struct {
	Mode        string  `yaml:"mode"` // mock, ollama, exec
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	MaxDrafts   int     `yaml:"max_drafts"`
	MaxAttempts int     `yaml:"max_attempts"`
	RetryWaitMS int     `yaml:"retry_wait_ms"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type SynthConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Store       StoreConfig      `yaml:"store"`
	Dispatch    DispatchConfig   `yaml:"dispatch"`
	Discussion  DiscussionConfig `yaml:"discussion"`
	Generator   GeneratorConfig  `yaml:"generator"`
	Synth       SynthConfig      `yaml:"synth"`
}

func Default() Config {
	return Config{
		RuntimeName: "seminar-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path: "./data/seminar.db",
		},
		Dispatch: DispatchConfig{
			IntervalMS: 10000,
		},
		Discussion: DiscussionConfig{
			SyntheticRoles: []string{"teacher", "student", "student"},
			HistoryWindow:  10,
			StartTimeoutMS: 15000,
			VoiceCatalog: []string{
				"atlas", "briar", "celeste", "dorian", "elowen", "fintan",
			},
		},
		Generator: GeneratorConfig{
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3.2:latest",
			MaxDrafts:   10,
			MaxAttempts: 4,
			RetryWaitMS: 500,
			MaxTokens:   1024,
			Temperature: 0.7,
		},
		Synth: SynthConfig{
			Mode:       "mock",
			SampleRate: 22050,
			Channels:   1,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "SEMINAR_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SEMINAR_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SEMINAR_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SEMINAR_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SEMINAR_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SEMINAR_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SEMINAR_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "SEMINAR_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SEMINAR_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "SEMINAR_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SEMINAR_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SEMINAR_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SEMINAR_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SEMINAR_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SEMINAR_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "SEMINAR_STORE_PATH")
	overrideBool(&cfg.Store.VacuumOnStart, "SEMINAR_STORE_VACUUM_ON_START")
	overrideInt(&cfg.Dispatch.IntervalMS, "SEMINAR_DISPATCH_INTERVAL_MS")
	overrideStringSlice(&cfg.Discussion.SyntheticRoles, "SEMINAR_DISCUSSION_SYNTHETIC_ROLES")
	overrideInt(&cfg.Discussion.HistoryWindow, "SEMINAR_DISCUSSION_HISTORY_WINDOW")
	overrideInt(&cfg.Discussion.StartTimeoutMS, "SEMINAR_DISCUSSION_START_TIMEOUT_MS")
	overrideStringSlice(&cfg.Discussion.VoiceCatalog, "SEMINAR_DISCUSSION_VOICE_CATALOG")
	overrideString(&cfg.Generator.Mode, "SEMINAR_GENERATOR_MODE")
	overrideString(&cfg.Generator.Endpoint, "SEMINAR_GENERATOR_ENDPOINT")
	overrideString(&cfg.Generator.Command, "SEMINAR_GENERATOR_COMMAND")
	overrideString(&cfg.Generator.Model, "SEMINAR_GENERATOR_MODEL")
	overrideInt(&cfg.Generator.MaxDrafts, "SEMINAR_GENERATOR_MAX_DRAFTS")
	overrideInt(&cfg.Generator.MaxAttempts, "SEMINAR_GENERATOR_MAX_ATTEMPTS")
	overrideInt(&cfg.Generator.RetryWaitMS, "SEMINAR_GENERATOR_RETRY_WAIT_MS")
	overrideInt(&cfg.Generator.MaxTokens, "SEMINAR_GENERATOR_MAX_TOKENS")
	overrideFloat(&cfg.Generator.Temperature, "SEMINAR_GENERATOR_TEMPERATURE")
	overrideString(&cfg.Synth.Mode, "SEMINAR_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "SEMINAR_SYNTH_COMMAND")
	overrideInt(&cfg.Synth.SampleRate, "SEMINAR_SYNTH_SAMPLE_RATE")
	overrideInt(&cfg.Synth.Channels, "SEMINAR_SYNTH_CHANNELS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if cfg.Dispatch.IntervalMS <= 0 {
		return errors.New("dispatch.interval_ms must be positive")
	}
	if len(cfg.Discussion.SyntheticRoles) == 0 {
		return errors.New("discussion.synthetic_roles must not be empty")
	}
	for _, role := range cfg.Discussion.SyntheticRoles {
		if role != "teacher" && role != "student" {
			return fmt.Errorf("discussion.synthetic_roles contains unknown role %q", role)
		}
	}
	if cfg.Discussion.HistoryWindow <= 0 {
		return errors.New("discussion.history_window must be positive")
	}
	if cfg.Discussion.StartTimeoutMS <= 0 {
		return errors.New("discussion.start_timeout_ms must be positive")
	}
	if len(cfg.Discussion.VoiceCatalog) == 0 {
		return errors.New("discussion.voice_catalog must not be empty")
	}
	switch cfg.Generator.Mode {
	case "mock", "ollama", "exec":
	default:
		return errors.New("generator.mode must be one of mock|ollama|exec")
	}
	if cfg.Generator.Mode == "ollama" && cfg.Generator.Endpoint == "" {
		return errors.New("generator.endpoint must be set when mode=ollama")
	}
	if cfg.Generator.Mode == "exec" && cfg.Generator.Command == "" {
		return errors.New("generator.command must be set when mode=exec")
	}
	if cfg.Generator.MaxDrafts <= 0 {
		return errors.New("generator.max_drafts must be positive")
	}
	if cfg.Generator.MaxAttempts <= 0 {
		return errors.New("generator.max_attempts must be positive")
	}
	if cfg.Generator.RetryWaitMS <= 0 {
		return errors.New("generator.retry_wait_ms must be positive")
	}
	if cfg.Generator.MaxTokens < 0 {
		return errors.New("generator.max_tokens must be >= 0")
	}
	switch cfg.Synth.Mode {
	case "mock", "exec":
	default:
		return errors.New("synth.mode must be one of mock|exec")
	}
	if cfg.Synth.Mode == "exec" && cfg.Synth.Command == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.SampleRate <= 0 {
		return errors.New("synth.sample_rate must be positive")
	}
	if cfg.Synth.Channels <= 0 {
		return errors.New("synth.channels must be positive")
	}
	return nil
}
