package infra

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config: корневая структура конфигурации сервиса аудита.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Probes    ProbesConfig    `mapstructure:"probes"`
	Impact    ImpactConfig    `mapstructure:"impact"`
	Briefing  BriefingConfig  `mapstructure:"briefing"`
	Reasoning ReasoningConfig `mapstructure:"reasoning"`
	Session   SessionConfig   `mapstructure:"session"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AuditTimeout: внешняя граница для всего fan-out (сам оркестратор таймаутов не ставит)
	AuditTimeout   time.Duration `mapstructure:"audit_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type GRPCConfig struct {
	Port           int           `mapstructure:"port"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// DatabaseConfig описывает подключение к хранилищу сессий.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres | sqlite
	URL             string        `mapstructure:"url"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectAttempts uint          `mapstructure:"connect_attempts"`
}

// RedisConfig описывает подключение к Redis (указатель последней сессии, блокировки, кредиты).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig: проверка RS256 токенов. Выпуск токенов живет во внешнем сервисе.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

// ProbesConfig: бинарники и параметры внешних инструментов.
type ProbesConfig struct {
	K6Binary         string        `mapstructure:"k6_binary"`
	VirtualUsers     int           `mapstructure:"virtual_users"`
	Duration         time.Duration `mapstructure:"duration"`
	LighthouseBinary string        `mapstructure:"lighthouse_binary"`
	ChromeFlags      string        `mapstructure:"chrome_flags"`
	GitBinary        string        `mapstructure:"git_binary"`
	WorkDir          string        `mapstructure:"work_dir"` // пусто, os.TempDir()
}

// ImpactConfig: эвристические константы бизнес-оценок. Значения по умолчанию
// совпадают с исходной моделью, но это не доменные факты.
type ImpactConfig struct {
	ConversionLossPerSecond float64 `mapstructure:"conversion_loss_per_second"`
	ProfitPerRequest        float64 `mapstructure:"profit_per_request"`
	DailyTrafficMultiplier  float64 `mapstructure:"daily_traffic_multiplier"`
	FailureRateThreshold    float64 `mapstructure:"failure_rate_threshold"`
	HealthyHeadroom         float64 `mapstructure:"healthy_headroom"`
	DegradedHeadroom        float64 `mapstructure:"degraded_headroom"`
	CollapseFloor           int     `mapstructure:"collapse_floor"`
	LatencyThresholdMs      float64 `mapstructure:"latency_threshold_ms"`
	ThroughputThreshold     float64 `mapstructure:"throughput_threshold"`
	ArchitectureDefault     int     `mapstructure:"architecture_default"`
	DevOpsDefault           int     `mapstructure:"devops_default"`
	MaxRemediations         int     `mapstructure:"max_remediations"`
}

type BriefingConfig struct {
	MaxChars int `mapstructure:"max_chars"`
}

// ProviderConfig: OpenAI-совместимый эндпоинт chat completions.
type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// ModelRef: одна позиция в упорядоченном списке fallback.
type ModelRef struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

// ReasoningConfig: настройки шлюза к reasoning-сервису.
type ReasoningConfig struct {
	Providers      map[string]ProviderConfig `mapstructure:"providers"`
	Models         []ModelRef                `mapstructure:"models"`
	RequestTimeout time.Duration             `mapstructure:"request_timeout"`
	RateLimit      float64                   `mapstructure:"rate_limit"` // запросов в секунду
	RateBurst      int                       `mapstructure:"rate_burst"`

	// Настройки Circuit Breaker на каждую модель
	CBMaxRequests         uint32        `mapstructure:"cb_max_requests"`
	CBInterval            time.Duration `mapstructure:"cb_interval"`
	CBTimeout             time.Duration `mapstructure:"cb_timeout"`
	CBConsecutiveFailures uint32        `mapstructure:"cb_consecutive_failures"`
}

type SessionConfig struct {
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	AuditCost   int64         `mapstructure:"audit_cost"`
	FreeCredits int64         `mapstructure:"free_credits"` // стартовый баланс нового вызывающего
	LedgerMode  string        `mapstructure:"ledger_mode"`  // allow | redis
	EventBuffer int           `mapstructure:"event_buffer"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
	Insecure     bool   `mapstructure:"insecure"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// path может быть пустым, тогда config.yaml ищется в "." и "./configs".
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// 2. ENV перекрывает конфиг: REASONING_REQUEST_TIMEOUT=30s перекроет reasoning.request_timeout
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет, работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Ключ из ENV (Docker/K8s) или из файла
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	// API ключ провайдера по умолчанию удобно передавать одной переменной
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		if p, ok := cfg.Reasoning.Providers["openrouter"]; ok && p.APIKey == "" {
			p.APIKey = key
			cfg.Reasoning.Providers["openrouter"] = p
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет то, что нельзя исправить дефолтами.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	if len(c.Reasoning.Models) == 0 {
		return errors.New("config: reasoning.models must list at least one model")
	}
	for i, m := range c.Reasoning.Models {
		if _, ok := c.Reasoning.Providers[m.Provider]; !ok {
			return fmt.Errorf("config: reasoning.models[%d] references unknown provider %q", i, m.Provider)
		}
	}
	if c.Briefing.MaxChars <= 0 {
		return errors.New("config: briefing.max_chars must be positive")
	}
	// ход чата может перебрать все модели, каждая до request_timeout
	if worst := time.Duration(len(c.Reasoning.Models)) * c.Reasoning.RequestTimeout; c.Session.LockTTL <= worst {
		return fmt.Errorf("config: session.lock_ttl %s must exceed %d models x reasoning.request_timeout (%s)",
			c.Session.LockTTL, len(c.Reasoning.Models), worst)
	}
	if err := c.Impact.validate(); err != nil {
		return err
	}
	switch c.Session.LedgerMode {
	case "allow":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("config: session.ledger_mode=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("config: unsupported session.ledger_mode %q", c.Session.LedgerMode)
	}
	return nil
}

func (c ImpactConfig) validate() error {
	if c.MaxRemediations < 0 {
		return fmt.Errorf("config: impact.max_remediations must not be negative, got %d", c.MaxRemediations)
	}
	fields := map[string]float64{
		"conversion_loss_per_second": c.ConversionLossPerSecond,
		"profit_per_request":         c.ProfitPerRequest,
		"daily_traffic_multiplier":   c.DailyTrafficMultiplier,
		"failure_rate_threshold":     c.FailureRateThreshold,
		"healthy_headroom":           c.HealthyHeadroom,
		"degraded_headroom":          c.DegradedHeadroom,
		"latency_threshold_ms":       c.LatencyThresholdMs,
		"throughput_threshold":       c.ThroughputThreshold,
	}
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("config: impact.%s must be finite", name)
		}
	}
	return nil
}

// DefaultModels: упорядоченный список бесплатных моделей OpenRouter.
var DefaultModels = []ModelRef{
	{Provider: "openrouter", Model: "upstage/solar-pro-3:free"},
	{Provider: "openrouter", Model: "meta-llama/llama-3.2-3b-instruct:free"},
	{Provider: "openrouter", Model: "qwen/qwen-2-7b-instruct:free"},
	{Provider: "openrouter", Model: "google/gemma-2-9b-it:free"},
	{Provider: "openrouter", Model: "nousresearch/hermes-3-llama-3.1-405b:free"},
	{Provider: "openrouter", Model: "mistralai/mistral-7b-instruct:free"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 3*time.Minute)
	v.SetDefault("server.audit_timeout", 2*time.Minute)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("grpc.port", 50052)
	v.SetDefault("grpc.health_interval", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.connect_attempts", 5)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("probes.k6_binary", "k6")
	v.SetDefault("probes.virtual_users", 200)
	v.SetDefault("probes.duration", 5*time.Second)
	v.SetDefault("probes.lighthouse_binary", "lighthouse")
	v.SetDefault("probes.chrome_flags", "--headless --no-sandbox")
	v.SetDefault("probes.git_binary", "git")

	v.SetDefault("impact.conversion_loss_per_second", 7.0)
	v.SetDefault("impact.profit_per_request", 15.0)
	v.SetDefault("impact.daily_traffic_multiplier", 86400*0.1)
	v.SetDefault("impact.failure_rate_threshold", 0.05)
	v.SetDefault("impact.healthy_headroom", 1.5)
	v.SetDefault("impact.degraded_headroom", 0.8)
	v.SetDefault("impact.collapse_floor", 5)
	v.SetDefault("impact.latency_threshold_ms", 200.0)
	v.SetDefault("impact.throughput_threshold", 500.0)
	v.SetDefault("impact.architecture_default", 50)
	v.SetDefault("impact.devops_default", 20)
	v.SetDefault("impact.max_remediations", 3)

	v.SetDefault("briefing.max_chars", 6000)

	v.SetDefault("reasoning.providers", map[string]any{
		"openrouter": map[string]any{"base_url": "https://openrouter.ai/api/v1"},
	})
	v.SetDefault("reasoning.models", modelsAsMaps(DefaultModels))
	v.SetDefault("reasoning.request_timeout", 60*time.Second)
	v.SetDefault("reasoning.rate_limit", 5.0)
	v.SetDefault("reasoning.rate_burst", 5)
	v.SetDefault("reasoning.cb_max_requests", 1)
	v.SetDefault("reasoning.cb_interval", 60*time.Second)
	v.SetDefault("reasoning.cb_timeout", 30*time.Second)
	v.SetDefault("reasoning.cb_consecutive_failures", 3)

	v.SetDefault("session.lock_ttl", 7*time.Minute)
	v.SetDefault("session.audit_cost", 1)
	v.SetDefault("session.free_credits", 1)
	v.SetDefault("session.ledger_mode", "allow")
	v.SetDefault("session.event_buffer", 1000)

	v.SetDefault("telemetry.service_name", "prefracta-audit")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

func modelsAsMaps(models []ModelRef) []map[string]any {
	out := make([]map[string]any, 0, len(models))
	for _, m := range models {
		out = append(out, map[string]any{"provider": m.Provider, "model": m.Model})
	}
	return out
}

// loadKeyResource: PEM из ENV имеет приоритет над файлом
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
