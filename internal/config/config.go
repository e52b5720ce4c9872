package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/datatypes"

	"alfredoptarigan/applicant-screener/internal/models"
)

const MaxWorkerConcurrency = 15

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Cohere    CohereConfig    `mapstructure:"cohere"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Lock      LockConfig      `mapstructure:"lock"`
	ATS       ATSConfig       `mapstructure:"ats"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Alert     AlertConfig     `mapstructure:"alert"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Screening ScreeningConfig `mapstructure:"screening"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type GeminiConfig struct {
	APIKey           string        `mapstructure:"api-key"`
	MaxOutputTokens  int32         `mapstructure:"max-output-tokens"`
	Temperature      float32       `mapstructure:"temperature"`
	RequestTimeout   time.Duration `mapstructure:"request-timeout"`
	MaxRetries       int           `mapstructure:"max-retries"`
	RetryInitialWait time.Duration `mapstructure:"retry-initial-wait"`
	MaxLogLength     int           `mapstructure:"max-log-length"`
}

// EmbeddingConfig selects the embedding provider and the cache backend for job vectors.
type EmbeddingConfig struct {
	Provider      string `mapstructure:"provider"` // gemini | cohere
	Model         string `mapstructure:"model"`
	Store         string `mapstructure:"store"` // database | qdrant
	TokenBudget   int    `mapstructure:"token-budget"`
	CharsPerToken int    `mapstructure:"chars-per-token"`
	Dimensions    uint64 `mapstructure:"dimensions"`
}

type CohereConfig struct {
	APIKey string `mapstructure:"api-key"`
}

type QdrantConfig struct {
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api-key"`
	Collection string `mapstructure:"collection"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LockConfig struct {
	Backend    string        `mapstructure:"backend"` // database | redis
	StaleAfter time.Duration `mapstructure:"stale-after"`
	RedisKey   string        `mapstructure:"redis-key"`
}

type ATSConfig struct {
	BaseURL        string        `mapstructure:"base-url"`
	APIKey         string        `mapstructure:"api-key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxResumeRunes int           `mapstructure:"max-resume-runes"`
	NoteAction     string        `mapstructure:"note-action"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp-host"`
	SMTPPort int      `mapstructure:"smtp-port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// ScreeningConfig seeds the screening_settings row on first start. Later
// changes go through the settings API, not this file.
type ScreeningConfig struct {
	Enabled                 bool           `mapstructure:"enabled"`
	QualificationThreshold  int            `mapstructure:"qualification-threshold"`
	JobThresholds           map[string]int `mapstructure:"job-thresholds"`
	SimilarityThreshold     float64        `mapstructure:"similarity-threshold"`
	SimilarityFilterEnabled bool           `mapstructure:"similarity-filter-enabled"`
	ScoringModel            string         `mapstructure:"scoring-model"`
	EscalationModel         string         `mapstructure:"escalation-model"`
	EscalationLow           int            `mapstructure:"escalation-low"`
	EscalationHigh          int            `mapstructure:"escalation-high"`
	BatchSize               int            `mapstructure:"batch-size"`
	SafeguardTopN           int            `mapstructure:"safeguard-top-n"`
	BacklogCutoff           string         `mapstructure:"backlog-cutoff"`
}

type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.env", "development")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "applicant_screener")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("gemini.max-output-tokens", 4096)
	v.SetDefault("gemini.temperature", 0.2)
	v.SetDefault("gemini.request-timeout", "90s")
	v.SetDefault("gemini.max-retries", 3)
	v.SetDefault("gemini.retry-initial-wait", "2s")
	v.SetDefault("gemini.max-log-length", 400)

	v.SetDefault("embedding.provider", "gemini")
	v.SetDefault("embedding.model", "text-embedding-004")
	v.SetDefault("embedding.store", "database")
	v.SetDefault("embedding.token-budget", 2048)
	v.SetDefault("embedding.chars-per-token", 4)
	v.SetDefault("embedding.dimensions", 768)

	v.SetDefault("qdrant.url", "http://localhost:6334")
	v.SetDefault("qdrant.collection", "job_embeddings")

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("lock.backend", "database")
	v.SetDefault("lock.stale-after", "5m")
	v.SetDefault("lock.redis-key", "screener:cycle-lock")

	v.SetDefault("ats.base-url", "http://localhost:8080")
	v.SetDefault("ats.timeout", "30s")
	v.SetDefault("ats.max-resume-runes", 50000)
	v.SetDefault("ats.note-action", "AI Screening")

	v.SetDefault("kafka.topic", "screening.qualified")

	v.SetDefault("alert.smtp-port", 587)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.schedule", "@every 2m")

	v.SetDefault("worker.concurrency", 5)

	v.SetDefault("screening.enabled", true)
	v.SetDefault("screening.qualification-threshold", 70)
	v.SetDefault("screening.similarity-threshold", 0.25)
	v.SetDefault("screening.similarity-filter-enabled", true)
	v.SetDefault("screening.scoring-model", "gemini-2.5-flash")
	v.SetDefault("screening.escalation-model", "gemini-2.5-pro")
	v.SetDefault("screening.escalation-low", 60)
	v.SetDefault("screening.escalation-high", 85)
	v.SetDefault("screening.batch-size", 10)
	v.SetDefault("screening.safeguard-top-n", 3)
	v.SetDefault("screening.backlog-cutoff", "")

	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)
}

// bindSecrets makes secrets reachable through Unmarshal from either the
// SCREENER_ prefixed variable or the bare provider variable.
func bindSecrets(v *viper.Viper) error {
	bindings := map[string][]string{
		"gemini.api-key":    {"SCREENER_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"cohere.api-key":    {"SCREENER_COHERE_API_KEY", "COHERE_API_KEY"},
		"qdrant.api-key":    {"SCREENER_QDRANT_API_KEY", "QDRANT_API_KEY"},
		"redis.password":    {"SCREENER_REDIS_PASSWORD", "REDIS_PASSWORD"},
		"ats.api-key":       {"SCREENER_ATS_API_KEY", "ATS_API_KEY"},
		"alert.password":    {"SCREENER_ALERT_PASSWORD", "SMTP_PASSWORD"},
		"database.password": {"SCREENER_DATABASE_PASSWORD", "DB_PASSWORD"},
		"kafka.enabled":     {"SCREENER_KAFKA_ENABLED"},
		"kafka.brokers":     {"SCREENER_KAFKA_BROKERS", "KAFKA_BROKERS"},
		"alert.enabled":     {"SCREENER_ALERT_ENABLED"},
		"alert.smtp-host":   {"SCREENER_ALERT_SMTP_HOST", "SMTP_HOST"},
		"alert.username":    {"SCREENER_ALERT_USERNAME", "SMTP_USERNAME"},
		"alert.from":        {"SCREENER_ALERT_FROM"},
		"alert.to":          {"SCREENER_ALERT_TO"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Load reads .env, then the optional config file at path, then SCREENER_*
// environment overrides. A missing .env is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SCREENER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := bindSecrets(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("screener")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.Worker.Concurrency < 1 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.Concurrency > MaxWorkerConcurrency {
		c.Worker.Concurrency = MaxWorkerConcurrency
	}
	c.Screening.BatchSize = models.ClampBatchSize(c.Screening.BatchSize)
	if c.Embedding.CharsPerToken < 1 {
		c.Embedding.CharsPerToken = 4
	}
}

func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "gemini", "cohere":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Embedding.Store {
	case "database", "qdrant":
	default:
		return fmt.Errorf("unknown embedding store %q", c.Embedding.Store)
	}
	switch c.Lock.Backend {
	case "database", "redis":
	default:
		return fmt.Errorf("unknown lock backend %q", c.Lock.Backend)
	}
	if c.Screening.EscalationLow > c.Screening.EscalationHigh {
		return fmt.Errorf("escalation band is empty: low %d > high %d", c.Screening.EscalationLow, c.Screening.EscalationHigh)
	}
	if _, err := c.Screening.Cutoff(); err != nil {
		return err
	}
	return nil
}

// Cutoff parses backlog-cutoff as RFC3339 or a plain date. Empty means no cutoff.
func (s ScreeningConfig) Cutoff() (*time.Time, error) {
	if strings.TrimSpace(s.BacklogCutoff) == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s.BacklogCutoff); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid backlog cutoff %q", s.BacklogCutoff)
}

// SeedSettings builds the initial screening_settings row.
func (s ScreeningConfig) SeedSettings() models.ScreeningSettings {
	cutoff, _ := s.Cutoff()
	thresholds := s.JobThresholds
	if thresholds == nil {
		thresholds = map[string]int{}
	}
	return models.ScreeningSettings{
		ID:                      1,
		ScreeningEnabled:        s.Enabled,
		QualificationThreshold:  s.QualificationThreshold,
		JobThresholds:           datatypes.NewJSONType(thresholds),
		SimilarityThreshold:     s.SimilarityThreshold,
		SimilarityFilterEnabled: s.SimilarityFilterEnabled,
		ScoringModel:            s.ScoringModel,
		EscalationModel:         s.EscalationModel,
		EscalationLow:           s.EscalationLow,
		EscalationHigh:          s.EscalationHigh,
		BatchSize:               models.ClampBatchSize(s.BatchSize),
		SafeguardTopN:           s.SafeguardTopN,
		BacklogCutoff:           cutoff,
	}
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}
