// Package config loads and validates the evaluation service configuration
// from YAML files with environment-variable overrides. It provides typed
// structs for every subsystem (Server, RPC, Postgres, Kafka, Redis, Data,
// Model, Evaluation, etc.).
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/errors"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	RPC        RPCConfig        `yaml:"rpc"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Data       DataConfig       `yaml:"data"`
	Model      ModelConfig      `yaml:"model"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"HRED_SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"readTimeout" envconfig:"HRED_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" envconfig:"HRED_SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"HRED_SERVER_SHUTDOWN_TIMEOUT"`
}

// RPCConfig holds the JSON-over-TCP RPC listener settings.
type RPCConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"HRED_RPC_ENABLED"`
	Port    int  `yaml:"port" envconfig:"HRED_RPC_PORT"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host" envconfig:"HRED_POSTGRES_HOST"`
	Port            int           `yaml:"port" envconfig:"HRED_POSTGRES_PORT"`
	Database        string        `yaml:"database" envconfig:"HRED_POSTGRES_DATABASE"`
	User            string        `yaml:"user" envconfig:"HRED_POSTGRES_USER"`
	Password        string        `yaml:"password" envconfig:"HRED_POSTGRES_PASSWORD"`
	SSLMode         string        `yaml:"sslMode" envconfig:"HRED_POSTGRES_SSLMODE"`
	MaxOpenConns    int           `yaml:"maxOpenConns" envconfig:"HRED_POSTGRES_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"maxIdleConns" envconfig:"HRED_POSTGRES_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" envconfig:"HRED_POSTGRES_CONN_MAX_LIFETIME"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers" envconfig:"HRED_KAFKA_BROKERS"`
	ConsumerGroup string      `yaml:"consumerGroup" envconfig:"HRED_KAFKA_CONSUMER_GROUP"`
	Topics        KafkaTopics `yaml:"topics" ignored:"true"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DecodedBatches    string `yaml:"decodedBatches" envconfig:"HRED_KAFKA_TOPIC_DECODED_BATCHES"`
	EvaluationReports string `yaml:"evaluationReports" envconfig:"HRED_KAFKA_TOPIC_EVALUATION_REPORTS"`
}

// RedisConfig holds Redis connection and score-cache parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr" envconfig:"HRED_REDIS_ADDR"`
	Password string        `yaml:"password" envconfig:"HRED_REDIS_PASSWORD"`
	DB       int           `yaml:"db" envconfig:"HRED_REDIS_DB"`
	PoolSize int           `yaml:"poolSize" envconfig:"HRED_REDIS_POOL_SIZE"`
	CacheTTL time.Duration `yaml:"cacheTTL" envconfig:"HRED_REDIS_CACHE_TTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"HRED_LOGGING_LEVEL"`
	Format string `yaml:"format" envconfig:"HRED_LOGGING_FORMAT"`
}

// TracingConfig controls span logging for evaluation runs.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"HRED_TRACING_ENABLED"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"HRED_METRICS_ENABLED"`
	Port    int  `yaml:"port" envconfig:"HRED_METRICS_PORT"`
}

// DataConfig describes where decoded evaluation batches and the vocabulary
// live, and how reference sequences are delimited. MaxUtteranceCnt bounds the
// reference responses of one example; BatchSize is the number of batches
// publish sends per producer write.
type DataConfig struct {
	Root            string `yaml:"root" envconfig:"HRED_DATA_ROOT"`
	VocabFile       string `yaml:"vocabFile" envconfig:"HRED_DATA_VOCAB_FILE"`
	TestFile        string `yaml:"testFile" envconfig:"HRED_DATA_TEST_FILE"`
	MaxUtteranceCnt int    `yaml:"maxUtteranceCnt" envconfig:"HRED_DATA_MAX_UTTERANCE_CNT"`
	BatchSize       int    `yaml:"batchSize" envconfig:"HRED_DATA_BATCH_SIZE"`
	StripBOS        bool   `yaml:"stripBOS" envconfig:"HRED_DATA_STRIP_BOS"`
}

// ModelConfig selects one of several named model profiles.
type ModelConfig struct {
	Profile  string                  `yaml:"profile" envconfig:"HRED_MODEL_PROFILE"`
	Profiles map[string]ModelProfile `yaml:"profiles" ignored:"true"`
}

// ModelProfile records the hyperparameters the external trainer was run
// with. Only BeamWidth and MaxDecodingLength influence evaluation.
type ModelProfile struct {
	Encoder           EncoderConfig   `yaml:"encoder"`
	Decoder           DecoderConfig   `yaml:"decoder"`
	Optimizer         OptimizerConfig `yaml:"optimizer"`
	BeamWidth         int             `yaml:"beamWidth"`
	MaxDecodingLength int             `yaml:"maxDecodingLength"`
	NumEpochs         int             `yaml:"numEpochs"`
}

// EncoderConfig describes the two-level hierarchical encoder.
type EncoderConfig struct {
	MinorType string     `yaml:"minorType"`
	MinorCell CellConfig `yaml:"minorCell"`
	MajorType string     `yaml:"majorType"`
	MajorCell CellConfig `yaml:"majorCell"`
}

// DecoderConfig describes the RNN decoder.
type DecoderConfig struct {
	Cell CellConfig `yaml:"cell"`
}

// CellConfig describes one RNN cell.
type CellConfig struct {
	Type     string `yaml:"type"`
	NumUnits int    `yaml:"numUnits"`
}

// OptimizerConfig describes the optimizer used for training.
type OptimizerConfig struct {
	Type         string  `yaml:"type"`
	LearningRate float64 `yaml:"learningRate"`
}

// EvaluationConfig controls the BLEU evaluation pipeline.
type EvaluationConfig struct {
	Smoothing      string        `yaml:"smoothing" envconfig:"HRED_EVALUATION_SMOOTHING"`
	ScoreCache     bool          `yaml:"scoreCache" envconfig:"HRED_EVALUATION_SCORE_CACHE"`
	PersistReports bool          `yaml:"persistReports" envconfig:"HRED_EVALUATION_PERSIST_REPORTS"`
	PublishReports bool          `yaml:"publishReports" envconfig:"HRED_EVALUATION_PUBLISH_REPORTS"`
	SinkTimeout    time.Duration `yaml:"sinkTimeout" envconfig:"HRED_EVALUATION_SINK_TIMEOUT"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a validated Config populated with defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// ActiveProfile returns the model profile selected by Model.Profile.
func (c *Config) ActiveProfile() (ModelProfile, error) {
	return c.Model.Lookup(c.Model.Profile)
}

// Lookup returns the named profile.
func (m ModelConfig) Lookup(name string) (ModelProfile, error) {
	p, ok := m.Profiles[name]
	if !ok {
		return ModelProfile{}, fmt.Errorf("%w: %q (available: %v)", apperrors.ErrProfileNotFound, name, m.Names())
	}
	return p, nil
}

// Names returns the profile names in sorted order.
func (m ModelConfig) Names() []string {
	names := make([]string, 0, len(m.Profiles))
	for name := range m.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Evaluation.Smoothing == "" {
		return fmt.Errorf("evaluation.smoothing must be set")
	}
	if c.Data.MaxUtteranceCnt <= 0 {
		return fmt.Errorf("data.maxUtteranceCnt must be positive, got %d", c.Data.MaxUtteranceCnt)
	}
	if c.Data.BatchSize <= 0 {
		return fmt.Errorf("data.batchSize must be positive, got %d", c.Data.BatchSize)
	}
	for name, p := range c.Model.Profiles {
		if p.BeamWidth <= 0 {
			return fmt.Errorf("model profile %q: beamWidth must be positive", name)
		}
		if p.MaxDecodingLength <= 0 {
			return fmt.Errorf("model profile %q: maxDecodingLength must be positive", name)
		}
	}
	if _, err := c.ActiveProfile(); err != nil {
		return err
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		RPC: RPCConfig{
			Enabled: true,
			Port:    9000,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "hredeval",
			User:            "hredeval",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "hredeval-group",
			Topics: KafkaTopics{
				DecodedBatches:    "hred.decoded-batches",
				EvaluationReports: "hred.evaluation-reports",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Data: DataConfig{
			Root:            "./data",
			VocabFile:       "",
			MaxUtteranceCnt: 9,
			BatchSize:       30,
			StripBOS:        true,
		},
		Model: ModelConfig{
			Profile:  "biminor",
			Profiles: defaultProfiles(),
		},
		Evaluation: EvaluationConfig{
			Smoothing:   "method7",
			SinkTimeout: 10 * time.Second,
		},
	}
}

func defaultProfiles() map[string]ModelProfile {
	gru := func(units int) CellConfig { return CellConfig{Type: "GRUCell", NumUnits: units} }
	adam := OptimizerConfig{Type: "AdamOptimizer", LearningRate: 0.001}
	return map[string]ModelProfile{
		"biminor": {
			Encoder: EncoderConfig{
				MinorType: "BidirectionalRNNEncoder",
				MinorCell: gru(300),
				MajorType: "UnidirectionalRNNEncoder",
				MajorCell: gru(600),
			},
			Decoder:           DecoderConfig{Cell: gru(400)},
			Optimizer:         adam,
			BeamWidth:         5,
			MaxDecodingLength: 50,
			NumEpochs:         10,
		},
		"uniminor": {
			Encoder: EncoderConfig{
				MinorType: "UnidirectionalRNNEncoder",
				MinorCell: gru(300),
				MajorType: "UnidirectionalRNNEncoder",
				MajorCell: gru(600),
			},
			Decoder:           DecoderConfig{Cell: gru(400)},
			Optimizer:         adam,
			BeamWidth:         5,
			MaxDecodingLength: 50,
			NumEpochs:         10,
		},
	}
}

// applyEnvOverrides reads HRED_<SECTION>_<FIELD> environment variables and
// overrides the corresponding config fields.
func applyEnvOverrides(cfg *Config) error {
	sections := []any{
		&cfg.Server,
		&cfg.RPC,
		&cfg.Postgres,
		&cfg.Kafka,
		&cfg.Kafka.Topics,
		&cfg.Redis,
		&cfg.Logging,
		&cfg.Tracing,
		&cfg.Metrics,
		&cfg.Data,
		&cfg.Model,
		&cfg.Evaluation,
	}
	for _, spec := range sections {
		if err := envconfig.Process("", spec); err != nil {
			return fmt.Errorf("applying environment overrides: %w", err)
		}
	}
	return nil
}
