package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" envSeparator:","`
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"512"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"30"`
	LogPretty     bool   `env:"LOG_PRETTY" envDefault:"false"`

	// Optional backends. Empty disables the component.
	DatabaseURL     string `env:"DATABASE_URL"`
	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"speaker-align"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`
	MQTTJobTopic    string `env:"MQTT_JOB_TOPIC" envDefault:"speaker-align/jobs"`
	MQTTResultTopic string `env:"MQTT_RESULT_TOPIC" envDefault:"speaker-align/results"`

	S3 S3Config `envPrefix:"S3_"`

	OutputDir     string `env:"OUTPUT_DIR" envDefault:"./output"`
	OutputFormats string `env:"OUTPUT_FORMATS" envDefault:"txt,srt"`
	SaveOutput    bool   `env:"SAVE_OUTPUT" envDefault:"true"`
	UploadDir     string `env:"UPLOAD_DIR" envDefault:"./uploads"`

	UploadRetention time.Duration `env:"UPLOAD_RETENTION" envDefault:"168h"`
	UploadMaxGB     int           `env:"UPLOAD_MAX_GB"`

	WatchDir      string `env:"WATCH_DIR"`
	WatchBackfill bool   `env:"WATCH_BACKFILL" envDefault:"true"`

	Whisper WhisperConfig `envPrefix:"WHISPER_"`
	Diarize DiarizeConfig `envPrefix:"DIARIZE_"`
	Preproc PreprocConfig `envPrefix:"PREPROCESS_"`

	Workers   int `env:"WORKERS" envDefault:"2"`
	QueueSize int `env:"QUEUE_SIZE" envDefault:"100"`

	UnknownSpeaker string `env:"UNKNOWN_SPEAKER" envDefault:"UNKNOWN"`
	SpeakerNames   string `env:"SPEAKER_NAMES_FILE"`
	Terminators    string `env:"SENTENCE_TERMINATORS" envDefault:".?!"`
}

type S3Config struct {
	Bucket        string        `env:"BUCKET"`
	Region        string        `env:"REGION" envDefault:"us-east-1"`
	Endpoint      string        `env:"ENDPOINT"`
	AccessKey     string        `env:"ACCESS_KEY"`
	SecretKey     string        `env:"SECRET_KEY"`
	Prefix        string        `env:"PREFIX"`
	PresignExpiry time.Duration `env:"PRESIGN_EXPIRY" envDefault:"1h"`
	LocalCopy     bool          `env:"LOCAL_COPY" envDefault:"false"`
}

// Enabled reports whether rendered outputs go to S3 instead of OutputDir.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

type WhisperConfig struct {
	URL          string        `env:"URL"`
	Model        string        `env:"MODEL" envDefault:"large-v3-turbo"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"5m"`
	Language     string        `env:"LANGUAGE"`
	Temperature  float64       `env:"TEMPERATURE" envDefault:"0"`
	BeamSize     int           `env:"BEAM_SIZE" envDefault:"5"`
	VADFilter    bool          `env:"VAD_FILTER" envDefault:"true"`
	MinSilenceMs int           `env:"MIN_SILENCE_MS" envDefault:"2000"`
	Prompt       string        `env:"PROMPT"`
	MaxRetries   uint64        `env:"MAX_RETRIES" envDefault:"3"`
}

type DiarizeConfig struct {
	URL         string        `env:"URL"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"10m"`
	NumSpeakers int           `env:"NUM_SPEAKERS"`
	MinSpeakers int           `env:"MIN_SPEAKERS"`
	MaxSpeakers int           `env:"MAX_SPEAKERS"`
	MaxRetries  uint64        `env:"MAX_RETRIES" envDefault:"3"`
}

type PreprocConfig struct {
	Enabled     bool    `env:"ENABLED" envDefault:"true"`
	TrimSeconds float64 `env:"TRIM_SECONDS"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	DatabaseURL   string
	MQTTBrokerURL string
	OutputDir     string
	OutputFormats string
	WatchDir      string
	SpeakerNames  string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	apply := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	apply(&cfg.HTTPAddr, overrides.HTTPAddr)
	apply(&cfg.LogLevel, overrides.LogLevel)
	apply(&cfg.DatabaseURL, overrides.DatabaseURL)
	apply(&cfg.MQTTBrokerURL, overrides.MQTTBrokerURL)
	apply(&cfg.OutputDir, overrides.OutputDir)
	apply(&cfg.OutputFormats, overrides.OutputFormats)
	apply(&cfg.WatchDir, overrides.WatchDir)
	apply(&cfg.SpeakerNames, overrides.SpeakerNames)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be at least 1, got %d", c.QueueSize)
	}
	if c.Terminators == "" {
		return fmt.Errorf("SENTENCE_TERMINATORS must not be empty")
	}
	d := c.Diarize
	if d.MinSpeakers > 0 && d.MaxSpeakers > 0 && d.MinSpeakers > d.MaxSpeakers {
		return fmt.Errorf("DIARIZE_MIN_SPEAKERS (%d) exceeds DIARIZE_MAX_SPEAKERS (%d)", d.MinSpeakers, d.MaxSpeakers)
	}
	if c.Preproc.TrimSeconds < 0 {
		return fmt.Errorf("PREPROCESS_TRIM_SECONDS must not be negative")
	}
	return nil
}
