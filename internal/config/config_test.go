package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("MQTT_BROKER_URL", "tcp://localhost:1883")

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.OutputFormats != "txt,srt" {
			t.Errorf("OutputFormats = %q, want txt,srt", cfg.OutputFormats)
		}
		if cfg.MQTTClientID != "speaker-align" {
			t.Errorf("MQTTClientID = %q, want speaker-align", cfg.MQTTClientID)
		}
		if cfg.UnknownSpeaker != "UNKNOWN" {
			t.Errorf("UnknownSpeaker = %q, want UNKNOWN", cfg.UnknownSpeaker)
		}
		if cfg.Terminators != ".?!" {
			t.Errorf("Terminators = %q, want .?!", cfg.Terminators)
		}
		if cfg.Whisper.Model != "large-v3-turbo" {
			t.Errorf("Whisper.Model = %q, want large-v3-turbo", cfg.Whisper.Model)
		}
		if cfg.Whisper.BeamSize != 5 {
			t.Errorf("Whisper.BeamSize = %d, want 5", cfg.Whisper.BeamSize)
		}
		if cfg.Whisper.MinSilenceMs != 2000 {
			t.Errorf("Whisper.MinSilenceMs = %d, want 2000", cfg.Whisper.MinSilenceMs)
		}
		if !cfg.Whisper.VADFilter {
			t.Error("Whisper.VADFilter = false, want true")
		}
		if cfg.Diarize.Timeout != 10*time.Minute {
			t.Errorf("Diarize.Timeout = %v, want 10m", cfg.Diarize.Timeout)
		}
		if cfg.S3.Enabled() {
			t.Error("S3.Enabled() = true with no bucket")
		}
		if !cfg.SaveOutput {
			t.Error("SaveOutput = false, want true")
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:       "nonexistent.env",
			HTTPAddr:      ":9090",
			LogLevel:      "debug",
			DatabaseURL:   "postgres://override/db",
			MQTTBrokerURL: "tcp://override:1883",
			OutputDir:     "/tmp/out",
			OutputFormats: "md",
			WatchDir:      "/tmp/watch",
			SpeakerNames:  "names.yaml",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.DatabaseURL != "postgres://override/db" {
			t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
		}
		if cfg.MQTTBrokerURL != "tcp://override:1883" {
			t.Errorf("MQTTBrokerURL = %q, want override", cfg.MQTTBrokerURL)
		}
		if cfg.OutputDir != "/tmp/out" {
			t.Errorf("OutputDir = %q, want /tmp/out", cfg.OutputDir)
		}
		if cfg.OutputFormats != "md" {
			t.Errorf("OutputFormats = %q, want md", cfg.OutputFormats)
		}
		if cfg.WatchDir != "/tmp/watch" {
			t.Errorf("WatchDir = %q, want /tmp/watch", cfg.WatchDir)
		}
		if cfg.SpeakerNames != "names.yaml" {
			t.Errorf("SpeakerNames = %q, want names.yaml", cfg.SpeakerNames)
		}
	})

	t.Run("empty_overrides_use_env", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.DatabaseURL != "postgres://localhost/test" {
			t.Errorf("DatabaseURL = %q, want env value", cfg.DatabaseURL)
		}
		if cfg.MQTTBrokerURL != "tcp://localhost:1883" {
			t.Errorf("MQTTBrokerURL = %q, want env value", cfg.MQTTBrokerURL)
		}
	})
}

func TestLoadNestedPrefixes(t *testing.T) {
	t.Setenv("WHISPER_URL", "http://whisper:9000")
	t.Setenv("WHISPER_TEMPERATURE", "0.2")
	t.Setenv("DIARIZE_NUM_SPEAKERS", "3")
	t.Setenv("S3_BUCKET", "transcripts")
	t.Setenv("PREPROCESS_TRIM_SECONDS", "30")
	t.Setenv("CORS_ORIGINS", "http://a.example,http://b.example")

	cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Whisper.URL != "http://whisper:9000" {
		t.Errorf("Whisper.URL = %q", cfg.Whisper.URL)
	}
	if cfg.Whisper.Temperature != 0.2 {
		t.Errorf("Whisper.Temperature = %v, want 0.2", cfg.Whisper.Temperature)
	}
	if cfg.Diarize.NumSpeakers != 3 {
		t.Errorf("Diarize.NumSpeakers = %d, want 3", cfg.Diarize.NumSpeakers)
	}
	if !cfg.S3.Enabled() || cfg.S3.Region != "us-east-1" {
		t.Errorf("S3 = %+v, want enabled in us-east-1", cfg.S3)
	}
	if cfg.Preproc.TrimSeconds != 30 {
		t.Errorf("Preproc.TrimSeconds = %v, want 30", cfg.Preproc.TrimSeconds)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v, want 2 entries", cfg.CORSOrigins)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("OUTPUT_FORMATS=csv,json\nWORKERS=4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides variables that are already set.
	t.Setenv("WORKERS", "6")
	t.Setenv("OUTPUT_FORMATS", "")
	os.Unsetenv("OUTPUT_FORMATS")

	cfg, err := Load(Overrides{EnvFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputFormats != "csv,json" {
		t.Errorf("OutputFormats = %q, want csv,json from env file", cfg.OutputFormats)
	}
	if cfg.Workers != 6 {
		t.Errorf("Workers = %d, want 6 from environment", cfg.Workers)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero_workers", "WORKERS", "0"},
		{"zero_queue", "QUEUE_SIZE", "0"},
		{"bad_duration", "HTTP_READ_TIMEOUT", "soon"},
		{"negative_trim", "PREPROCESS_TRIM_SECONDS", "-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}

	t.Run("speaker_bounds", func(t *testing.T) {
		t.Setenv("DIARIZE_MIN_SPEAKERS", "4")
		t.Setenv("DIARIZE_MAX_SPEAKERS", "2")
		if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
			t.Error("expected error when min speakers exceeds max")
		}
	})
}
