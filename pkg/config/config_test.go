package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Evaluation.Smoothing != "method7" {
		t.Errorf("expected method7 smoothing, got %q", cfg.Evaluation.Smoothing)
	}
	if cfg.Data.MaxUtteranceCnt != 9 {
		t.Errorf("expected maxUtteranceCnt=9, got %d", cfg.Data.MaxUtteranceCnt)
	}
	p, err := cfg.ActiveProfile()
	if err != nil {
		t.Fatalf("ActiveProfile: %v", err)
	}
	if p.BeamWidth != 5 || p.MaxDecodingLength != 50 {
		t.Errorf("unexpected biminor profile: %+v", p)
	}
	if p.Encoder.MinorType != "BidirectionalRNNEncoder" {
		t.Errorf("expected bidirectional minor encoder, got %q", p.Encoder.MinorType)
	}
	if got := cfg.Model.Names(); strings.Join(got, ",") != "biminor,uniminor" {
		t.Errorf("unexpected profile names %v", got)
	}
}

func TestLoadYAMLAddsProfile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8181
  readTimeout: 5s
model:
  profile: tiny
  profiles:
    tiny:
      beamWidth: 3
      maxDecodingLength: 20
      decoder:
        cell:
          type: LSTMCell
          numUnits: 64
evaluation:
  smoothing: method4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("expected port 8181, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("expected 5s read timeout, got %v", cfg.Server.ReadTimeout)
	}
	p, err := cfg.ActiveProfile()
	if err != nil {
		t.Fatalf("ActiveProfile: %v", err)
	}
	if p.BeamWidth != 3 || p.Decoder.Cell.Type != "LSTMCell" {
		t.Errorf("unexpected tiny profile: %+v", p)
	}
	if _, err := cfg.Model.Lookup("biminor"); err != nil {
		t.Errorf("built-in profile should survive YAML merge: %v", err)
	}
	if cfg.Evaluation.Smoothing != "method4" {
		t.Errorf("expected method4, got %q", cfg.Evaluation.Smoothing)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HRED_SERVER_PORT", "7070")
	t.Setenv("HRED_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("HRED_KAFKA_TOPIC_DECODED_BATCHES", "custom-batches")
	t.Setenv("HRED_MODEL_PROFILE", "uniminor")
	t.Setenv("HRED_REDIS_CACHE_TTL", "90s")
	t.Setenv("HRED_EVALUATION_SCORE_CACHE", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Topics.DecodedBatches != "custom-batches" {
		t.Errorf("unexpected topic %q", cfg.Kafka.Topics.DecodedBatches)
	}
	if cfg.Model.Profile != "uniminor" {
		t.Errorf("expected uniminor, got %q", cfg.Model.Profile)
	}
	if cfg.Redis.CacheTTL != 90*time.Second {
		t.Errorf("expected 90s TTL, got %v", cfg.Redis.CacheTTL)
	}
	if !cfg.Evaluation.ScoreCache {
		t.Error("expected score cache enabled")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown profile", "model:\n  profile: nope\n", "unknown model profile"},
		{"bad beam width", "model:\n  profiles:\n    biminor:\n      beamWidth: 0\n      maxDecodingLength: 10\n", "beamWidth"},
		{"bad port", "server:\n  port: 0\n", "server.port"},
		{"no smoothing", "evaluation:\n  smoothing: \"\"\n", "smoothing"},
		{"bad batch size", "data:\n  batchSize: 0\n", "data.batchSize"},
		{"bad utterance count", "data:\n  maxUtteranceCnt: -1\n", "data.maxUtteranceCnt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	want := "host=db port=5433 user=u password=p dbname=d sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
