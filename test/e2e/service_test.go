//go:build e2e

// Package e2e contains end-to-end tests against a running evaluation
// service: batches go in through Kafka, reports come out over HTTP and RPC.
//
// Prerequisites:
//   - hredeval serve running with its default config
//   - Kafka reachable at E2E_KAFKA_BROKERS
//
// Run with:
//
//	go test -v -tags=e2e -timeout=120s ./test/e2e/...
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/report"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/proto"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

type e2eConfig struct {
	ServiceURL   string
	RPCAddr      string
	KafkaBrokers []string
	BatchTopic   string
}

func loadE2EConfig() e2eConfig {
	return e2eConfig{
		ServiceURL:   envOrDefault("E2E_SERVICE_URL", "http://localhost:8080"),
		RPCAddr:      envOrDefault("E2E_RPC_ADDR", "localhost:9000"),
		KafkaBrokers: strings.Split(envOrDefault("E2E_KAFKA_BROKERS", "localhost:9092"), ","),
		BatchTopic:   envOrDefault("E2E_BATCH_TOPIC", "hred.decoded-batches"),
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestServiceHealth verifies the liveness and readiness checks.
func TestServiceHealth(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}
	for _, path := range []string{"/health/live", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			resp, err := client.Get(cfg.ServiceURL + path)
			if err != nil {
				t.Skipf("service unavailable: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("expected 200, got %d: %s", resp.StatusCode, body)
			}
		})
	}
}

// TestPublishAndReport publishes one pass to the decoded-batches topic and
// polls the API until its report shows up.
func TestPublishAndReport(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}
	if _, err := client.Get(cfg.ServiceURL + "/health/live"); err != nil {
		t.Skipf("service unavailable: %v", err)
	}

	runID := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	producer := kafka.NewProducer(config.KafkaConfig{Brokers: cfg.KafkaBrokers}, cfg.BatchTopic)
	defer producer.Close()

	batch := dataset.Batch{
		RunID: runID,
		Epoch: 9,
		Examples: []dataset.Example{{
			Beam:       [][]int{{5, 6}, {8, 9}},
			References: [][]int{{5, 6, 7}},
		}},
	}
	marker := dataset.Batch{RunID: runID, Epoch: 9, Index: 1, Final: true}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := producer.PublishBatch(ctx, []kafka.Event{
		{Key: runID, Value: batch},
		{Key: runID, Value: marker},
	})
	if err != nil {
		t.Skipf("kafka unavailable: %v", err)
	}

	t.Log("waiting for the pass to be evaluated...")
	var found *evaluation.Report
	for attempt := 0; attempt < 30 && found == nil; attempt++ {
		time.Sleep(1 * time.Second)
		resp, err := client.Get(cfg.ServiceURL + "/api/v1/reports?run_id=" + runID)
		if err != nil {
			t.Logf("attempt %d: request failed: %v", attempt, err)
			continue
		}
		var body struct {
			Reports []evaluation.Report `json:"reports"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if len(body.Reports) > 0 {
			found = &body.Reports[0]
		}
	}
	if found == nil {
		t.Fatalf("no report for run %s within 30s", runID)
	}
	if found.Epoch != 9 || found.BLEU == nil {
		t.Fatalf("unexpected report %+v", found)
	}
	if found.BLEU.Precision[0] != 0.4043537731417556 || found.BLEU.Recall[0] != 0.8087075462835112 {
		t.Errorf("unexpected bleu-1 precision/recall %v/%v", found.BLEU.Precision[0], found.BLEU.Recall[0])
	}
}

// TestScoreOverHTTPAndRPC checks that both surfaces agree.
func TestScoreOverHTTPAndRPC(t *testing.T) {
	cfg := loadE2EConfig()
	req := proto.ScoreRequest{
		BeamText:       [][]string{{"i", "am", "fine"}},
		ReferencesText: [][]string{{"i", "am", "fine", "thanks"}},
	}
	payload, _ := json.Marshal(req)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(cfg.ServiceURL+"/api/v1/score", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Skipf("service unavailable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var overHTTP proto.ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&overHTTP); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rpc, err := grpc.Dial(ctx, cfg.RPCAddr)
	if err != nil {
		t.Skipf("rpc server unavailable: %v", err)
	}
	defer rpc.Close()
	overRPC, err := report.NewRemoteScorer(rpc).Score(ctx, req)
	if err != nil {
		t.Fatalf("rpc score: %v", err)
	}
	for i := range overHTTP.Precision {
		if overHTTP.Precision[i] != overRPC.Precision[i] || overHTTP.Recall[i] != overRPC.Recall[i] {
			t.Errorf("bleu-%d: http %v/%v, rpc %v/%v", i+1,
				overHTTP.Precision[i], overHTTP.Recall[i], overRPC.Precision[i], overRPC.Recall[i])
		}
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
