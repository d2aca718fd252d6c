//go:build integration

// Package integration contains tests that verify the interaction between
// the evaluator, the PostgreSQL report store and the HTTP API. They need a
// reachable PostgreSQL and are skipped otherwise.
//
// Run with:
//
//	go test -v -tags=integration ./test/integration/...
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/report"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/proto"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	db, err := postgres.New(testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "hredeval_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "hredeval"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func newStore(t *testing.T) *report.Store {
	t.Helper()
	store := report.NewStore(skipIfNoPostgres(t))
	if err := store.EnsureSchema(t.Context()); err != nil {
		t.Fatalf("ensuring schema: %v", err)
	}
	return store
}

// evaluate runs one pass over a single example: references [5 6 7],
// candidates [5 6] and [8 9].
func evaluate(t *testing.T, runID string, epoch int) *evaluation.Report {
	t.Helper()
	ev, err := evaluation.New(evaluation.Options{ProfileName: "biminor"})
	if err != nil {
		t.Fatalf("creating evaluator: %v", err)
	}
	loss := 2.0
	src := dataset.NewSliceSource(dataset.Batch{
		RunID: runID,
		Epoch: epoch,
		Loss:  &loss,
		Examples: []dataset.Example{{
			Beam:       [][]int{{5, 6}, {8, 9}},
			References: [][]int{{5, 6, 7}},
		}},
	})
	rep, err := ev.Run(t.Context(), src, evaluation.RunOptions{})
	if err != nil {
		t.Fatalf("running evaluation: %v", err)
	}
	return rep
}

func uniqueRunID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestStoreRoundTrip saves two epochs of a run and reads them back.
func TestStoreRoundTrip(t *testing.T) {
	store := newStore(t)
	runID := uniqueRunID("store")

	first := evaluate(t, runID, 0)
	second := evaluate(t, runID, 1)
	for _, rep := range []*evaluation.Report{first, second} {
		if err := store.Save(t.Context(), rep); err != nil {
			t.Fatalf("saving epoch %d: %v", rep.Epoch, err)
		}
	}

	reports, err := store.ForRun(t.Context(), runID)
	if err != nil {
		t.Fatalf("ForRun: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports for %s, got %d", runID, len(reports))
	}

	latest, err := store.Latest(t.Context())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.RunID != runID || latest.Epoch != 1 {
		t.Errorf("expected latest %s epoch 1, got %s epoch %d", runID, latest.RunID, latest.Epoch)
	}
	if latest.BLEU == nil {
		t.Fatal("expected BLEU aggregate to survive the round trip")
	}
	if latest.BLEU.Precision != second.BLEU.Precision || latest.BLEU.Recall != second.BLEU.Recall {
		t.Errorf("expected %+v, got %+v", *second.BLEU, *latest.BLEU)
	}
	if latest.Perplexity == nil || *latest.Perplexity != *second.Perplexity {
		t.Errorf("expected perplexity %v, got %v", *second.Perplexity, latest.Perplexity)
	}

	listed, err := store.List(t.Context(), 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("expected 1 report with limit 1, got %d", len(listed))
	}
}

// TestHandlerServesStoredReports wires the HTTP API to the PostgreSQL store.
func TestHandlerServesStoredReports(t *testing.T) {
	store := newStore(t)
	runID := uniqueRunID("http")
	if err := store.Save(t.Context(), evaluate(t, runID, 4)); err != nil {
		t.Fatalf("saving report: %v", err)
	}

	mux := http.NewServeMux()
	scores := report.NewScoreService(evaluation.BLEUScorer{}, evaluation.Preparer{})
	report.NewHandler(store, scores, nil).Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/reports?run_id=" + runID)
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Reports []evaluation.Report `json:"reports"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Reports) != 1 || body.Reports[0].Epoch != 4 {
		t.Errorf("expected one epoch-4 report, got %+v", body.Reports)
	}
}

// TestHandlerScore posts an ad-hoc example through the API.
func TestHandlerScore(t *testing.T) {
	store := newStore(t)
	mux := http.NewServeMux()
	report.NewHandler(store, report.NewScoreService(evaluation.BLEUScorer{}, evaluation.Preparer{}), nil).Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	payload, _ := json.Marshal(proto.ScoreRequest{
		Beam:       [][]int{{5, 6}, {8, 9}},
		References: [][]int{{5, 6, 7}},
	})
	resp, err := http.Post(srv.URL+"/api/v1/score", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("score request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got proto.ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Precision[0] != 0.4043537731417556 || got.Recall[0] != 0.8087075462835112 {
		t.Errorf("unexpected bleu-1 precision/recall %v/%v", got.Precision[0], got.Recall[0])
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
