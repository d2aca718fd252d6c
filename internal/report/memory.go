package report

import (
	"context"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/evaluation"
	apperrors "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/errors"
)

const defaultHistory = 100

// Memory keeps the most recent reports in process. It backs the HTTP and
// RPC surfaces when no database is configured.
type Memory struct {
	mu      sync.RWMutex
	reports []evaluation.Report // oldest first
	limit   int
}

// NewMemory keeps at most limit reports; non-positive means 100.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = defaultHistory
	}
	return &Memory{limit: limit}
}

func (m *Memory) Save(_ context.Context, rep *evaluation.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, *rep)
	if over := len(m.reports) - m.limit; over > 0 {
		m.reports = append([]evaluation.Report(nil), m.reports[over:]...)
	}
	return nil
}

func (m *Memory) Latest(_ context.Context) (*evaluation.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.reports) == 0 {
		return nil, apperrors.ErrReportNotFound
	}
	rep := m.reports[len(m.reports)-1]
	return &rep, nil
}

func (m *Memory) List(_ context.Context, limit int) ([]evaluation.Report, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]evaluation.Report, 0, min(limit, len(m.reports)))
	for i := len(m.reports) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.reports[i])
	}
	return out, nil
}

func (m *Memory) ForRun(_ context.Context, runID string) ([]evaluation.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []evaluation.Report
	for i := len(m.reports) - 1; i >= 0; i-- {
		if m.reports[i].RunID == runID {
			out = append(out, m.reports[i])
		}
	}
	return out, nil
}
