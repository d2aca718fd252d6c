package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/bleu"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/tracing"
	"github.com/rs/zerolog"
)

// Options configures an Evaluator.
type Options struct {
	// Smoothing names the bleu smoothing method. Empty means "method7".
	Smoothing string
	// Scorer overrides the pair scorer built from Smoothing, e.g. with a
	// cache in front of it.
	Scorer PairScorer
	// Truncator defaults to dataset.DefaultTruncator(true).
	Truncator dataset.Truncator

	Vocabulary *dataset.Vocabulary
	// MaxReferences bounds the reference rows of an example; zero disables
	// the check.
	MaxReferences int
	ProfileName   string
	Profile     config.ModelProfile
	Metrics     *metrics.Metrics
	// Trace logs the span tree of every run.
	Trace bool
}

// RunOptions identifies one evaluation pass.
type RunOptions struct {
	// RunID defaults to the first batch's run id, then to a timestamp.
	RunID string
	// Epoch overrides the epoch carried by the batches.
	Epoch *int
}

// Evaluator runs evaluation passes. Runs are sequential: one batch at a
// time, one accumulator per run.
type Evaluator struct {
	opts    Options
	prepare Preparer
	scorer  PairScorer
	logger  zerolog.Logger
}

// New builds an Evaluator. It fails for an unknown smoothing method.
func New(opts Options) (*Evaluator, error) {
	if opts.Smoothing == "" {
		opts.Smoothing = "method7"
	}
	if opts.Truncator == (dataset.Truncator{}) {
		opts.Truncator = dataset.DefaultTruncator(true)
	}
	scorer := opts.Scorer
	if scorer == nil {
		smooth, err := bleu.SmootherByName(opts.Smoothing)
		if err != nil {
			return nil, err
		}
		scorer = BLEUScorer{Smooth: smooth}
	}
	return &Evaluator{
		opts: opts,
		prepare: Preparer{
			Vocabulary:        opts.Vocabulary,
			Truncator:         opts.Truncator,
			MaxDecodingLength: opts.Profile.MaxDecodingLength,
			MaxReferences:     opts.MaxReferences,
		},
		scorer: scorer,
		logger: logger.WithComponent("evaluator"),
	}, nil
}

type runState struct {
	report *Report
	acc    Accumulator
	ppl    PerplexityMeter
}

// Run consumes src until dataset.ErrEndOfStream and returns the pass report.
// Malformed input and source failures stop the run; a cancelled context
// returns the context's error and no report. A pass that produced neither a
// BLEU aggregate nor a perplexity fails with ErrNoExamples.
func (e *Evaluator) Run(ctx context.Context, src dataset.Source, opts RunOptions) (*Report, error) {
	st := &runState{report: &Report{
		RunID:     opts.RunID,
		Profile:   e.opts.ProfileName,
		Smoothing: e.opts.Smoothing,
		Skipped:   make(map[string]int),
		StartedAt: time.Now().UTC(),
	}}
	if opts.Epoch != nil {
		st.report.Epoch = *opts.Epoch
	}

	ctx, span := tracing.StartSpan(ctx, "evaluate", opts.RunID)
	defer func() {
		span.End()
		if e.opts.Trace {
			span.Log()
		}
	}()

	for {
		batch, err := src.Next(ctx)
		if errors.Is(err, dataset.ErrEndOfStream) {
			break
		}
		if err != nil {
			e.countRun("error")
			return nil, fmt.Errorf("reading batch %d: %w", st.report.Batches, err)
		}
		if st.report.Batches == 0 {
			e.adoptIdentity(st.report, batch, opts)
			span.TraceID = st.report.RunID
		}
		if err := e.scoreBatch(ctx, batch, st); err != nil {
			e.countRun("error")
			return nil, err
		}
		st.report.Batches++
	}

	rep := st.report
	rep.FinishedAt = time.Now().UTC()
	if rep.RunID == "" {
		rep.RunID = "run-" + strconv.FormatInt(rep.StartedAt.UnixNano(), 10)
	}
	if corpus, err := st.acc.Result(); err == nil {
		rep.BLEU = &corpus
	}
	if p, ok := st.ppl.Mean(); ok {
		rep.Perplexity = &p
	}
	span.SetAttr("batches", rep.Batches)
	span.SetAttr("examples", rep.ExamplesScored)

	if rep.BLEU == nil && rep.Perplexity == nil {
		e.countRun("empty")
		e.logger.Warn().
			Str("run_id", rep.RunID).
			Int("batches", rep.Batches).
			Int("skipped", rep.SkippedTotal()).
			Msg("evaluation pass had nothing to aggregate")
		return nil, fmt.Errorf("run %s: %w", rep.RunID, ErrNoExamples)
	}

	e.countRun("ok")
	e.observeReport(rep)
	e.logger.Info().
		Str("run_id", rep.RunID).
		Int("epoch", rep.Epoch).
		Int("batches", rep.Batches).
		Int("examples", rep.ExamplesScored).
		Int("skipped", rep.SkippedTotal()).
		Dur("elapsed", rep.FinishedAt.Sub(rep.StartedAt)).
		Msg("evaluation pass complete")
	return rep, nil
}

func (e *Evaluator) adoptIdentity(rep *Report, b *dataset.Batch, opts RunOptions) {
	if rep.RunID == "" {
		rep.RunID = b.RunID
	}
	if opts.Epoch == nil {
		rep.Epoch = b.Epoch
	}
}

func (e *Evaluator) scoreBatch(ctx context.Context, b *dataset.Batch, st *runState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := tracing.StartChildSpan(ctx, "batch")
	defer span.End()
	span.SetAttr("batch", b.Index)
	start := time.Now()

	if b.Loss != nil {
		st.ppl.Observe(*b.Loss)
	}

	for i := range b.Examples {
		ex := &b.Examples[i]
		beam, refs, err := e.prepare.Prepare(ex)
		if err != nil {
			return fmt.Errorf("batch %d example %d: %w", b.Index, i, err)
		}
		e.checkBeamWidth(ex)
		if reason := DegenerateReason(beam, refs); reason != "" {
			e.logger.Warn().
				Int("batch", b.Index).
				Int("example", i).
				Str("id", ex.ID).
				Str("reason", reason).
				Msg("skipping degenerate example")
			st.report.Skipped[reason]++
			if e.opts.Metrics != nil {
				e.opts.Metrics.ExamplesSkippedTotal.WithLabelValues(reason).Inc()
			}
			continue
		}
		agg, err := ScoreExample(ctx, e.scorer, beam, refs)
		if err != nil {
			return fmt.Errorf("batch %d example %d: %w", b.Index, i, err)
		}
		st.acc.Add(agg)
		st.report.ExamplesScored++
		if e.opts.Metrics != nil {
			e.opts.Metrics.ExamplesScoredTotal.Inc()
			e.opts.Metrics.PairsScoredTotal.Add(float64(len(beam) * len(refs)))
		}
	}

	if e.opts.Metrics != nil {
		e.opts.Metrics.BatchesTotal.Inc()
		e.opts.Metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}
	e.logger.Debug().
		Int("batch", b.Index).
		Int("examples", len(b.Examples)).
		Dur("elapsed", time.Since(start)).
		Msg("batch scored")
	return nil
}

// checkBeamWidth notes beams narrower or wider than the profile's. Beam
// width is advisory only, since the decoder may return fewer hypotheses than
// requested.
func (e *Evaluator) checkBeamWidth(ex *dataset.Example) {
	if w := e.opts.Profile.BeamWidth; w > 0 && len(ex.Beam) != w {
		e.logger.Debug().
			Int("beam", len(ex.Beam)).
			Int("expected", w).
			Msg("beam width differs from the model profile")
	}
}

func (e *Evaluator) countRun(outcome string) {
	if e.opts.Metrics != nil {
		e.opts.Metrics.RunsTotal.WithLabelValues(outcome).Inc()
	}
}

func (e *Evaluator) observeReport(rep *Report) {
	m := e.opts.Metrics
	if m == nil {
		return
	}
	if rep.BLEU != nil {
		for o := range rep.BLEU.Precision {
			order := strconv.Itoa(o + 1)
			m.BLEUPrecision.WithLabelValues(order).Set(rep.BLEU.Precision[o])
			m.BLEURecall.WithLabelValues(order).Set(rep.BLEU.Recall[o])
		}
	}
	if rep.Perplexity != nil {
		m.Perplexity.Set(*rep.Perplexity)
	}
}
