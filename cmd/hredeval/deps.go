package main

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/bleu"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/evaluation/scorecache"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/report"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/redis"
)

// scoring is the pair scorer a command evaluates with, plus the Redis
// connection behind its cache when one is in use.
type scoring struct {
	scorer evaluation.PairScorer
	cache  *scorecache.Cache
	redis  *pkgredis.Client
}

func (s *scoring) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
}

// newScoring builds the BLEU scorer for evaluation.smoothing. With
// evaluation.scoreCache set it is fronted by the Redis score cache; an
// unreachable Redis only disables the cache.
func (a *app) newScoring(m *metrics.Metrics) (*scoring, error) {
	smooth, err := bleu.SmootherByName(a.cfg.Evaluation.Smoothing)
	if err != nil {
		return nil, err
	}
	base := evaluation.BLEUScorer{Smooth: smooth}
	if !a.cfg.Evaluation.ScoreCache {
		return &scoring{scorer: base}, nil
	}

	client, err := pkgredis.NewClient(a.cfg.Redis)
	if err != nil {
		l := logger.WithComponent("hredeval")
		l.Warn().Err(err).Str("addr", a.cfg.Redis.Addr).Msg("score cache disabled")
		return &scoring{scorer: base}, nil
	}
	cache := scorecache.New(client, base, a.cfg.Evaluation.Smoothing, a.cfg.Redis.CacheTTL, m)
	return &scoring{scorer: cache, cache: cache, redis: client}, nil
}

// vocabulary loads data.vocabFile. It returns nil when none is configured.
func (a *app) vocabulary() (*dataset.Vocabulary, error) {
	path := a.dataPath(a.cfg.Data.VocabFile)
	if path == "" {
		return nil, nil
	}
	return dataset.LoadVocabulary(path)
}

// evaluator builds an Evaluator for the named profile; empty selects
// model.profile.
func (a *app) evaluator(profileName string, scorer evaluation.PairScorer, vocab *dataset.Vocabulary, m *metrics.Metrics) (*evaluation.Evaluator, error) {
	if profileName == "" {
		profileName = a.cfg.Model.Profile
	}
	profile, err := a.cfg.Model.Lookup(profileName)
	if err != nil {
		return nil, err
	}
	return evaluation.New(evaluation.Options{
		Smoothing:   a.cfg.Evaluation.Smoothing,
		Scorer:      scorer,
		Truncator:     dataset.DefaultTruncator(a.cfg.Data.StripBOS),
		Vocabulary:    vocab,
		MaxReferences: a.cfg.Data.MaxUtteranceCnt,
		ProfileName:   profileName,
		Profile:       profile,
		Metrics:       m,
		Trace:         a.cfg.Tracing.Enabled,
	})
}

// scoreService scores ad-hoc examples with the rules a pass over the active
// profile applies.
func (a *app) scoreService(scorer evaluation.PairScorer, vocab *dataset.Vocabulary) (*report.ScoreService, error) {
	profile, err := a.cfg.ActiveProfile()
	if err != nil {
		return nil, err
	}
	return report.NewScoreService(scorer, evaluation.Preparer{
		Vocabulary:        vocab,
		Truncator:         dataset.DefaultTruncator(a.cfg.Data.StripBOS),
		MaxDecodingLength: profile.MaxDecodingLength,
		MaxReferences:     a.cfg.Data.MaxUtteranceCnt,
	}), nil
}

// openStore connects to PostgreSQL and creates the report tables if needed.
// The caller closes the returned client.
func (a *app) openStore(ctx context.Context) (*report.Store, *postgres.Client, error) {
	db, err := postgres.New(a.cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	store := report.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}
