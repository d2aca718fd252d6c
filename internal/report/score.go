package report

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/evaluation"
	apperrors "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/proto"
)

// ScoreService scores single ad-hoc examples for the HTTP and RPC surfaces.
type ScoreService struct {
	scorer  evaluation.PairScorer
	prepare evaluation.Preparer
}

// NewScoreService scores with scorer after running every example through
// prepare, the same resolution, validation and truncation a pass applies.
func NewScoreService(scorer evaluation.PairScorer, prepare evaluation.Preparer) *ScoreService {
	return &ScoreService{scorer: scorer, prepare: prepare}
}

// Score aggregates one example. Malformed examples and examples left with
// an empty beam or no references are rejected as invalid input.
func (s *ScoreService) Score(ctx context.Context, req proto.ScoreRequest) (*proto.ScoreResponse, error) {
	ex := dataset.Example{
		Beam:           req.Beam,
		References:     req.References,
		BeamText:       req.BeamText,
		ReferencesText: req.ReferencesText,
	}
	beam, refs, err := s.prepare.Prepare(&ex)
	if err != nil {
		return nil, err
	}
	if reason := evaluation.DegenerateReason(beam, refs); reason != "" {
		return nil, apperrors.Invalidf("degenerate example: %s", reason)
	}

	agg, err := evaluation.ScoreExample(ctx, s.scorer, beam, refs)
	if err != nil {
		return nil, err
	}
	return &proto.ScoreResponse{
		Precision: agg.Precision[:],
		Recall:    agg.Recall[:],
		Pairs:     len(beam) * len(refs),
	}, nil
}
