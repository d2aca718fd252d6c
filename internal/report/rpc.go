package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/evaluation"
	apperrors "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/proto"
)

// RPCService exposes scoring and report lookup on the JSON-over-TCP RPC
// server.
type RPCService struct {
	reports Reader
	scores  *ScoreService
}

func NewRPCService(reports Reader, scores *ScoreService) *RPCService {
	return &RPCService{reports: reports, scores: scores}
}

// Register adds the service's methods to s.
func (svc *RPCService) Register(s *grpc.Server) {
	s.Register(proto.MethodScore, svc.score)
	s.Register(proto.MethodLatestReport, svc.latestReport)
	s.Register(proto.MethodHealth, func(context.Context, json.RawMessage) (any, error) {
		return &proto.HealthCheckResponse{Status: "SERVING"}, nil
	})
}

func (svc *RPCService) score(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.ScoreRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, apperrors.Invalidf("malformed score request: %v", err)
	}
	return svc.scores.Score(ctx, req)
}

func (svc *RPCService) latestReport(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.LatestReportRequest
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, apperrors.Invalidf("malformed report request: %v", err)
		}
	}
	if req.RunID == "" {
		return svc.reports.Latest(ctx)
	}
	reports, err := svc.reports.ForRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("run %s: %w", req.RunID, apperrors.ErrReportNotFound)
	}
	return &reports[0], nil
}

// RemoteScorer scores pairs through an RPC server. It lets the CLI reuse a
// running service (and its cache) instead of scoring locally.
type RemoteScorer struct {
	client *grpc.Client
}

func NewRemoteScorer(client *grpc.Client) *RemoteScorer {
	return &RemoteScorer{client: client}
}

// Score sends req to the server.
func (r *RemoteScorer) Score(ctx context.Context, req proto.ScoreRequest) (*proto.ScoreResponse, error) {
	var resp proto.ScoreResponse
	if err := r.client.Call(ctx, proto.MethodScore, &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LatestReport fetches the newest report, optionally for one run.
func (r *RemoteScorer) LatestReport(ctx context.Context, runID string) (*evaluation.Report, error) {
	var rep evaluation.Report
	if err := r.client.Call(ctx, proto.MethodLatestReport, &proto.LatestReportRequest{RunID: runID}, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}
