// Package proto defines the messages exchanged over the evaluation service's
// JSON-over-TCP RPC layer (see pkg/grpc).
package proto

// Method names registered by the evaluation RPC service.
const (
	MethodScore        = "Evaluation.Score"
	MethodLatestReport = "Evaluation.LatestReport"
	MethodHealth       = "Evaluation.Health"
)

// ScoreRequest asks for the BLEU aggregate of one example. Either the id
// fields or the text fields are set; text is mapped through the service
// vocabulary, or split into tokens as-is when no vocabulary is loaded.
type ScoreRequest struct {
	Beam           [][]int    `json:"beam,omitempty"`
	References     [][]int    `json:"references,omitempty"`
	BeamText       [][]string `json:"beam_text,omitempty"`
	ReferencesText [][]string `json:"references_text,omitempty"`
}

// ScoreResponse carries per-order precision and recall, index n-1 for
// BLEU-n.
type ScoreResponse struct {
	Precision []float64 `json:"precision"`
	Recall    []float64 `json:"recall"`
	Pairs     int       `json:"pairs"`
}

// LatestReportRequest optionally narrows the lookup to one run.
type LatestReportRequest struct {
	RunID string `json:"run_id,omitempty"`
}

// HealthCheckResponse mirrors the gRPC health check states.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING
}
