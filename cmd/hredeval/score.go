package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/report"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/proto"
	"github.com/spf13/cobra"
)

func (a *app) scoreCmd() *cobra.Command {
	var (
		references []string
		candidates []string
		addr       string
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score candidate responses against references",
		Long: `Score one example: every --candidate is a beam entry and every
--reference a reference response. Tokens are separated by spaces; when all
of them are integers they are taken as token ids, otherwise as text.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(references) == 0 || len(candidates) == 0 {
				return fmt.Errorf("at least one --reference and one --candidate are required")
			}
			ctx := cmd.Context()
			req := scoreRequest(candidates, references)

			var resp *proto.ScoreResponse
			if addr != "" {
				client, err := grpc.Dial(ctx, addr)
				if err != nil {
					return err
				}
				defer client.Close()
				resp, err = report.NewRemoteScorer(client).Score(ctx, req)
				if err != nil {
					return err
				}
			} else {
				sc, err := a.newScoring(nil)
				if err != nil {
					return err
				}
				defer sc.Close()
				vocab, err := a.vocabulary()
				if err != nil {
					return err
				}
				scores, err := a.scoreService(sc.scorer, vocab)
				if err != nil {
					return err
				}
				resp, err = scores.Score(ctx, req)
				if err != nil {
					return err
				}
			}
			return printScores(cmd.OutOrStdout(), resp)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&references, "reference", "r", nil, "reference response (repeatable)")
	f.StringArrayVarP(&candidates, "candidate", "b", nil, "beam candidate (repeatable)")
	f.StringVar(&addr, "addr", "", "score through the RPC server at host:port instead of locally")
	return cmd
}

// scoreRequest builds an id request when every token parses as an integer
// and a text request otherwise.
func scoreRequest(candidates, references []string) proto.ScoreRequest {
	beam, beamIDs := parseIDRows(candidates)
	refs, refIDs := parseIDRows(references)
	if beamIDs && refIDs {
		return proto.ScoreRequest{Beam: beam, References: refs}
	}
	return proto.ScoreRequest{
		BeamText:       splitRows(candidates),
		ReferencesText: splitRows(references),
	}
}

func parseIDRows(rows []string) ([][]int, bool) {
	out := make([][]int, len(rows))
	for i, row := range rows {
		fields := strings.Fields(row)
		ids := make([]int, len(fields))
		for j, f := range fields {
			id, err := strconv.Atoi(f)
			if err != nil {
				return nil, false
			}
			ids[j] = id
		}
		out[i] = ids
	}
	return out, true
}

func splitRows(rows []string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = strings.Fields(row)
	}
	return out
}

func printScores(w io.Writer, resp *proto.ScoreResponse) error {
	if _, err := fmt.Fprintf(w, "pairs=%d\n", resp.Pairs); err != nil {
		return err
	}
	for i := range resp.Precision {
		if _, err := fmt.Fprintf(w, " -- bleu-%d prec=%v, recall=%v\n", i+1, resp.Precision[i], resp.Recall[i]); err != nil {
			return err
		}
	}
	return nil
}
