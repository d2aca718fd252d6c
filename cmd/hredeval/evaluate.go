package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/report"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/kafka"
	"github.com/spf13/cobra"
)

func (a *app) evaluateCmd() *cobra.Command {
	var (
		input   string
		profile string
		runID   string
		epoch   int
		persist bool
		publish bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one evaluation pass over a JSON Lines batch file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if input == "" {
				input = a.dataPath(a.cfg.Data.TestFile)
			}
			if input == "" {
				return fmt.Errorf("no input: pass --input or set data.testFile")
			}
			if !cmd.Flags().Changed("persist") {
				persist = a.cfg.Evaluation.PersistReports
			}
			if !cmd.Flags().Changed("publish") {
				publish = a.cfg.Evaluation.PublishReports
			}

			sc, err := a.newScoring(nil)
			if err != nil {
				return err
			}
			defer sc.Close()
			vocab, err := a.vocabulary()
			if err != nil {
				return err
			}
			ev, err := a.evaluator(profile, sc.scorer, vocab, nil)
			if err != nil {
				return err
			}

			src, err := dataset.OpenFile(input)
			if err != nil {
				return err
			}
			defer src.Close()

			opts := evaluation.RunOptions{RunID: runID}
			if cmd.Flags().Changed("epoch") {
				opts.Epoch = &epoch
			}
			rep, err := ev.Run(ctx, src, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				err = enc.Encode(rep)
			} else {
				err = rep.Format(out)
			}
			if err != nil {
				return err
			}

			sink := report.NewSink(a.cfg.Evaluation.SinkTimeout, nil)
			if persist {
				store, db, err := a.openStore(ctx)
				if err != nil {
					return err
				}
				defer db.Close()
				sink.Add("postgres", store)
			}
			if publish {
				producer := kafka.NewProducer(a.cfg.Kafka, a.cfg.Kafka.Topics.EvaluationReports)
				defer producer.Close()
				sink.Add("kafka", report.NewPublisher(producer, nil))
			}
			if err := sink.Save(ctx, rep); err != nil {
				return fmt.Errorf("saving report: %w", err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "JSON Lines batch file (default data.testFile)")
	f.StringVarP(&profile, "profile", "p", "", "model profile (default model.profile)")
	f.StringVar(&runID, "run-id", "", "run id recorded in the report")
	f.IntVar(&epoch, "epoch", 0, "epoch recorded in the report (default taken from the batches)")
	f.BoolVar(&persist, "persist", false, "store the report in PostgreSQL")
	f.BoolVar(&publish, "publish", false, "publish the report to Kafka")
	f.BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
