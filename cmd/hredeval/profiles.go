package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/config"
	"github.com/spf13/cobra"
)

func (a *app) profilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List model configuration profiles; * marks the active one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tPROFILE\tMINOR ENCODER\tMAJOR ENCODER\tDECODER\tBEAM\tMAX LEN\tEPOCHS")
			for _, name := range a.cfg.Model.Names() {
				p := a.cfg.Model.Profiles[name]
				active := ""
				if name == a.cfg.Model.Profile {
					active = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					active, name,
					encoderDesc(p.Encoder.MinorType, p.Encoder.MinorCell),
					encoderDesc(p.Encoder.MajorType, p.Encoder.MajorCell),
					cellDesc(p.Decoder.Cell),
					p.BeamWidth, p.MaxDecodingLength, p.NumEpochs)
			}
			return tw.Flush()
		},
	}
}

func encoderDesc(typ string, cell config.CellConfig) string {
	return fmt.Sprintf("%s/%s", typ, cellDesc(cell))
}

func cellDesc(c config.CellConfig) string {
	return fmt.Sprintf("%s(%d)", c.Type, c.NumUnits)
}
