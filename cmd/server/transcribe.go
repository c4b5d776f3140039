package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thale-stt/thale/internal/transcribe"
)

func newTranscribeCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe a local audio file and print the text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a := newApp(cfg)
			defer a.models.Unload(context.Background()) //nolint:errcheck

			ctx := cmd.Context()
			wf, err := a.decoder.DecodeFile(ctx, args[0])
			if err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			res, err := a.orch.Run(ctx, wf, func(ev transcribe.ProgressEvent) {
				fmt.Fprintf(stderr, "[%5.1f%%] chunk %d/%d %s\n",
					ev.ProgressPercent, ev.CurrentChunk, ev.TotalChunks, ev.Message)
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			_, err = fmt.Fprintln(out, res.Text)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}
