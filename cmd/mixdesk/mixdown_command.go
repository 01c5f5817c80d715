package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/export"
	"github.com/satindergrewal/mixdesk/internal/session"
)

func newMixdownCommand(ctx *commandContext) *cobra.Command {
	var output string
	var upload bool
	var name string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "mixdown <session-id>",
		Short: "Render a saved session to WAV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := ctx.log()

			var rec *session.Record
			err = ctx.withStore(func(store *session.Store) error {
				rec, err = store.Load(cmd.Context(), args[0])
				return err
			})
			if err != nil {
				return err
			}

			ed := newEngine(cfg, log)
			if err := session.Apply(cmd.Context(), rec, ed, nil); err != nil {
				return err
			}

			exporter, closeExport, err := newExporter(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeExport()

			if name == "" {
				name = rec.Name
			}
			res, err := exporter.Export(cmd.Context(), ed.Model(), ed.Library(), export.Request{
				Name:   name,
				Upload: upload,
			})
			if err != nil {
				return err
			}

			if output != "" {
				if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(output, res.WAV, 0o644); err != nil {
					return fmt.Errorf("write mix: %w", err)
				}
				log.Info("mix written", zap.String("path", output), zap.Int("bytes", res.Bytes))
			}

			if wantJSON(cmd, jsonOut) {
				return writeJSON(cmd, res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rendered %s (%s, %d bytes, fingerprint %s)\n", rec.Name, formatSeconds(res.Duration), res.Bytes, res.Fingerprint[:12])
			if output != "" {
				fmt.Fprintf(out, "Written to %s\n", output)
			}
			if res.Location != "" {
				fmt.Fprintf(out, "Uploaded to %s\n", res.Location)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the WAV to this path")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload the WAV to object storage")
	cmd.Flags().StringVar(&name, "name", "", "Object name for the upload (defaults to the session name)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if output == "" && !upload {
			return fmt.Errorf("nothing to do: pass --output or --upload")
		}
		return nil
	}
	return cmd
}
