package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/mixdesk/internal/session"
	"github.com/satindergrewal/mixdesk/internal/timeline"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect saved sessions",
	}
	cmd.AddCommand(newSessionsListCommand(ctx))
	cmd.AddCommand(newSessionsDeleteCommand(ctx))
	return cmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *session.Store) error {
				list, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if wantJSON(cmd, jsonOut) {
					if list == nil {
						list = []session.Summary{}
					}
					return writeJSON(cmd, list)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No saved sessions")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, s := range list {
					rows = append(rows, []string{
						s.ID,
						s.Name,
						s.UpdatedAt.Local().Format(time.DateTime),
						strconv.Itoa(s.Clips),
						strconv.Itoa(s.Items),
						formatSeconds(s.Length),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Updated", "Clips", "Items", "Length"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newSessionsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete saved sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *session.Store) error {
				for _, id := range args {
					if err := store.Delete(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				}
				return nil
			})
		},
	}
}

type sessionView struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Model     *timeline.Model  `json:"model"`
	Markers   any              `json:"markers"`
	Document  any              `json:"document,omitempty"`
	Items     []sessionItemRow `json:"items"`
}

type sessionItemRow struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Duration float64 `json:"duration"`
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the tracks and clips of a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *session.Store) error {
				rec, err := store.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if wantJSON(cmd, jsonOut) {
					view := sessionView{
						ID:        rec.ID,
						Name:      rec.Name,
						CreatedAt: rec.CreatedAt,
						UpdatedAt: rec.UpdatedAt,
						Model:     rec.Model,
						Markers:   rec.Markers,
						Items:     []sessionItemRow{},
					}
					if rec.Document != nil {
						view.Document = rec.Document
					}
					for _, it := range rec.Items {
						view.Items = append(view.Items, sessionItemRow{ID: it.ID, Name: it.Name, Type: it.Type, Duration: it.Duration})
					}
					return writeJSON(cmd, view)
				}
				renderSession(cmd, rec)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func renderSession(cmd *cobra.Command, rec *session.Record) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", rec.Name, rec.ID)
	if rec.Document != nil {
		fmt.Fprintf(out, "Document: %s %q, target %s\n", rec.Document.ID, rec.Document.Title, rec.Document.TargetDuration)
	}
	fmt.Fprintf(out, "Length: %s, playhead %s\n\n", formatSeconds(rec.Model.TimelineLength()), formatSeconds(rec.Markers.CurrentTime))

	names := make(map[string]string, len(rec.Items))
	for _, it := range rec.Items {
		names[it.ID] = it.Name
	}

	var rows [][]string
	for ti, track := range rec.Model.Tracks {
		flags := ""
		if track.Muted {
			flags += "M"
		}
		if track.Solo {
			flags += "S"
		}
		if len(track.Clips) == 0 {
			rows = append(rows, []string{strconv.Itoa(ti), track.Name, flags, "-", "", "", "", ""})
			continue
		}
		for _, c := range track.Clips {
			item := names[c.LibraryItemID]
			if item == "" {
				item = "(missing)"
			}
			rows = append(rows, []string{
				strconv.Itoa(ti),
				track.Name,
				flags,
				c.Name,
				item,
				formatSeconds(c.Position),
				formatSeconds(c.Duration),
				strconv.FormatFloat(c.Gain, 'f', 2, 64),
			})
		}
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Track", "Flags", "Clip", "Item", "Start", "Length", "Gain"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
}

// formatSeconds renders m:ss.t.
func formatSeconds(s float64) string {
	if s < 0 {
		s = 0
	}
	tenths := int(s*10 + 0.5)
	return fmt.Sprintf("%d:%02d.%d", tenths/600, (tenths/10)%60, tenths%10)
}
