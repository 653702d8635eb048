package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/kabuki/internal/store"
	"github.com/roach88/kabuki/internal/value"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // default: latest session
	Output   string // optional - filter to one output
	List     bool   // list sessions instead of deliveries
}

// TraceEvent is one recorded delivery.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Cycle  int64  `json:"cycle"`
	Output string `json:"output"`
	Value  any    `json:"value"`

	text string
}

// TraceStats summarizes a session.
type TraceStats struct {
	Cycles     int64    `json:"cycles"`
	Deliveries int64    `json:"deliveries"`
	Outputs    []string `json:"outputs"`
	LastSeq    int64    `json:"last_seq"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string       `json:"session"`
	Pipeline string       `json:"pipeline"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// SessionInfo is one line of --list output.
type SessionInfo struct {
	ID         string `json:"id"`
	Pipeline   string `json:"pipeline"`
	StartedSeq int64  `json:"started_seq"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded deliveries",
		Long: `Show the deliveries recorded by outputs with the "record" sink.

Every build of a pipeline, including each hot reload, starts a new
session. Without --session the most recent one is shown.

Examples:
  kabuki trace --db ./kabuki.db
  kabuki trace --db ./kabuki.db --list
  kabuki trace --db ./kabuki.db --session 0190... --output pulse
  kabuki trace --db ./kabuki.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: latest)")
	cmd.Flags().StringVar(&opts.Output, "output", "", "filter to one output")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list sessions")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.List {
		return listSessions(ctx, st, opts, cmd)
	}

	sessionID := opts.Session
	if sessionID == "" {
		latest, err := st.LatestSession(ctx)
		if errors.Is(err, store.ErrSessionNotFound) {
			if opts.Format == "json" {
				return outputTraceJSON(cmd, TraceResult{Timeline: []TraceEvent{}, Stats: TraceStats{Outputs: []string{}}})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
			return nil
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find latest session", err)
		}
		sessionID = latest.ID
	}

	summary, err := st.Summarize(ctx, sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", sessionID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to summarize session", err)
	}

	deliveries, err := st.ReadDeliveries(ctx, sessionID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read deliveries", err)
	}

	result := TraceResult{
		Session:  summary.Session.ID,
		Pipeline: summary.Session.Pipeline,
		Timeline: buildTimeline(deliveries, opts.Output),
		Stats: TraceStats{
			Cycles:     summary.Cycles,
			Deliveries: summary.Deliveries,
			Outputs:    summary.Outputs,
			LastSeq:    summary.LastSeq,
		},
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result)
}

// buildTimeline converts deliveries, keeping only output when it is set.
func buildTimeline(deliveries []store.Delivery, output string) []TraceEvent {
	timeline := []TraceEvent{}
	for _, d := range deliveries {
		if output != "" && d.Output != output {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:    d.Seq,
			Cycle:  d.Cycle,
			Output: d.Output,
			Value:  value.ToAny(d.Value),
			text:   value.Format(d.Value),
		})
	}
	return timeline
}

func listSessions(ctx context.Context, st *store.Store, opts *TraceOptions, cmd *cobra.Command) error {
	sessions, err := st.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, SessionInfo{ID: s.ID, Pipeline: s.Pipeline, StartedSeq: s.StartedSeq})
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		return formatter.Success(infos)
	}

	w := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tPIPELINE\tSTARTED")
	for _, s := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", s.ID, s.Pipeline, s.StartedSeq)
	}
	return tw.Flush()
}

func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	return formatter.Respond(CLIResponse{Status: "ok", Data: result, Session: result.Session})
}

func outputTraceText(cmd *cobra.Command, result TraceResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Session: %s (%s)\n", result.Session, result.Pipeline)
	fmt.Fprintf(w, "Cycles: %d, Deliveries: %d\n", result.Stats.Cycles, result.Stats.Deliveries)
	fmt.Fprintln(w)

	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No deliveries.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tCYCLE\tOUTPUT\tVALUE")
	for _, e := range result.Timeline {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", e.Seq, e.Cycle, e.Output, e.text)
	}
	return tw.Flush()
}
