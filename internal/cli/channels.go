package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/kabuki/internal/compiler"
	"github.com/roach88/kabuki/internal/remote"
	"github.com/roach88/kabuki/internal/value"
)

// ChannelsOptions holds flags for the channels command.
type ChannelsOptions struct {
	*RootOptions
	Pipeline string
	Remote   string
	Timeout  time.Duration
}

// ChannelInfo describes one remote-control channel.
type ChannelInfo struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Default *float64 `json:"default,omitempty"`
	Value   *float64 `json:"value,omitempty"`
}

// NewChannelsCommand creates the channels command.
func NewChannelsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChannelsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "channels [pipeline-dir]",
		Short: "List remote-control channels",
		Long: `List the remote-control channels of a pipeline.

With a pipeline directory, the channels are read from the compiled
definition. With --remote, they are requested from a running kabuki
process over its websocket endpoint and include current values.

Examples:
  kabuki channels ./pipelines --pipeline servo
  kabuki channels --remote ws://localhost:8090/remote`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    opts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   opts.Verbose,
			}

			var (
				channels []ChannelInfo
				err      error
			)
			switch {
			case opts.Remote != "" && len(args) == 0:
				channels, err = liveChannels(opts, formatter)
			case opts.Remote == "" && len(args) == 1:
				channels, err = declaredChannels(args[0], opts.Pipeline)
			default:
				err = NewExitError(ExitCommandError, "give either a pipeline directory or --remote")
			}
			if err != nil {
				return err
			}
			return outputChannels(formatter, channels)
		},
	}

	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "pipeline name (default: the only pipeline in the directory)")
	cmd.Flags().StringVar(&opts.Remote, "remote", "", "websocket URL of a running kabuki process")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 2*time.Second, "how long to wait for a remote reply")

	return cmd
}

// declaredChannels lists the remote sources of a compiled pipeline. Keys are
// assigned in declaration order, as the running pipeline assigns them.
func declaredChannels(dir, name string) ([]ChannelInfo, error) {
	def, err := compiler.Load(dir, name)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load pipeline", err)
	}

	sources := def.RemoteSources()
	channels := make([]ChannelInfo, 0, len(sources))
	for i, src := range sources {
		ch := ChannelInfo{
			Key:   strconv.Itoa(i),
			Label: src.Label,
			Min:   src.Min,
			Max:   src.Max,
		}
		if n, ok := src.Value.(value.Number); ok {
			f := float64(n)
			ch.Default = &f
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// liveChannels asks a running process for its channels.
func liveChannels(opts *ChannelsOptions, formatter *OutputFormatter) ([]ChannelInfo, error) {
	formatter.VerboseLog("Connecting to %s", opts.Remote)
	client, err := remote.Dial(opts.Remote)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect", err)
	}
	defer client.Close()

	live, err := client.Channels(opts.Timeout)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to list channels", err)
	}

	channels := make([]ChannelInfo, 0, len(live))
	for _, ch := range live {
		channels = append(channels, ChannelInfo{
			Key:   ch.Key,
			Label: ch.Label,
			Min:   ch.Min,
			Max:   ch.Max,
			Value: ch.Value,
		})
	}
	return channels, nil
}

func outputChannels(formatter *OutputFormatter, channels []ChannelInfo) error {
	if formatter.Format == "json" {
		return formatter.Success(channels)
	}

	if len(channels) == 0 {
		fmt.Fprintln(formatter.Writer, "No remote channels.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tLABEL\tMIN\tMAX\tVALUE")
	for _, ch := range channels {
		current := "-"
		switch {
		case ch.Value != nil:
			current = strconv.FormatFloat(*ch.Value, 'g', -1, 64)
		case ch.Default != nil:
			current = strconv.FormatFloat(*ch.Default, 'g', -1, 64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%s\n", ch.Key, ch.Label, ch.Min, ch.Max, current)
	}
	return tw.Flush()
}
