package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/spf13/cobra"

	"stemdeck.click/internal/audio"
	trackfs "stemdeck.click/internal/fs"
	"stemdeck.click/internal/player"
)

type bounceOptions struct {
	output  string
	seconds float64
	playOptions
}

// newBounceCommand creates the bounce command
func newBounceCommand() *cobra.Command {
	var opts bounceOptions

	bounceCmd := &cobra.Command{
		Use:   "bounce FILE|DIR... -o OUT.wav",
		Short: "Render the mix of several tracks to a WAV file",
		Long: `Mix tracks offline, without an audio device, and write the result as a
16-bit WAV file at the configured output rate and channel count. The mix
runs until every track has ended, or for --seconds when given.

Examples:
  stemdeck bounce stems/ -o mix.wav
  stemdeck bounce drums.wav bass.wav --gain 1,0.7 -o preview.wav --seconds 30`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBounce(cmd, args, opts)
		},
	}

	bounceCmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output WAV file")
	bounceCmd.Flags().Float64Var(&opts.seconds, "seconds", 0, "Length limit in seconds (0 = until all tracks end)")
	bounceCmd.Flags().Float32SliceVar(&opts.gains, "gain", nil, "Per-track linear gain, in load order")
	bounceCmd.Flags().Float32SliceVar(&opts.pans, "pan", nil, "Per-track pan from -1 (left) to 1 (right), in load order")
	bounceCmd.Flags().Float32Var(&opts.start, "start", 0, "Start position as a fraction of each track (0 to 1)")
	bounceCmd.MarkFlagRequired("output")

	return bounceCmd
}

func runBounce(cmd *cobra.Command, args []string, opts bounceOptions) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	if opts.seconds < 0 {
		return fmt.Errorf("--seconds must be >= 0, got %g", opts.seconds)
	}
	if opts.start < 0 || opts.start > 1 {
		return fmt.Errorf("--start must be between 0 and 1, got %g", opts.start)
	}

	paths, err := trackfs.ExpandTrackPaths(cli.fs, args)
	if err != nil {
		return err
	}

	// the mix is pulled by the encoder, never by a device
	session, err := cli.newSession(player.WithBackend(audio.NewNullBackend(false)))
	if err != nil {
		return err
	}
	defer session.Reset()

	channels := cli.cfg.OutputChannels
	if err := session.Prepare(channels); err != nil {
		return err
	}
	if _, err := loadTracks(session, paths, opts.playOptions); err != nil {
		return err
	}

	mp := session.Player()
	if err := mp.TriggerAll(); err != nil {
		return err
	}
	if opts.start > 0 {
		if err := mp.SetPositionForAll(opts.start); err != nil {
			return err
		}
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(session.SampleRate()),
		NumChannels: channels,
		Precision:   2,
	}

	var streamer beep.Streamer = player.NewStreamer(mp, channels)
	if opts.seconds > 0 {
		limit := time.Duration(opts.seconds * float64(time.Second))
		streamer = beep.Take(format.SampleRate.N(limit), streamer)
	}

	out, err := cli.fs.Create(opts.output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", opts.output, err)
	}

	if err := wav.Encode(out, streamer, format); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", opts.output, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", opts.output, err)
	}

	slog.Info("bounce completed", "output", opts.output, "tracks", len(paths), "channels", channels)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.output)
	return nil
}
