package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	trackfs "stemdeck.click/internal/fs"
	"stemdeck.click/internal/player"
	"stemdeck.click/internal/tui"
)

// pollInterval is how often headless playback checks for the end of all tracks
var pollInterval = 50 * time.Millisecond

type playOptions struct {
	gains []float32
	pans  []float32
	start float32
	noTUI bool
}

// newPlayCommand creates the play command
func newPlayCommand() *cobra.Command {
	var opts playOptions

	playCmd := &cobra.Command{
		Use:   "play FILE|DIR...",
		Short: "Play tracks together",
		Long: `Load every track into memory and play them together in sync.

Directories are expanded to the WAV and AIFF files they contain. Gains and
pans apply to tracks in load order; tracks without a value keep the
configured default gain and center pan.

When stdout is a terminal an interactive mixer is shown. Otherwise playback
runs until every track has finished or the process is interrupted.

Examples:
  stemdeck play drums.wav bass.wav
  stemdeck play stems/ --gain 1,0.5 --pan 0,-0.3
  stemdeck play take3/ --start 0.5 --no-tui`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, args, opts)
		},
	}

	playCmd.Flags().Float32SliceVar(&opts.gains, "gain", nil, "Per-track linear gain, in load order")
	playCmd.Flags().Float32SliceVar(&opts.pans, "pan", nil, "Per-track pan from -1 (left) to 1 (right), in load order")
	playCmd.Flags().Float32Var(&opts.start, "start", 0, "Start position as a fraction of each track (0 to 1)")
	playCmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Never show the interactive mixer")

	return playCmd
}

func runPlay(cmd *cobra.Command, args []string, opts playOptions) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	if opts.start < 0 || opts.start > 1 {
		return fmt.Errorf("--start must be between 0 and 1, got %g", opts.start)
	}

	paths, err := trackfs.ExpandTrackPaths(cli.fs, args)
	if err != nil {
		return err
	}

	session, err := cli.newSession()
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Reset(); err != nil {
			slog.Error("error resetting session", "error", err)
		}
	}()

	if err := session.Prepare(cli.cfg.OutputChannels); err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}

	handles, err := loadTracks(session, paths, opts)
	if err != nil {
		return err
	}

	for _, h := range handles {
		if err := session.Trigger(h); err != nil {
			return err
		}
	}
	if opts.start > 0 {
		if err := session.SetPosition(opts.start); err != nil {
			return err
		}
	}
	if err := session.Resume(); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}

	slog.Info("playback started", "session_id", session.ID(), "tracks", len(handles))

	if !opts.noTUI && cli.isInteractive(cmd.InOrStdin(), cmd.OutOrStdout()) {
		return tui.Run(session, session.ID()[:8], cmd.InOrStdin(), cmd.OutOrStdout())
	}

	printTracks(cmd.OutOrStdout(), session.Tracks())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return waitForFinish(ctx, session)
}

func loadTracks(session *player.Session, paths []string, opts playOptions) ([]int, error) {
	handles := make([]int, 0, len(paths))
	for i, path := range paths {
		h, err := session.LoadTrack(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if i < len(opts.gains) {
			if err := session.SetGain(h, opts.gains[i]); err != nil {
				return nil, err
			}
		}
		if i < len(opts.pans) {
			if err := session.SetPan(h, opts.pans[i]); err != nil {
				return nil, err
			}
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func printTracks(w io.Writer, tracks []player.TrackInfo) {
	for _, t := range tracks {
		fmt.Fprintf(w, "[%d] %s  %s %dch %dHz %s  gain %.2f pan %+.2f\n",
			t.Handle, t.Name, t.Format, t.Channels, t.SampleRate,
			t.Duration.Round(time.Millisecond), t.Gain, t.Pan)
	}
}

// waitForFinish blocks until every track has ended or ctx is cancelled
func waitForFinish(ctx context.Context, session *player.Session) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("playback interrupted")
			return nil
		case <-ticker.C:
			if session.Finished() {
				slog.Info("playback finished")
				return nil
			}
		}
	}
}
