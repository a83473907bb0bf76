package cli

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"stemdeck.click/internal/audio"
	trackfs "stemdeck.click/internal/fs"
	"stemdeck.click/internal/riff"
)

// newInfoCommand creates the info command
func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE|DIR...",
		Short: "Show container layout and format of tracks",
		Long: `Show how each track is stored: container chunks, encoding, channel
count, sample rate and length. Tracks that cannot be played are reported
with the reason and make the command exit non-zero.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runInfo,
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	paths, err := trackfs.ExpandTrackPaths(cli.fs, args)
	if err != nil {
		return err
	}

	registry := audio.NewDefaultRegistry()
	out := cmd.OutOrStdout()
	failed := 0

	for i, path := range paths {
		if i > 0 {
			fmt.Fprintln(out)
		}
		if err := describeTrack(out, cli.fs, registry, path); err != nil {
			fmt.Fprintf(out, "  error: %v\n", err)
			slog.Warn("track cannot be played", "path", path, "error", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d tracks cannot be played", failed, len(paths))
	}
	return nil
}

func describeTrack(w io.Writer, fsys afero.Fs, registry *audio.DecoderRegistry, path string) error {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		fmt.Fprintf(w, "%s\n", path)
		return err
	}

	header := data
	if len(header) > 512 {
		header = header[:512]
	}
	decoder := registry.DetectFormatWithContent(path, header)
	if decoder == nil {
		fmt.Fprintf(w, "%s: unknown format\n", path)
		return audio.ErrUnsupportedFormat
	}
	fmt.Fprintf(w, "%s: %s, %d bytes\n", path, decoder.FormatName(), len(data))

	if decoder.FormatName() == "WAV" {
		if err := describeRiff(w, data); err != nil {
			return err
		}
	}

	buf, err := decoder.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  decoded:  %d ch, %d Hz, %d frames, %s\n",
		buf.Channels(), buf.SampleRate(), buf.NumFrames(), buf.Duration().Round(time.Millisecond))
	return nil
}

func describeRiff(w io.Writer, data []byte) error {
	container, err := riff.Parse(bytes.NewReader(data))
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "  riff:     %s, size %d\n", container.Riff.Format, container.Riff.Size)
	fmt.Fprintln(w, "  chunks:")
	for _, chunk := range container.Order {
		fmt.Fprintf(w, "    %-4s  offset %-8d size %d\n", chunk.Header.ID, chunk.Offset, chunk.Header.Size)
	}

	f := container.Fmt
	encoding := riff.EncodingName(f.EncodingID)
	if f.EncodingID == riff.EncodingExtensible {
		encoding += " (" + riff.EncodingName(f.EffectiveEncoding()) + ")"
	}
	fmt.Fprintf(w, "  format:   %s, %d-bit, %d ch, %d Hz, block align %d\n",
		encoding, f.BitsPerSample, f.ChannelCount, f.SampleRate, f.BlockAlign)
	return nil
}
