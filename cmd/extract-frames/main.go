package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"frame-extractor/archive"
	"frame-extractor/extractor"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand(extractor.NewOpener).Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCommand(openers func(name string) (extractor.Opener, error)) *cli.Command {
	return &cli.Command{
		Name:  "extract-frames",
		Usage: "Extract JPEG frames from a video file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Video file to decode",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory where frames will be written",
				Value:   "frames",
			},
			&cli.IntFlag{
				Name:    "frame-skip",
				Aliases: []string{"s"},
				Usage:   "Keep every n-th frame, starting with the first",
				Value:   1,
			},
			&cli.IntFlag{
				Name:  "quality",
				Usage: "JPEG quality (1-100)",
				Value: extractor.DefaultQuality,
			},
			&cli.IntFlag{
				Name:  "max-width",
				Usage: "Downscale frames wider than this, 0 keeps the source size",
			},
			&cli.BoolFlag{
				Name:  "zip",
				Usage: "Also pack the frames into " + archive.FileName,
			},
			&cli.StringFlag{
				Name:  "decoder",
				Usage: "Decoding backend: astiav or ffmpeg",
				Value: "astiav",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log decoder details",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			frameSkip := cmd.Int("frame-skip")
			if frameSkip < 1 {
				return cli.Exit("frame-skip must be at least 1", 2)
			}

			quality := cmd.Int("quality")
			if quality < 1 || quality > 100 {
				return cli.Exit("quality must be between 1 and 100", 2)
			}

			maxWidth := cmd.Int("max-width")
			if maxWidth < 0 {
				return cli.Exit("max-width must not be negative", 2)
			}

			opener, err := openers(cmd.String("decoder"))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			logger, err := newLogger(cmd.Bool("verbose"))
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			stderr := cmd.ErrWriter
			if stderr == nil {
				stderr = os.Stderr
			}

			return run(ctx, extractor.New(opener, logger), stderr, cmd.Writer, job{
				input:  cmd.String("input"),
				output: cmd.String("output"),
				zip:    cmd.Bool("zip"),
				options: extractor.Options{
					FrameSkip: frameSkip,
					Quality:   quality,
					MaxWidth:  maxWidth,
				},
			})
		},
	}
}

type job struct {
	input   string
	output  string
	zip     bool
	options extractor.Options
}

func run(ctx context.Context, ex *extractor.Extractor, progress, out io.Writer, j job) error {
	if out == nil {
		out = os.Stdout
	}

	last := -1
	j.options.Progress = func(fraction float64) {
		percent := int(fraction * 100)
		if percent == last {
			return
		}
		last = percent
		_, _ = fmt.Fprintf(progress, "\rextracting %3d%%", percent)
	}

	result, err := ex.Extract(ctx, j.input, j.output, j.options)
	if last >= 0 {
		_, _ = fmt.Fprintln(progress)
	}
	if errors.Is(err, extractor.ErrOpenSource) {
		return cli.Exit("Error: Cannot open video file", 1)
	}
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "Done! %d frames saved to %s\n", result.FrameCount, j.output)
	if result.FrameCount == 0 || !j.zip {
		return nil
	}

	zipPath := filepath.Join(j.output, archive.FileName)
	// Only this run's frames, the directory may hold leftovers from an earlier one
	entries, err := archive.BuildFiles(ctx, result.FramePaths, zipPath)
	if err != nil {
		return fmt.Errorf("build archive: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Packed %d frames into %s\n", entries, zipPath)

	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}
