package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/ent0n29/speechrelay/internal/delivery"
	"github.com/ent0n29/speechrelay/internal/protocol"
	"github.com/ent0n29/speechrelay/internal/session"
	"github.com/ent0n29/speechrelay/internal/sink"
	"github.com/ent0n29/speechrelay/internal/stream"
)

type replayOptions struct {
	step     int
	interval time.Duration
	sanitize bool
	jsonOut  bool
}

func segmentCmd() *cobra.Command {
	opts := replayOptions{}
	cmd := &cobra.Command{
		Use:   "segment FILE",
		Short: "Replay a file as a growing response and print the chunks it yields",
		Long:  "Replays FILE (or - for stdin) a few bytes at a time through the segmentation pipeline with a recording sink.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return replay(cmd.Context(), text, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&opts.step, "step", 12, "bytes appended per observation")
	cmd.Flags().DurationVar(&opts.interval, "interval", 20*time.Millisecond, "delay between observations")
	cmd.Flags().BoolVar(&opts.sanitize, "sanitize", true, "strip markdown and symbols from chunks")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print chunks as JSON lines")
	return cmd
}

func readInput(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

// replay feeds text to a fresh monitor in growing prefixes, ends the response
// and writes every chunk to out.
func replay(ctx context.Context, text string, opts replayOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.step <= 0 {
		opts.step = 12
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sessions, err := session.NewManager(time.Hour, 8)
	if err != nil {
		return err
	}
	queue := delivery.New(delivery.DefaultConfig(), sink.NewMockSink(), nil, newLogger(io.Discard, "error", "text"), nil)

	cfg := stream.DefaultConfig()
	cfg.Sanitize = opts.sanitize
	cfg.Debounce = 10 * time.Millisecond
	cfg.FirstContentDebounce = 5 * time.Millisecond
	mon := stream.NewMonitor(cfg, sessions, queue, newLogger(os.Stderr, "warn", "text"), nil)

	enc := json.NewEncoder(out)
	var writeErr error
	mon.SetChunkObserver(func(c protocol.Chunk, _ delivery.Outcome) {
		if writeErr != nil {
			return
		}
		if opts.jsonOut {
			writeErr = enc.Encode(c)
			return
		}
		marker := ""
		if c.IsFinal {
			marker = " (final)"
		}
		_, writeErr = fmt.Fprintf(out, "[%d]%s %s\n", c.SequenceID, marker, c.Text)
	})

	if err := mon.Start(ctx); err != nil {
		return err
	}
	defer mon.Stop()

	for end := 0; end < len(text); {
		end += opts.step
		if end > len(text) {
			end = len(text)
		}
		for end < len(text) && !utf8.RuneStart(text[end]) {
			end++
		}
		if err := mon.OnTextObserved(text[:end], true); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.interval):
		}
	}
	if err := mon.OnStreamingEnded(); err != nil {
		return err
	}
	return writeErr
}
