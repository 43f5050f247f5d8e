// Package runner drives pipelines from the command line: batches of
// independent transactions with a progress bar, and a chain height follower.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/manifest-network/txpipe/internal/models"
	"github.com/manifest-network/txpipe/internal/output"
	"github.com/manifest-network/txpipe/internal/pipeline"
)

// Job is one transaction to run.
type Job struct {
	Tx       output.TxContext
	Pipeline *pipeline.Pipeline
}

// Config bounds a batch.
type Config struct {
	MaxConcurrency uint
	ShowProgress   bool
}

// RunAll runs every job as an independent pipeline, at most
// cfg.MaxConcurrency at a time, and returns their terminal renderings in job
// order. A failed transaction is a FAIL rendering, not an error; errors are
// output failures and cancellation.
func RunAll(ctx context.Context, jobs []Job, handler output.OutputHandler, cfg Config) ([]models.TxResultRendering, error) {
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 1
	}

	var bar *progressbar.ProgressBar
	if cfg.ShowProgress && len(jobs) > 1 {
		bar = progressbar.NewOptions(
			len(jobs),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetDescription("Processing transactions..."),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		if err := bar.RenderBlank(); err != nil {
			return nil, fmt.Errorf("failed to render progress bar: %w", err)
		}
	}

	results := make([]models.TxResultRendering, len(jobs))
	eg, egCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, cfg.MaxConcurrency)

	for i, job := range jobs {
		i, job := i, job // per-iteration copies (Go < 1.22 loop semantics)
		if egCtx.Err() != nil {
			slog.Info("Processing cancelled by user")
			break
		}

		sem <- struct{}{}
		eg.Go(func() error {
			defer func() { <-sem }()

			last, err := output.Drain(egCtx, handler, job.Tx, job.Pipeline.Stream(egCtx))
			if err != nil {
				slog.Error("Failed to write transaction output", "index", i, "kind", job.Tx.Kind, "error", err, "errorType", fmt.Sprintf("%T", err))
				return fmt.Errorf("failed to write output of transaction %d: %w", i, err)
			}
			results[i] = last

			if bar != nil {
				if err := bar.Add(1); err != nil {
					slog.Warn("Failed to update progress bar", "error", err)
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("error while running transactions: %w", err)
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	if bar != nil {
		if err := bar.Finish(); err != nil {
			return nil, fmt.Errorf("failed to finish progress bar: %w", err)
		}
	}
	return results, nil
}

// Spinner shows an indeterminate spinner while a transaction is pending.
type Spinner struct {
	bar *progressbar.ProgressBar
}

func NewSpinner(description string) *Spinner {
	return &Spinner{bar: progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)}
}

// Watch relays stream, advancing the spinner on every PENDING rendering and
// clearing it at the terminal one.
func (s *Spinner) Watch(stream <-chan models.TxResultRendering) <-chan models.TxResultRendering {
	out := make(chan models.TxResultRendering)
	go func() {
		defer close(out)
		for r := range stream {
			switch {
			case r.Phase == models.PhasePending:
				s.bar.Describe("Waiting for " + r.TxHash)
				if err := s.bar.Add(1); err != nil {
					slog.Warn("Failed to update progress bar", "error", err)
				}
			case r.Phase.Terminal():
				if err := s.bar.Finish(); err != nil {
					slog.Warn("Failed to finish progress bar", "error", err)
				}
			}
			out <- r
		}
	}()
	return out
}
