// Package pipeline drives a transaction from message fabrication to a
// rendered receipt list. A run is a strictly sequential series of stages
// (build, broadcast, poll, parse) and is observed as a stream of
// TxResultRendering values: one per completed stage, the last one terminal.
// Any failure ends the stream with a FAIL rendering; errors never escape as
// raw errors.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/manifest-network/txpipe/internal/chain"
	"github.com/manifest-network/txpipe/internal/models"
)

const (
	DefaultPollInterval = time.Second
	DefaultPollAttempts = 20
)

// Fabricator builds the messages of a transaction.
type Fabricator func() ([]models.Msg, error)

// ResultParser reads the outcome of an included transaction. It returns the
// parsed receipts (nil entries are absent items) and an opaque value for the
// SUCCEED rendering. Failures should be *ParseError values, typically from
// the Helper.
type ResultParser func(info *models.TxInfo, h *Helper) ([]*models.Receipt, any, error)

// PollConfig bounds the inclusion lookup.
type PollConfig struct {
	Interval time.Duration
	Attempts int
	// Timeout caps the wall-clock time spent polling; zero means no cap
	// beyond Attempts.
	Timeout time.Duration
}

// Options describe one kind of transaction.
type Options struct {
	// Kind labels logs and metrics, e.g. "bond_mint".
	Kind          string
	Fabricate     Fabricator
	Fee           models.Fee
	GasAdjustment decimal.Decimal
	Memo          string

	Client        chain.Client
	Parse         ResultParser
	Poll          PollConfig
	ErrorReporter ErrorReporter

	// OnSucceed is called with the SUCCEED rendering before it is emitted.
	OnSucceed func(models.TxResultRendering)
}

// Pipeline is an immutable transaction description. Every Stream call is an
// independent run.
type Pipeline struct {
	opts Options
}

func New(opts Options) *Pipeline {
	if opts.Kind == "" {
		opts.Kind = "tx"
	}
	if opts.Poll.Interval <= 0 {
		opts.Poll.Interval = DefaultPollInterval
	}
	if opts.Poll.Attempts <= 0 {
		opts.Poll.Attempts = DefaultPollAttempts
	}
	if opts.ErrorReporter == nil {
		opts.ErrorReporter = DefaultErrorReporter
	}
	if opts.GasAdjustment.IsZero() {
		opts.GasAdjustment = decimal.NewFromInt(1)
	}
	return &Pipeline{opts: opts}
}

// Stream starts a run and returns its renderings. The channel is closed after
// the terminal rendering. Cancelling ctx discards the run: nothing more is
// sent, although a request already on the wire is not recalled.
func (p *Pipeline) Stream(ctx context.Context) <-chan models.TxResultRendering {
	out := make(chan models.TxResultRendering)

	go func() {
		defer close(out)
		r := &run{opts: p.opts, helper: newHelper(p.opts.Fee)}
		r.execute(ctx, func(rendering models.TxResultRendering) bool {
			if ctx.Err() != nil {
				return false
			}
			select {
			case out <- rendering:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	return out
}

// Run drains a stream and returns its last rendering. ok is false when ctx
// was cancelled before anything was emitted.
func (p *Pipeline) Run(ctx context.Context) (last models.TxResultRendering, ok bool) {
	for rendering := range p.Stream(ctx) {
		last, ok = rendering, true
	}
	return last, ok
}

type stage struct {
	name string
	fn   func(*run, context.Context) (models.TxResultRendering, error)
}

var stages = []stage{
	{"build", (*run).build},
	{"broadcast", (*run).broadcast},
	{"poll", (*run).poll},
	{"parse", (*run).parse},
}

// run is the state of one pipeline execution.
type run struct {
	opts   Options
	helper *Helper
	tx     *models.TxOptions
	info   *models.TxInfo
}

func (r *run) execute(ctx context.Context, emit func(models.TxResultRendering) bool) {
	for _, s := range stages {
		start := time.Now()
		rendering, err := s.fn(r, ctx)
		stageDuration.WithLabelValues(r.opts.Kind, s.name).Observe(time.Since(start).Seconds())

		if err != nil {
			if ctx.Err() != nil {
				stageTotal.WithLabelValues(r.opts.Kind, s.name, "discarded").Inc()
				slog.Info("Transaction discarded", "kind", r.opts.Kind, "stage", s.name, "hash", r.helper.TxHash())
				return
			}
			stageTotal.WithLabelValues(r.opts.Kind, s.name, "error").Inc()
			slog.Warn("Transaction stage failed", "kind", r.opts.Kind, "stage", s.name, "hash", r.helper.TxHash(), "error", err, "errorType", fmt.Sprintf("%T", err))
			r.finish(r.fail(err), emit)
			return
		}
		stageTotal.WithLabelValues(r.opts.Kind, s.name, "ok").Inc()

		if rendering.Phase.Terminal() {
			if rendering.Phase == models.PhaseSucceed && r.opts.OnSucceed != nil {
				r.opts.OnSucceed(rendering)
			}
			r.finish(rendering, emit)
			return
		}
		if !emit(rendering) {
			return
		}
	}
}

func (r *run) finish(rendering models.TxResultRendering, emit func(models.TxResultRendering) bool) {
	if emit(rendering) {
		terminalTotal.WithLabelValues(r.opts.Kind, rendering.Phase.String()).Inc()
	}
}

func (r *run) fail(err error) models.TxResultRendering {
	return models.TxResultRendering{
		Phase:   models.PhaseFail,
		TxHash:  r.helper.TxHash(),
		Message: r.opts.ErrorReporter(err),
		Err:     err,
	}
}

func (r *run) build(context.Context) (models.TxResultRendering, error) {
	if r.opts.Fabricate == nil {
		return models.TxResultRendering{}, &BuildError{Err: errors.New("no message fabricator")}
	}

	msgs, err := fabricate(r.opts.Fabricate)
	if err != nil {
		return models.TxResultRendering{}, &BuildError{Err: err}
	}
	if len(msgs) == 0 {
		return models.TxResultRendering{}, &BuildError{Err: errors.New("no messages")}
	}

	r.tx = &models.TxOptions{
		Msgs:          msgs,
		Fee:           r.opts.Fee,
		GasAdjustment: r.opts.GasAdjustment,
		Memo:          r.opts.Memo,
	}
	return models.TxResultRendering{Phase: models.PhaseBroadcast, Value: r.tx}, nil
}

func (r *run) broadcast(ctx context.Context) (models.TxResultRendering, error) {
	if r.opts.Client == nil {
		return models.TxResultRendering{}, &BroadcastError{Err: errors.New("no chain client")}
	}

	slog.Debug("Broadcasting transaction", "kind", r.opts.Kind, "msgs", len(r.tx.Msgs))
	result, err := r.opts.Client.Post(ctx, r.tx)
	if err != nil {
		return models.TxResultRendering{}, &BroadcastError{Err: err}
	}
	if result == nil || result.TxHash == "" {
		return models.TxResultRendering{}, &BroadcastError{Err: errors.New("node returned no transaction hash")}
	}

	r.helper.saveTx(result.TxHash)
	if result.Code != 0 {
		return models.TxResultRendering{}, &TxFailedError{TxHash: result.TxHash, Code: result.Code, RawLog: result.RawLog}
	}

	slog.Info("Transaction broadcast", "kind", r.opts.Kind, "hash", result.TxHash)
	return models.TxResultRendering{
		Phase:    models.PhasePending,
		Value:    result,
		TxHash:   result.TxHash,
		Receipts: []*models.Receipt{r.helper.TxHashReceipt()},
	}, nil
}

func (r *run) poll(ctx context.Context) (models.TxResultRendering, error) {
	cfg := r.opts.Poll
	hash := r.helper.TxHash()

	pollCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()

	attempt := 0
	for attempt < cfg.Attempts {
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return models.TxResultRendering{}, ctx.Err()
			}
			return models.TxResultRendering{}, r.timeout(hash, attempt, start)
		case <-timer.C:
		}

		attempt++
		info, err := r.opts.Client.PollTxInfo(pollCtx, hash)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return models.TxResultRendering{}, ctx.Err()
			}
			slog.Debug("Transaction lookup failed", "hash", hash, "attempt", attempt, "error", err)
		case info != nil:
			pollAttempts.WithLabelValues(r.opts.Kind).Observe(float64(attempt))
			if info.Code != 0 {
				return models.TxResultRendering{}, &TxFailedError{TxHash: hash, Code: info.Code, RawLog: info.RawLog}
			}
			r.info = info
			slog.Info("Transaction included", "kind", r.opts.Kind, "hash", hash, "height", info.Height, "attempts", attempt)
			return models.TxResultRendering{
				Phase:    models.PhasePending,
				Value:    info,
				TxHash:   hash,
				Receipts: []*models.Receipt{r.helper.TxHashReceipt()},
			}, nil
		}

		timer.Reset(cfg.Interval)
	}

	return models.TxResultRendering{}, r.timeout(hash, attempt, start)
}

func (r *run) timeout(hash string, attempts int, start time.Time) error {
	pollAttempts.WithLabelValues(r.opts.Kind).Observe(float64(attempts))
	return &TimeoutError{TxHash: hash, Attempts: attempts, Elapsed: time.Since(start)}
}

func (r *run) parse(context.Context) (models.TxResultRendering, error) {
	var (
		receipts []*models.Receipt
		value    any
	)
	if r.opts.Parse != nil {
		var err error
		receipts, value, err = parseResult(r.opts.Parse, r.info, r.helper)
		if err != nil {
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				err = r.helper.FailedToParseTxResult(err)
			}
			return models.TxResultRendering{}, err
		}
	}

	receipts = append(receipts, r.helper.TxHashReceipt(), r.helper.TxFeeReceipt())
	return models.TxResultRendering{
		Phase:    models.PhaseSucceed,
		Value:    value,
		TxHash:   r.helper.TxHash(),
		Receipts: receipts,
	}, nil
}

func fabricate(f Fabricator) (msgs []models.Msg, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("message fabrication panicked: %v", rec)
		}
	}()
	return f()
}

func parseResult(parse ResultParser, info *models.TxInfo, h *Helper) (receipts []*models.Receipt, value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = h.FailedToParseTxResult(fmt.Errorf("panic: %v", rec))
		}
	}()
	return parse(info, h)
}
