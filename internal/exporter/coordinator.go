package exporter

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ocrr/internal"
	"ocrr/internal/config"
)

// Merger normalizes raw lines against the catalog.
type Merger interface {
	Merge(ctx context.Context, items []internal.ExtractedItem, ocrText string) []internal.ResolvedItem
}

// Submitter writes rows to the destination sheet.
type Submitter interface {
	Append(ctx context.Context, items []internal.ResolvedItem) (internal.SubmissionResult, error)
}

// CorrectionRequest is what the correction agent sees after a failed attempt.
type CorrectionRequest struct {
	Items     []internal.ResolvedItem
	OCRText   string
	LastError string
	Attempt   int
}

type Correction struct {
	Items []internal.ExtractedItem
	Notes *string
}

// Corrector proposes fixed lines. It must return at least one item or fail.
type Corrector interface {
	Correct(ctx context.Context, req CorrectionRequest) (Correction, error)
}

type Submission struct {
	Result   internal.SubmissionResult      `json:"result"`
	Items    []internal.ResolvedItem        `json:"items"`
	Attempts int                            `json:"attempts"`
	History  []internal.AttemptHistoryEntry `json:"history"`
}

type Options struct {
	MaxAttempts  int
	MaxQuantity  int
	AgentEnabled bool
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		MaxAttempts:  cfg.ValidationMaxAttempts,
		MaxQuantity:  cfg.MaxQuantity,
		AgentEnabled: cfg.EnableValidationAgent,
	}
}

// Coordinator drives the bounded export loop: merge, preflight, append and,
// on failure, one correction round before the next attempt.
type Coordinator struct {
	merger    Merger
	submitter Submitter
	corrector Corrector
	opts      Options
	log       zerolog.Logger
}

// NewCoordinator builds a coordinator. A nil corrector disables correction.
func NewCoordinator(merger Merger, submitter Submitter, corrector Corrector, opts Options, log zerolog.Logger) *Coordinator {
	opts.MaxAttempts = config.ClampAttempts(opts.MaxAttempts)
	if opts.MaxQuantity <= 0 {
		opts.MaxQuantity = 10
	}
	if corrector == nil {
		opts.AgentEnabled = false
	}
	return &Coordinator{
		merger:    merger,
		submitter: submitter,
		corrector: corrector,
		opts:      opts,
		log:       log.With().Str("component", "exporter").Logger(),
	}
}

func (c *Coordinator) MaxAttempts() int {
	return c.opts.MaxAttempts
}

func (c *Coordinator) Submit(ctx context.Context, items []internal.ExtractedItem, ocrText string) (*Submission, error) {
	if len(items) == 0 {
		return nil, &Failure{Kind: ErrNoItems, History: []internal.AttemptHistoryEntry{}}
	}

	pending := items
	var current []internal.ResolvedItem
	history := []internal.AttemptHistoryEntry{}

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &Failure{Kind: ErrSubmissionFailed, Err: err, History: history, Items: current}
		}

		current = c.merger.Merge(ctx, pending, ocrText)
		result, err := c.attempt(ctx, current)
		if err == nil {
			c.log.Info().Int("attempt", attempt).Int64("rows", result.UpdatedRows).Str("range", result.UpdatedRange).Msg("export succeeded")
			return &Submission{Result: result, Items: current, Attempts: attempt, History: history}, nil
		}

		c.log.Warn().Err(err).Int("attempt", attempt).Msg("export attempt failed")
		history = append(history, internal.AttemptHistoryEntry{Attempt: attempt, Error: err.Error()})
		entry := &history[len(history)-1]

		if !c.opts.AgentEnabled || attempt >= c.opts.MaxAttempts {
			return nil, &Failure{Kind: ErrAttemptsExhausted, Err: withKind(err), History: history, Items: current}
		}

		correction, cerr := c.correct(ctx, CorrectionRequest{
			Items:     current,
			OCRText:   ocrText,
			LastError: err.Error(),
			Attempt:   attempt,
		})
		if cerr != nil {
			msg := cerr.Error()
			entry.AgentError = &msg
			c.log.Warn().Err(cerr).Int("attempt", attempt).Msg("correction agent failed")
			return nil, &Failure{Kind: ErrCorrectionFailed, Err: cerr, History: history, Items: current}
		}

		entry.AgentApplied = true
		entry.AgentNotes = correction.Notes
		pending = correction.Items
	}

	return nil, &Failure{Kind: ErrAttemptsExhausted, History: history, Items: current}
}

func (c *Coordinator) attempt(ctx context.Context, items []internal.ResolvedItem) (internal.SubmissionResult, error) {
	if err := Preflight(items, c.opts.MaxQuantity); err != nil {
		return internal.SubmissionResult{}, err
	}
	return c.submitter.Append(ctx, items)
}

// withKind tags an attempt error with ErrPreflightInvalid or
// ErrSubmissionFailed so both the terminal and the attempt kind match.
func withKind(err error) error {
	if errors.Is(err, ErrPreflightInvalid) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
}

func (c *Coordinator) correct(ctx context.Context, req CorrectionRequest) (Correction, error) {
	correction, err := c.corrector.Correct(ctx, req)
	if err != nil {
		return Correction{}, err
	}
	if len(correction.Items) == 0 {
		return Correction{}, errors.New("correction agent returned no items")
	}
	return correction, nil
}

// Summary is a one-line description of a failure for logs and API payloads.
func Summary(err error) string {
	f, ok := AsFailure(err)
	if !ok {
		return err.Error()
	}
	return fmt.Sprintf("%s after %d attempt(s)", f.Error(), len(f.History))
}
