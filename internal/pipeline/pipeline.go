// Package pipeline runs one invoice document through extraction, parsing,
// validation and duplicate detection and decides its final status.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/invoice-intake/internal/dedup"
	"github.com/zombor/invoice-intake/internal/invoice"
	"github.com/zombor/invoice-intake/internal/parsing"
	"github.com/zombor/invoice-intake/internal/scanning"
	"github.com/zombor/invoice-intake/internal/textnorm"
	"github.com/zombor/invoice-intake/internal/validation"
)

// RetryPolicy bounds extraction retries. Backoff doubles per attempt from
// InitialBackoff and is capped at MaxBackoff.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy tries three times, waiting 500ms then 1s
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
}

// DefaultExtractTimeout bounds a single extraction attempt
const DefaultExtractTimeout = 2 * time.Minute

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}

// TimeSource provides the processing timestamp
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Pipeline is safe for concurrent use when its extractor and index are
type Pipeline struct {
	extractor      scanning.Extractor
	detector       *dedup.Detector
	parser         *parsing.Parser
	validator      *validation.Validator
	retry          RetryPolicy
	extractTimeout time.Duration
	clock          TimeSource
	sleep          func(ctx context.Context, d time.Duration) error
}

type Option func(*Pipeline)

func WithParser(p *parsing.Parser) Option {
	return func(pl *Pipeline) {
		if p != nil {
			pl.parser = p
		}
	}
}

func WithValidator(v *validation.Validator) Option {
	return func(pl *Pipeline) {
		if v != nil {
			pl.validator = v
		}
	}
}

func WithRetry(r RetryPolicy) Option {
	return func(pl *Pipeline) {
		if r.MaxAttempts > 0 {
			pl.retry = r
		}
	}
}

// WithExtractTimeout bounds each extraction attempt
func WithExtractTimeout(d time.Duration) Option {
	return func(pl *Pipeline) {
		if d > 0 {
			pl.extractTimeout = d
		}
	}
}

func WithClock(c TimeSource) Option {
	return func(pl *Pipeline) {
		if c != nil {
			pl.clock = c
		}
	}
}

// New creates a Pipeline. The index is only read here; persisting callers
// claim keys through Commit or their own store.
func New(extractor scanning.Extractor, index dedup.Index, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:      extractor,
		detector:       dedup.NewDetector(index),
		parser:         parsing.NewParser(),
		validator:      validation.NewValidator(validation.Config{}),
		retry:          DefaultRetryPolicy,
		extractTimeout: DefaultExtractTimeout,
		clock:          defaultTimeSource{},
		sleep:          sleepContext,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs a document end to end. Content problems are reported in the
// result; the error is non-nil only when the duplicate index fails or ctx is
// cancelled before extraction completes.
func (p *Pipeline) Process(ctx context.Context, doc invoice.RawDocument) (*invoice.ProcessingResult, error) {
	result := &invoice.ProcessingResult{
		DocumentName: doc.Name,
		Format:       doc.Format,
		Candidate:    invoice.NewCandidate(),
		Verdict:      invoice.NewVerdict(nil),
		ProcessedAt:  p.clock.Now().UTC(),
	}

	extracted, attempts, err := p.extract(ctx, doc)
	result.Attempts = attempts
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("extracting %s: %w", doc.Name, err)
		}
		slog.Warn("Extraction failed", "document", doc.Name, "attempts", attempts, "error", err)
		result.FinalStatus = invoice.FinalExtractionFailed
		result.ExtractionError = err.Error()
		return result, nil
	}
	result.Extraction = extracted

	normalized := textnorm.Normalize(extracted.Text)
	result.Candidate = p.parser.Parse(normalized, extracted.Text)
	result.Verdict = p.validator.Validate(result.Candidate)

	dup, key, err := p.detector.IsDuplicate(result.Candidate, result.Verdict)
	if err != nil {
		return nil, fmt.Errorf("checking duplicate for %s: %w", doc.Name, err)
	}
	result.IsDuplicate = dup
	result.Key = key
	if key.IsZero() {
		result.Key, _ = dedup.KeyFor(result.Candidate)
	}
	result.FinalStatus = invoice.FinalStatusFor(result.Verdict, dup)

	slog.Info("Processed invoice",
		"document", doc.Name,
		"status", result.FinalStatus,
		"violations", len(result.Verdict.Violations),
		"extraction_confidence", extracted.Confidence,
	)
	return result, nil
}

// Commit claims the key of a stored result in the index. A lost race with a
// concurrent run of the same invoice turns the result into a duplicate.
func (p *Pipeline) Commit(result *invoice.ProcessingResult) error {
	if result == nil || result.FinalStatus != invoice.FinalStored {
		return nil
	}
	inserted, err := p.detector.Claim(result.Key)
	if err != nil {
		return fmt.Errorf("committing %s: %w", result.DocumentName, err)
	}
	if !inserted {
		*result = result.AsDuplicate()
	}
	return nil
}

// extract calls the extractor with a per-attempt timeout, retrying
// transient failures with exponential backoff
func (p *Pipeline) extract(ctx context.Context, doc invoice.RawDocument) (invoice.ExtractedText, int, error) {
	var lastErr error
	for attempt := 1; attempt <= p.retry.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.extractTimeout)
		text, err := p.extractor.Extract(attemptCtx, doc)
		cancel()
		if err == nil {
			return text, attempt, nil
		}
		if ctx.Err() != nil {
			return invoice.ExtractedText{}, attempt, ctx.Err()
		}
		lastErr = err
		if !scanning.IsTransient(err) || attempt == p.retry.MaxAttempts {
			return invoice.ExtractedText{}, attempt, err
		}

		wait := p.retry.backoff(attempt)
		slog.Debug("Retrying extraction", "document", doc.Name, "attempt", attempt, "wait", wait, "error", err)
		if err := p.sleep(ctx, wait); err != nil {
			return invoice.ExtractedText{}, attempt, err
		}
	}
	return invoice.ExtractedText{}, p.retry.MaxAttempts, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
