// Package batch drives the rate-limited analysis of a subject's frames and
// fuses the successful samples into one Profile.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"celeb-dna-collector/consensus"
	"celeb-dna-collector/dna"
)

// FrameAnalyzer analyzes one frame in the context of a subject name.
type FrameAnalyzer interface {
	Analyze(ctx context.Context, framePath, subjectName string) (*dna.Sample, error)
}

// Limiter admits calls to the analyzer.
type Limiter interface {
	Admit(ctx context.Context) error
}

// Observer is told about every frame outcome.
type Observer interface {
	FrameAnalyzed(subjectID string)
	FrameFailed(subjectID, reason string)
}

// Failure reasons passed to Observer.FrameFailed.
const (
	ReasonMissing    = "missing"
	ReasonProcessing = "processing"
)

var (
	// ErrNoData is matched by every outcome that yields no Profile.
	ErrNoData = errors.New("no data")
	// ErrNoFrames: the subject had no frames to analyze.
	ErrNoFrames = fmt.Errorf("%w: no frames", ErrNoData)
	// ErrAllFailed: every frame analysis failed.
	ErrAllFailed = fmt.Errorf("%w: every frame analysis failed", ErrNoData)
)

// NoDataError is returned by ProcessSubject when no Profile can be built.
type NoDataError struct {
	SubjectID string
	Attempted int
	Reason    error
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("subject %s: %v (%d frames attempted)", e.SubjectID, e.Reason, e.Attempted)
}

func (e *NoDataError) Unwrap() error { return e.Reason }

// Subject identifies whose frames are being processed.
type Subject struct {
	ID   string
	Name string
}

// Processor analyzes frames one at a time through a shared Limiter.
type Processor struct {
	analyzer FrameAnalyzer
	limiter  Limiter
	observer Observer
}

// NewProcessor creates a Processor. observer may be nil.
func NewProcessor(analyzer FrameAnalyzer, limiter Limiter, observer Observer) *Processor {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Processor{
		analyzer: analyzer,
		limiter:  limiter,
		observer: observer,
	}
}

// ProcessFrames analyzes frames in order, skipping any that fail. It returns
// the successful samples in input order and the number of frames attempted.
// The only error is the context ending while waiting for admission.
func (p *Processor) ProcessFrames(ctx context.Context, subj Subject, frames []string) ([]dna.Sample, int, error) {
	samples := make([]dna.Sample, 0, len(frames))

	for i, frame := range frames {
		slog.Info("analyzing frame",
			"subject_id", subj.ID,
			"index", i+1,
			"total", len(frames),
			"frame", filepath.Base(frame),
		)

		if err := p.limiter.Admit(ctx); err != nil {
			return samples, len(frames), fmt.Errorf("waiting for rate limiter: %w", err)
		}

		sample, err := p.analyzer.Analyze(ctx, frame, subj.Name)
		if err != nil {
			reason := failureReason(err)
			slog.Error("failed to analyze frame", "subject_id", subj.ID, "frame", frame, "reason", reason, "error", err)
			p.observer.FrameFailed(subj.ID, reason)
			continue
		}
		if sample == nil {
			slog.Error("analyzer returned no sample", "subject_id", subj.ID, "frame", frame)
			p.observer.FrameFailed(subj.ID, ReasonProcessing)
			continue
		}

		samples = append(samples, *sample)
		p.observer.FrameAnalyzed(subj.ID)
	}

	return samples, len(frames), nil
}

// ProcessSubject analyzes frames and merges the successful samples. It
// returns a *NoDataError (matching ErrNoData) when there are no frames or
// every analysis failed; any other error means the context ended.
func (p *Processor) ProcessSubject(ctx context.Context, subj Subject, frames []string) (*dna.Profile, error) {
	if len(frames) == 0 {
		slog.Warn("no frames found", "subject_id", subj.ID, "subject", subj.Name)
		return nil, &NoDataError{SubjectID: subj.ID, Reason: ErrNoFrames}
	}

	slog.Info("processing frames", "subject_id", subj.ID, "subject", subj.Name, "frames", len(frames))

	samples, attempted, err := p.ProcessFrames(ctx, subj, frames)
	if err != nil {
		return nil, err
	}

	if len(samples) == 0 {
		slog.Warn("no successful analyses", "subject_id", subj.ID, "subject", subj.Name, "attempted", attempted)
		return nil, &NoDataError{SubjectID: subj.ID, Attempted: attempted, Reason: ErrAllFailed}
	}

	profile := &dna.Profile{
		SubjectID:      subj.ID,
		SubjectName:    subj.Name,
		Consolidated:   consensus.Merge(samples),
		FramesAnalyzed: len(samples),
		TotalFrames:    attempted,
	}

	slog.Info("completed DNA extraction",
		"subject_id", subj.ID,
		"subject", subj.Name,
		"analyzed", profile.FramesAnalyzed,
		"attempted", profile.TotalFrames,
	)
	return profile, nil
}

func failureReason(err error) string {
	if errors.Is(err, fs.ErrNotExist) {
		return ReasonMissing
	}
	return ReasonProcessing
}

type nopObserver struct{}

func (nopObserver) FrameAnalyzed(string)       {}
func (nopObserver) FrameFailed(string, string) {}
