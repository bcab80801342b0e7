// Package pipeline runs the whole collection for a list of subjects: it
// prepares directories, gathers frames, builds each Profile and persists it.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"celeb-dna-collector/batch"
	"celeb-dna-collector/dna"
	"celeb-dna-collector/frames"
)

// Subject outcome statuses.
const (
	StatusOK     = "ok"
	StatusNoData = "no_data"
	StatusError  = "error"
)

// Subject is one entry of the catalogue.
type Subject struct {
	ID            string
	Name          string
	Category      string
	SignatureLook string
	Queries       []string
}

// SubjectProcessor turns a subject's frames into a Profile.
type SubjectProcessor interface {
	ProcessSubject(ctx context.Context, subj batch.Subject, frames []string) (*dna.Profile, error)
}

// FrameCollector downloads videos for queries and extracts frames under
// outputDir/frames, returning how many frames were written.
type FrameCollector interface {
	CollectAll(ctx context.Context, queries []string, outputDir string) (int, error)
}

// ProfileUploader upserts a Profile into the remote store.
type ProfileUploader interface {
	Upsert(ctx context.Context, p *dna.Profile) (json.RawMessage, error)
}

// Storage records runs locally.
type Storage interface {
	StartRun(runID string, total int) error
	FinishRun(runID string, succeeded, total int) error
	RecordSubjectResult(runID string, r SubjectResult) error
	UpsertProfile(runID string, p *dna.Profile) error
}

// Observer is told about subject and upload outcomes.
type Observer interface {
	SubjectFinished(status string)
	UploadFinished(ok bool)
}

// Config holds pipeline settings.
type Config struct {
	OutputDir string
}

// Deps holds the collaborators of a Runner. Collector and Uploader may be nil
// to skip downloading or uploading; Storage and Observer are optional.
type Deps struct {
	Processor SubjectProcessor
	Collector FrameCollector
	Uploader  ProfileUploader
	Storage   Storage
	Observer  Observer
}

// SubjectResult is the outcome of one subject within a run.
type SubjectResult struct {
	SubjectID      string
	SubjectName    string
	Status         string
	FramesAnalyzed int
	TotalFrames    int
	ArtifactPath   string
	Uploaded       bool
	Err            error
}

// Summary reports a finished run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []SubjectResult
	Succeeded  int
	Total      int
}

// Duration is the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Runner orchestrates a multi-subject run.
type Runner struct {
	deps   Deps
	config Config
	now    func() time.Time
	newID  func() string
}

// NewRunner creates a Runner.
func NewRunner(deps Deps, cfg Config) *Runner {
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Runner{
		deps:   deps,
		config: cfg,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Run processes subjects in order. A subject's failure never stops the run;
// the only error returned is the context ending, together with the partial
// summary.
func (r *Runner) Run(ctx context.Context, subjects []Subject) (*Summary, error) {
	sum := &Summary{
		RunID:     r.newID(),
		StartedAt: r.now(),
		Total:     len(subjects),
	}

	slog.Info("run starting", "run_id", sum.RunID, "subjects", len(subjects))

	if r.deps.Storage != nil {
		if err := r.deps.Storage.StartRun(sum.RunID, sum.Total); err != nil {
			slog.Error("failed to record run start", "run_id", sum.RunID, "error", err)
		}
	}

	var runErr error
	for i, subj := range subjects {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		slog.Info("processing subject", "index", i+1, "total", len(subjects), "subject_id", subj.ID, "subject", subj.Name)

		res, err := r.processSubject(ctx, sum.RunID, subj)
		sum.Results = append(sum.Results, res)
		if res.Status == StatusOK {
			sum.Succeeded++
		}
		r.deps.Observer.SubjectFinished(res.Status)

		if r.deps.Storage != nil {
			if err := r.deps.Storage.RecordSubjectResult(sum.RunID, res); err != nil {
				slog.Error("failed to record subject result", "subject_id", subj.ID, "error", err)
			}
		}

		if err != nil {
			runErr = err
			break
		}
	}

	sum.FinishedAt = r.now()

	if r.deps.Storage != nil {
		if err := r.deps.Storage.FinishRun(sum.RunID, sum.Succeeded, sum.Total); err != nil {
			slog.Error("failed to record run finish", "run_id", sum.RunID, "error", err)
		}
	}

	slog.Info("run complete",
		"run_id", sum.RunID,
		"succeeded", sum.Succeeded,
		"total", sum.Total,
		"duration", sum.Duration().Round(time.Second),
	)
	return sum, runErr
}

// processSubject never fails for subject-level problems; those are folded
// into the result. The returned error is non-nil only on cancellation.
func (r *Runner) processSubject(ctx context.Context, runID string, subj Subject) (SubjectResult, error) {
	res := SubjectResult{SubjectID: subj.ID, SubjectName: subj.Name}

	dirs, err := EnsureDirs(r.config.OutputDir, subj.ID)
	if err != nil {
		slog.Error("failed to create subject directories", "subject_id", subj.ID, "error", err)
		res.Status, res.Err = StatusError, err
		return res, nil
	}

	if r.deps.Collector != nil {
		n, err := r.deps.Collector.CollectAll(ctx, subj.Queries, dirs.Root)
		if err != nil {
			res.Status, res.Err = StatusError, err
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			slog.Error("collection failed", "subject_id", subj.ID, "error", err)
		} else {
			slog.Info("collected frames", "subject_id", subj.ID, "frames", n)
		}
	}

	frameList, err := frames.List(dirs.Frames)
	if err != nil {
		slog.Error("failed to list frames", "subject_id", subj.ID, "error", err)
		res.Status, res.Err = StatusError, err
		return res, nil
	}

	profile, err := r.deps.Processor.ProcessSubject(ctx, batch.Subject{ID: subj.ID, Name: subj.Name}, frameList)
	if err != nil {
		var nd *batch.NoDataError
		if errors.As(err, &nd) {
			res.Status, res.Err, res.TotalFrames = StatusNoData, err, nd.Attempted
			return res, nil
		}
		res.Status, res.Err = StatusError, err
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		slog.Error("failed to process subject", "subject_id", subj.ID, "error", err)
		return res, nil
	}

	profile.Category = subj.Category
	profile.SignatureLook = subj.SignatureLook
	res.Status = StatusOK
	res.FramesAnalyzed = profile.FramesAnalyzed
	res.TotalFrames = profile.TotalFrames

	path, err := WriteArtifact(dirs.Analyzed, profile)
	if err != nil {
		slog.Error("failed to write DNA artifact", "subject_id", subj.ID, "error", err)
	} else {
		res.ArtifactPath = path
		slog.Info("saved DNA artifact", "subject_id", subj.ID, "path", path)
	}

	if r.deps.Storage != nil {
		if err := r.deps.Storage.UpsertProfile(runID, profile); err != nil {
			slog.Error("failed to store profile locally", "subject_id", subj.ID, "error", err)
		}
	}

	if r.deps.Uploader != nil {
		if _, err := r.deps.Uploader.Upsert(ctx, profile); err != nil {
			slog.Error("failed to upload profile", "subject_id", subj.ID, "artifact", res.ArtifactPath, "error", err)
			res.Err = fmt.Errorf("upload: %w", err)
			r.deps.Observer.UploadFinished(false)
		} else {
			res.Uploaded = true
			r.deps.Observer.UploadFinished(true)
		}
	} else {
		slog.Info("skipping upload", "subject_id", subj.ID)
	}

	slog.Info("subject complete",
		"subject_id", subj.ID,
		"analyzed", res.FramesAnalyzed,
		"attempted", res.TotalFrames,
		"uploaded", res.Uploaded,
	)
	return res, nil
}

type nopObserver struct{}

func (nopObserver) SubjectFinished(string) {}
func (nopObserver) UploadFinished(bool)    {}
