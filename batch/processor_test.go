package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celeb-dna-collector/dna"
)

// --- Mock implementations ---

type mockAnalyzer struct {
	samples map[string]*dna.Sample
	errs    map[string]error
	calls   []string
	events  *[]string
}

func (m *mockAnalyzer) Analyze(ctx context.Context, framePath, subjectName string) (*dna.Sample, error) {
	m.calls = append(m.calls, framePath)
	if m.events != nil {
		*m.events = append(*m.events, "analyze:"+framePath)
	}
	if err, ok := m.errs[framePath]; ok {
		return nil, err
	}
	if s, ok := m.samples[framePath]; ok {
		return s, nil
	}
	return &dna.Sample{}, nil
}

type mockLimiter struct {
	admits int
	err    error
	events *[]string
}

func (m *mockLimiter) Admit(ctx context.Context) error {
	if m.err != nil {
		return m.err
	}
	m.admits++
	if m.events != nil {
		*m.events = append(*m.events, "admit")
	}
	return nil
}

type mockObserver struct {
	analyzed int
	failed   map[string]int
}

func newMockObserver() *mockObserver {
	return &mockObserver{failed: make(map[string]int)}
}

func (m *mockObserver) FrameAnalyzed(subjectID string)       { m.analyzed++ }
func (m *mockObserver) FrameFailed(subjectID, reason string) { m.failed[reason]++ }

func weightSample(score float64, shape string) *dna.Sample {
	return &dna.Sample{
		MakeupAnalysis: &dna.MakeupAnalysis{EyePattern: &dna.EyePattern{Shape: shape}},
		FiveMetrics:    &dna.FiveMetrics{VisualWeightScore: &score},
	}
}

var jennie = Subject{ID: "jennie", Name: "Jennie Kim"}

// --- Tests ---

func TestProcessFrames_SkipsFailuresAndKeepsOrder(t *testing.T) {
	a := &mockAnalyzer{
		samples: map[string]*dna.Sample{
			"f1.jpg": weightSample(10, "cat_eye"),
			"f3.jpg": weightSample(30, "smoky"),
			"f4.jpg": weightSample(40, "round"),
		},
		errs: map[string]error{
			"f2.jpg": fmt.Errorf("%w: f2.jpg", fs.ErrNotExist),
			"f5.jpg": errors.New("gemini exploded"),
		},
	}
	l := &mockLimiter{}
	obs := newMockObserver()
	p := NewProcessor(a, l, obs)

	frames := []string{"f1.jpg", "f2.jpg", "f3.jpg", "f4.jpg", "f5.jpg"}
	samples, attempted, err := p.ProcessFrames(context.Background(), jennie, frames)
	require.NoError(t, err)

	assert.Equal(t, 5, attempted)
	require.Len(t, samples, 3)
	assert.Equal(t, "cat_eye", samples[0].MakeupAnalysis.EyePattern.Shape)
	assert.Equal(t, "smoky", samples[1].MakeupAnalysis.EyePattern.Shape)
	assert.Equal(t, "round", samples[2].MakeupAnalysis.EyePattern.Shape)

	assert.Equal(t, frames, a.calls, "every frame is attempted in order")
	assert.Equal(t, 5, l.admits)
	assert.Equal(t, 3, obs.analyzed)
	assert.Equal(t, 1, obs.failed[ReasonMissing])
	assert.Equal(t, 1, obs.failed[ReasonProcessing])
	assert.Equal(t, []string{"f1.jpg", "f2.jpg", "f3.jpg", "f4.jpg", "f5.jpg"}, frames, "input is not mutated")
}

func TestProcessFrames_AdmitsBeforeEveryCall(t *testing.T) {
	var events []string
	a := &mockAnalyzer{events: &events}
	l := &mockLimiter{events: &events}
	p := NewProcessor(a, l, nil)

	_, _, err := p.ProcessFrames(context.Background(), jennie, []string{"a.jpg", "b.jpg"})
	require.NoError(t, err)

	assert.Equal(t, []string{"admit", "analyze:a.jpg", "admit", "analyze:b.jpg"}, events)
}

func TestProcessFrames_NilSampleCountsAsFailure(t *testing.T) {
	a := &mockAnalyzer{samples: map[string]*dna.Sample{"a.jpg": nil}}
	obs := newMockObserver()
	p := NewProcessor(a, &mockLimiter{}, obs)

	samples, attempted, err := p.ProcessFrames(context.Background(), jennie, []string{"a.jpg"})
	require.NoError(t, err)
	assert.Empty(t, samples)
	assert.Equal(t, 1, attempted)
	assert.Equal(t, 1, obs.failed[ReasonProcessing])
}

func TestProcessFrames_StopsWhenLimiterCanceled(t *testing.T) {
	a := &mockAnalyzer{}
	l := &mockLimiter{err: context.Canceled}
	p := NewProcessor(a, l, nil)

	_, _, err := p.ProcessFrames(context.Background(), jennie, []string{"a.jpg", "b.jpg"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, a.calls)
}

func TestProcessSubject_MergesSuccessfulSamples(t *testing.T) {
	a := &mockAnalyzer{
		samples: map[string]*dna.Sample{
			"f1.jpg": weightSample(60, "cat_eye"),
			"f2.jpg": weightSample(70, "smoky"),
			"f4.jpg": weightSample(80, "cat_eye"),
		},
		errs: map[string]error{"f3.jpg": errors.New("bad json")},
	}
	p := NewProcessor(a, &mockLimiter{}, nil)

	profile, err := p.ProcessSubject(context.Background(), jennie, []string{"f1.jpg", "f2.jpg", "f3.jpg", "f4.jpg"})
	require.NoError(t, err)
	require.NotNil(t, profile)

	assert.Equal(t, "jennie", profile.SubjectID)
	assert.Equal(t, "Jennie Kim", profile.SubjectName)
	assert.Equal(t, 3, profile.FramesAnalyzed)
	assert.Equal(t, 4, profile.TotalFrames)
	assert.LessOrEqual(t, profile.FramesAnalyzed, profile.TotalFrames)
	// Divisor is the number of merged samples: (60+70+80)/3.
	assert.Equal(t, 70, profile.FiveMetrics.VisualWeightScore)
	assert.Equal(t, "cat_eye", profile.MakeupAnalysis.EyePattern.Shape)
}

func TestProcessSubject_NoFramesSkipsAnalysis(t *testing.T) {
	a := &mockAnalyzer{}
	l := &mockLimiter{}
	p := NewProcessor(a, l, nil)

	profile, err := p.ProcessSubject(context.Background(), jennie, nil)

	assert.Nil(t, profile)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoData)
	assert.ErrorIs(t, err, ErrNoFrames)
	assert.Empty(t, a.calls, "analyzer must not be invoked")
	assert.Zero(t, l.admits, "limiter must not be touched")

	var nd *NoDataError
	require.ErrorAs(t, err, &nd)
	assert.Equal(t, 0, nd.Attempted)
}

func TestProcessSubject_AllFailed(t *testing.T) {
	a := &mockAnalyzer{errs: map[string]error{
		"f1.jpg": errors.New("boom"),
		"f2.jpg": errors.New("boom"),
		"f3.jpg": fs.ErrNotExist,
	}}
	p := NewProcessor(a, &mockLimiter{}, nil)

	profile, err := p.ProcessSubject(context.Background(), jennie, []string{"f1.jpg", "f2.jpg", "f3.jpg"})

	assert.Nil(t, profile)
	assert.ErrorIs(t, err, ErrNoData)
	assert.ErrorIs(t, err, ErrAllFailed)
	assert.NotErrorIs(t, err, ErrNoFrames)

	var nd *NoDataError
	require.ErrorAs(t, err, &nd)
	assert.Equal(t, "jennie", nd.SubjectID)
	assert.Equal(t, 3, nd.Attempted)
	assert.Contains(t, nd.Error(), "3 frames attempted")
}

func TestProcessSubject_CanceledIsNotNoData(t *testing.T) {
	p := NewProcessor(&mockAnalyzer{}, &mockLimiter{err: context.DeadlineExceeded}, nil)

	_, err := p.ProcessSubject(context.Background(), jennie, []string{"f1.jpg"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrNoData)
}
