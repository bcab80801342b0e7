package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celeb-dna-collector/pipeline"
)

func testSummary() *pipeline.Summary {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return &pipeline.Summary{
		RunID:      "run-42",
		StartedAt:  start,
		FinishedAt: start.Add(3*time.Minute + 400*time.Millisecond),
		Succeeded:  1,
		Total:      3,
		Results: []pipeline.SubjectResult{
			{SubjectID: "jennie", SubjectName: "Jennie Kim", Status: pipeline.StatusOK, FramesAnalyzed: 9, TotalFrames: 10, Uploaded: true},
			{SubjectID: "suzy", SubjectName: "Bae Suzy", Status: pipeline.StatusNoData, Err: errors.New("no data: no frames")},
			{SubjectID: "hanni", SubjectName: "Hanni", Status: pipeline.StatusError, Err: errors.New(strings.Repeat("x", 80))},
		},
	}
}

func TestRender(t *testing.T) {
	out := Render(testSummary())

	assert.Contains(t, out, "Makeup DNA run run-42")
	assert.Contains(t, out, "SUBJECT")
	assert.Contains(t, out, "jennie")
	assert.Contains(t, out, "9/10")
	assert.Contains(t, out, "0/0")
	assert.Contains(t, out, "no data: no frames")
	assert.Contains(t, out, "1/3 subjects succeeded in 3m0s")
	assert.NotContains(t, out, strings.Repeat("x", 60), "long notes are truncated")
}

func TestRender_Empty(t *testing.T) {
	out := Render(&pipeline.Summary{RunID: "empty"})
	assert.Contains(t, out, "0/0 subjects succeeded")
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testSummary()))
	assert.Equal(t, Render(testSummary()), buf.String())
}

func TestUploadCell(t *testing.T) {
	assert.Equal(t, "yes", uploadCell(pipeline.SubjectResult{Status: pipeline.StatusOK, Uploaded: true}))
	assert.Equal(t, "no", uploadCell(pipeline.SubjectResult{Status: pipeline.StatusOK}))
	assert.Equal(t, "-", uploadCell(pipeline.SubjectResult{Status: pipeline.StatusNoData}))
}
