// Package report renders a run summary for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"celeb-dna-collector/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)
	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	statusColors = map[string]lipgloss.Color{
		pipeline.StatusOK:     lipgloss.Color("#3FB950"),
		pipeline.StatusNoData: lipgloss.Color("#D29922"),
		pipeline.StatusError:  lipgloss.Color("#FF6B6B"),
	}
)

// Render formats s as a titled table with one row per subject and an
// overall succeeded/total footer.
func Render(s *pipeline.Summary) string {
	rows := make([][]string, 0, len(s.Results))
	for _, r := range s.Results {
		rows = append(rows, []string{
			r.SubjectID,
			r.SubjectName,
			r.Status,
			fmt.Sprintf("%d/%d", r.FramesAnalyzed, r.TotalFrames),
			uploadCell(r),
			noteCell(r),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))).
		Headers("SUBJECT", "NAME", "STATUS", "FRAMES", "UPLOAD", "NOTE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(rows) {
				if c, ok := statusColors[rows[row][2]]; ok {
					return cellStyle.Foreground(c)
				}
			}
			return cellStyle
		})

	var b strings.Builder
	b.WriteString(titleStyle.Render("Makeup DNA run " + s.RunID))
	b.WriteString("\n")
	b.WriteString(t.String())
	b.WriteString("\n")
	b.WriteString(footerStyle.Render(fmt.Sprintf("%d/%d subjects succeeded in %s",
		s.Succeeded, s.Total, s.Duration().Round(time.Second))))
	b.WriteString("\n")
	return b.String()
}

// Write renders s to w.
func Write(w io.Writer, s *pipeline.Summary) error {
	_, err := io.WriteString(w, Render(s))
	return err
}

func uploadCell(r pipeline.SubjectResult) string {
	switch {
	case r.Uploaded:
		return "yes"
	case r.Status == pipeline.StatusOK:
		return "no"
	default:
		return "-"
	}
}

func noteCell(r pipeline.SubjectResult) string {
	if r.Err == nil {
		return ""
	}
	msg := r.Err.Error()
	if len([]rune(msg)) > 48 {
		msg = string([]rune(msg)[:47]) + "…"
	}
	return msg
}
