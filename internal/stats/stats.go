// Package stats summarizes recorded story runs.
package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/verte-zerg/lovefit/internal/model"
)

const (
	sparkChars          = " .:-=+*#%@"
	terminalWidthBackup = 80
)

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// FormatClock renders seconds as mm:ss.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// TerminalWidth returns the width of stdout, or 80 when it is not a terminal.
func TerminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return terminalWidthBackup
}

// RenderSummary prints aggregate numbers across runs.
func RenderSummary(w io.Writer, runs []model.RunAggregate) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}
	var totalSec, longest, finished, choices, hrRuns int
	var hrSum float64
	for _, r := range runs {
		totalSec += r.ElapsedSeconds
		longest = max(longest, r.ElapsedSeconds)
		if r.ReachedFinale {
			finished++
		}
		choices += r.Choices
		if r.HRAvg > 0 {
			hrSum += r.HRAvg
			hrRuns++
		}
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Runs: %d", len(runs)),
		fmt.Sprintf("Finished: %d (%.0f%%)", finished, float64(finished)/float64(len(runs))*100),
		fmt.Sprintf("Total time: %s", FormatClock(totalSec)),
		fmt.Sprintf("Avg time: %s", FormatClock(totalSec/len(runs))),
		fmt.Sprintf("Longest: %s", FormatClock(longest)),
		fmt.Sprintf("Choices made: %d", choices),
	}
	if hrRuns > 0 {
		lines = append(lines, fmt.Sprintf("Avg heart rate: %.0f bpm", hrSum/float64(hrRuns)))
	}
	lines = append(lines, "")
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderRunTable prints one row per run, oldest first.
func RenderRunTable(w io.Writer, runs []model.RunAggregate) error {
	if len(runs) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Recent Runs"); err != nil {
		return err
	}
	headers := []string{"Ended", "Mode", "Time", "Segment", "Finale", "Avg HR", "Choices"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		finale := "no"
		if r.ReachedFinale {
			finale = "yes"
		}
		hr := "-"
		if r.HRAvg > 0 {
			hr = fmt.Sprintf("%.0f", r.HRAvg)
		}
		rows = append(rows, []string{
			r.EndedAt.Local().Format("2006-01-02 15:04"),
			r.Mode,
			FormatClock(r.ElapsedSeconds),
			fmt.Sprintf("%d", r.FinalIndex+1),
			finale,
			hr,
			fmt.Sprintf("%d", r.Choices),
		})
	}
	rightAlign := map[int]bool{2: true, 3: true, 5: true, 6: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderTrend prints a sparkline of run length smoothed over window runs,
// trimmed to the most recent runs that fit in width.
func RenderTrend(w io.Writer, runs []model.RunAggregate, window, width int) error {
	if len(runs) < 2 {
		return nil
	}
	values := make([]float64, len(runs))
	for i, r := range runs {
		values[i] = float64(r.ElapsedSeconds) / 60
	}
	values = MovingAverage(values, window)
	const label = "Minutes per run: "
	if avail := width - len(label); avail > 0 && len(values) > avail {
		values = values[len(values)-avail:]
	}
	_, err := fmt.Fprintf(w, "%s%s\n", label, Sparkline(values))
	return err
}
