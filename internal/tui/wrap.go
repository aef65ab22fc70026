package tui

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

type styledRune struct {
	s         string
	width     int
	isSpace   bool
	isNewline bool
}

// buildStyledRunes styles segment text for display. Runes at or past revealed
// are rendered pending; quoted speech is highlighted once revealed.
func buildStyledRunes(text []rune, revealed int, base lipgloss.Style) []styledRune {
	out := make([]styledRune, 0, len(text))
	var quote rune
	for i, r := range text {
		if r == '\n' {
			out = append(out, styledRune{isNewline: true})
			continue
		}
		closing := false
		switch {
		case quote == 0 && isQuote(r) && (i == 0 || unicode.IsSpace(text[i-1])):
			quote = r
		case quote != 0 && r == quote && (i == len(text)-1 || unicode.IsSpace(text[i+1]) || unicode.IsPunct(text[i+1])):
			closing = true
		}
		style := base
		switch {
		case i >= revealed:
			style = pendingStyle
		case quote != 0:
			style = dialogueStyle
		}
		if closing {
			quote = 0
		}
		out = append(out, styledRune{
			s:       style.Render(string(r)),
			width:   runewidth.RuneWidth(r),
			isSpace: r == ' ',
		})
	}
	return out
}

func isQuote(r rune) bool {
	return r == '"' || r == '\''
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		if item.isNewline {
			b.WriteRune('\n')
			continue
		}
		b.WriteString(item.s)
	}
	return b.String()
}

func wrapStyledRunes(runes []styledRune, width int) string {
	if width <= 0 {
		return renderStyledRunes(runes)
	}
	var out strings.Builder
	line := make([]styledRune, 0, len(runes))
	lineWidth := 0
	lastSpaceIdx := -1

	for i := 0; i < len(runes); {
		item := runes[i]
		if item.isNewline {
			out.WriteString(renderStyledRunes(line))
			out.WriteRune('\n')
			line = line[:0]
			lineWidth = 0
			lastSpaceIdx = -1
			i++
			continue
		}
		if lineWidth+item.width > width && len(line) > 0 {
			if lastSpaceIdx >= 0 {
				out.WriteString(renderStyledRunes(line[:lastSpaceIdx]))
				out.WriteRune('\n')
				line = append([]styledRune{}, line[lastSpaceIdx+1:]...)
				lineWidth = lineWidthOf(line)
				lastSpaceIdx = lastSpaceIndex(line)
			} else {
				out.WriteString(renderStyledRunes(line))
				out.WriteRune('\n')
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpaceIdx = len(line) - 1
		}
		i++
	}
	out.WriteString(renderStyledRunes(line))
	return out.String()
}

func lineWidthOf(line []styledRune) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpaceIndex(line []styledRune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}
