package stats

import "testing"

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Mode", "Time", "Choices"}
	rows := [][]string{
		{"auto", "05:12", "4"},
		{"chapter-gate", "12:00", "11"},
	}
	rightAlign := map[int]bool{1: true, 2: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Mode          Time Choices" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "auto         05:12       4" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "chapter-gate 12:00      11" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestFormatTableWideRunes(t *testing.T) {
	lines := formatTable([]string{"Title", "N"}, [][]string{{"翡翠", "1"}, {"Jade", "2"}}, map[int]bool{1: true})
	if lines[1] != "翡翠  1" || lines[2] != "Jade  2" {
		t.Fatalf("unexpected wide-rune alignment: %q", lines)
	}
}
