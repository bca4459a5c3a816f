package orchestrator

import (
	"regexp"
	"strings"
)

// citationRE matches the backend's inline citation markers, a bracketed
// segment with two numbers separated by a colon and a dagger separator,
// e.g. 【12:3†source】.
var citationRE = regexp.MustCompile(`【\d+:\d+†[^】]*】`)

// StripCitations removes inline citation markers. Idempotent.
func StripCitations(s string) string {
	return strings.TrimSpace(citationRE.ReplaceAllString(s, ""))
}

var separatorCellRE = regexp.MustCompile(`^:?-+:?$`)

func looksLikeTableRow(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "|") && strings.Count(t, "|") >= 2
}

func isSeparatorRow(line string) bool {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "|") {
		return false
	}
	cells := strings.Split(strings.Trim(t, "|"), "|")
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if !separatorCellRE.MatchString(strings.TrimSpace(c)) {
			return false
		}
	}
	return true
}

func separatorFor(header string) string {
	t := strings.TrimSpace(header)
	cols := len(strings.Split(strings.Trim(t, "|"), "|"))
	parts := make([]string, cols)
	for i := range parts {
		parts[i] = "---"
	}
	return "|" + strings.Join(parts, "|") + "|"
}

// RepairTables injects a header-separator row after the first row of any
// pipe-delimited table block that lacks one; the backend sometimes omits
// it, which breaks table rendering downstream. Idempotent.
func RepairTables(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines)+2)
	inTable := false
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !looksLikeTableRow(line) {
			inTable = false
			out = append(out, line)
			continue
		}
		if inTable {
			out = append(out, line)
			continue
		}
		// first row of a table block
		inTable = true
		out = append(out, line)
		if i+1 < len(lines) && looksLikeTableRow(lines[i+1]) && !isSeparatorRow(lines[i+1]) {
			out = append(out, separatorFor(line))
		}
	}
	return strings.Join(out, "\n")
}

// CleanReply applies citation stripping and table repair to an extracted
// assistant reply.
func CleanReply(s string) string {
	return RepairTables(StripCitations(s))
}
