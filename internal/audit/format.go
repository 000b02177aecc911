package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

const separator = "──────────────────────────────────────────────────────────────────"

var (
	blockedRow = color.New(color.FgRed)
	evalRow    = color.New(color.FgYellow)
)

// FormatTable writes records as a fixed-width table with the log viewer
// columns. Blocked rows are red, eval-originated rows yellow.
func FormatTable(w io.Writer, records []Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "There are no logs yet.")
		return
	}

	fmt.Fprintf(w, "%-19s %-10s %-36s %-20s %-28s %5s %-12s %-4s %-7s %-19s %s\n",
		"TIMESTAMP", "TYPE", "DETAILS", "CALLER", "FILENAME", "LINE",
		"FILE HASH", "EVAL", "BLOCKED", "FILE LAST MODIFIED", "IP")
	fmt.Fprintln(w, separator)

	for _, r := range records {
		row := fmt.Sprintf("%-19s %-10s %-36s %-20s %-28s %5d %-12s %-4s %-7s %-19s %s",
			r.Timestamp,
			truncate(r.Type, 10),
			truncate(r.Details, 36),
			truncate(r.Caller, 20),
			truncateLeft(r.Filename, 28),
			r.Line,
			truncate(r.FileHash, 12),
			yesNo(r.IsEval),
			yesNo(r.WasBlocked),
			r.ModifiedTime,
			r.IP,
		)
		switch {
		case r.WasBlocked:
			fmt.Fprintln(w, blockedRow.Sprint(row))
		case r.IsEval:
			fmt.Fprintln(w, evalRow.Sprint(row))
		default:
			fmt.Fprintln(w, row)
		}
	}
}

// FormatSummary renders a Summary as text.
func FormatSummary(s Summary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Records: %d | blocked %d | allowed %d | eval %d", s.Total, s.Blocked, s.Allowed, s.Eval))
	if s.Malformed > 0 {
		b.WriteString(fmt.Sprintf(" | malformed %d", s.Malformed))
	}
	b.WriteString("\n")
	if s.Total > 0 {
		b.WriteString(fmt.Sprintf("Range: %s – %s\n", s.FirstTimestamp, s.LastTimestamp))
	}
	b.WriteString(separator + "\n")
	for _, tc := range s.ByType {
		b.WriteString(fmt.Sprintf("%-12s %6d total %6d blocked\n", tc.Type, tc.Total, tc.Blocked))
	}
	return b.String()
}

// FormatJSON renders v as indented JSON.
func FormatJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(data), nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// truncateLeft keeps the tail of long paths, where the file name is.
func truncateLeft(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-(max-3):]
}
