package audit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// maxLineSize bounds a single sink line while reading.
const maxLineSize = 1 << 20

// Filter selects records while reading the sink.
type Filter struct {
	Type        string    // empty = any
	BlockedOnly bool
	AllowedOnly bool
	Since       time.Time // zero value = no lower bound
	Until       time.Time // zero value = no upper bound
}

// Match reports whether r passes the filter.
func (f Filter) Match(r Record) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.BlockedOnly && !r.WasBlocked {
		return false
	}
	if f.AllowedOnly && r.WasBlocked {
		return false
	}
	if !f.Since.IsZero() || !f.Until.IsZero() {
		ts, err := time.ParseInLocation(TimestampFormat, r.Timestamp, time.Local)
		if err != nil {
			return false
		}
		if !f.Since.IsZero() && ts.Before(f.Since) {
			return false
		}
		if !f.Until.IsZero() && ts.After(f.Until) {
			return false
		}
	}
	return true
}

// ReadResult holds the decoded records and the count of lines that
// could not be decoded (torn or interleaved writes, foreign lines).
// Lines[i] is the 1-based sink line Records[i] was read from.
type ReadResult struct {
	Records   []Record `json:"records"`
	Lines     []int    `json:"-"`
	Malformed int      `json:"malformed"`
}

// Read decodes every well-formed line of the sink at path that matches filter.
func Read(path string, filter Filter) (*ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	return ReadFrom(f, filter)
}

// ReadFrom is Read over an arbitrary reader.
func ReadFrom(r io.Reader, filter Filter) (*ReadResult, error) {
	result := &ReadResult{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := Decode(line)
		if err != nil {
			result.Malformed++
			continue
		}
		if filter.Match(rec) {
			result.Records = append(result.Records, rec)
			result.Lines = append(result.Lines, lineNum)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return result, nil
}

// TypeCount is the number of records of one event type.
type TypeCount struct {
	Type    string `json:"type"`
	Total   int    `json:"total"`
	Blocked int    `json:"blocked"`
}

// Summary aggregates a set of records.
type Summary struct {
	Total          int         `json:"total"`
	Blocked        int         `json:"blocked"`
	Allowed        int         `json:"allowed"`
	Eval           int         `json:"eval"`
	Malformed      int         `json:"malformed"`
	ByType         []TypeCount `json:"by_type"`
	FirstTimestamp string      `json:"first_timestamp"`
	LastTimestamp  string      `json:"last_timestamp"`
}

// Summarize counts decisions per type. ByType is sorted by type name.
func Summarize(result *ReadResult) Summary {
	s := Summary{Malformed: result.Malformed}
	byType := map[string]*TypeCount{}

	for _, r := range result.Records {
		s.Total++
		if r.WasBlocked {
			s.Blocked++
		} else {
			s.Allowed++
		}
		if r.IsEval {
			s.Eval++
		}

		tc, ok := byType[r.Type]
		if !ok {
			tc = &TypeCount{Type: r.Type}
			byType[r.Type] = tc
		}
		tc.Total++
		if r.WasBlocked {
			tc.Blocked++
		}

		if s.FirstTimestamp == "" || r.Timestamp < s.FirstTimestamp {
			s.FirstTimestamp = r.Timestamp
		}
		if r.Timestamp > s.LastTimestamp {
			s.LastTimestamp = r.Timestamp
		}
	}

	for _, tc := range byType {
		s.ByType = append(s.ByType, *tc)
	}
	sort.Slice(s.ByType, func(i, j int) bool { return s.ByType[i].Type < s.ByType[j].Type })
	return s
}
