// Package provenance attributes an intercepted call to the source file
// that made it: a sanitized path, eval metadata, content hash and
// last-modified time. Every failure degrades to Unknown.
package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// EvalMarker is the suffix a host appends to the location of code run
// from a runtime-constructed string, e.g. "/srv/app.php(12) : eval()'d code".
const EvalMarker = " : eval()'d code"

// Unknown replaces any attribute that could not be determined.
const Unknown = "unknown"

// TimeLayout is the layout of modification times (and audit timestamps).
const TimeLayout = "2006-01-02 15:04:05"

// chunkSize is the read size used while hashing.
const chunkSize = 1024

// Location is a parsed raw source location.
type Location struct {
	Path     string
	IsEval   bool
	EvalLine uint // valid only when IsEval
}

// Record is the provenance of one call.
type Record struct {
	Path         string `json:"path"`
	IsEval       bool   `json:"is_eval"`
	EvalLine     uint   `json:"eval_line"`
	FileHash     string `json:"file_hash"`
	ModifiedTime string `json:"modified_time"`
}

// Resolve parses raw, then hashes and stats the resulting path.
// It never fails; unreadable or missing files yield Unknown fields.
func Resolve(raw string) Record {
	loc := ParseLocation(raw)
	rec := Record{
		Path:         loc.Path,
		IsEval:       loc.IsEval,
		EvalLine:     loc.EvalLine,
		FileHash:     Unknown,
		ModifiedTime: Unknown,
	}
	if loc.Path == Unknown {
		return rec
	}
	if h, err := HashFile(loc.Path); err == nil {
		rec.FileHash = h
	}
	if mt, err := ModTime(loc.Path); err == nil {
		rec.ModifiedTime = mt
	}
	return rec
}

// ParseLocation strips the eval marker from raw and extracts the line
// number recorded in the parenthesis pair immediately before it.
//
//	"/tmp/script.php(12) : eval()'d code" -> {/tmp/script.php, true, 12}
//	"/tmp/script.php"                      -> {/tmp/script.php, false, 0}
func ParseLocation(raw string) Location {
	if raw == "" || raw == Unknown {
		return Location{Path: Unknown}
	}

	idx := strings.Index(raw, EvalMarker)
	if idx < 0 {
		return Location{Path: raw}
	}

	loc := Location{Path: raw[:idx], IsEval: true}
	head := raw[:idx]

	// Scan backward from the marker: the first ')' seen closes the pair,
	// the next '(' opens it. Anything after ')' and before the marker is dropped.
	closeAt := -1
	for i := len(head) - 1; i >= 0; i-- {
		switch head[i] {
		case ')':
			if closeAt < 0 {
				closeAt = i
			}
		case '(':
			if closeAt >= 0 {
				loc.EvalLine = leadingUint(head[i+1 : closeAt])
				loc.Path = head[:i]
				return finalize(loc)
			}
		}
	}

	// No complete pair: keep everything before the marker.
	return finalize(loc)
}

func finalize(loc Location) Location {
	if loc.Path == "" {
		loc.Path = Unknown
	}
	return loc
}

// leadingUint parses the decimal digits at the start of s, ignoring
// anything that follows. No digits yields 0.
func leadingUint(s string) uint {
	var n uint
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + uint(c-'0')
	}
	return n
}

// HashFile returns the SHA-256 hex digest of the file content, read in
// fixed-size chunks so file size is unbounded.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("provenance: open: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, onlyReader{f}, buf); err != nil {
		return "", fmt.Errorf("provenance: read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// onlyReader hides WriterTo so io.CopyBuffer honours the chunk buffer.
type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }

// ModTime returns the file's last-modified time in TimeLayout, local time.
func ModTime(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("provenance: stat: %w", err)
	}
	return info.ModTime().In(time.Local).Format(TimeLayout), nil
}
