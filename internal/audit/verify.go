package audit

import (
	"bufio"
	"fmt"
	"os"
)

// VerifyResult holds the outcome of a sink consistency check.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Malformed int    `json:"malformed"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify checks that every line of the sink is a complete record with
// the full key set. Concurrent appends larger than the platform's atomic
// write size can interleave; this is how such damage is found.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	result := VerifyResult{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		if _, err := Decode(scanner.Bytes()); err != nil {
			result.Malformed++
			if result.ErrorLine == 0 {
				result.ErrorLine = lineNum
				result.Error = err.Error()
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return VerifyResult{Lines: lineNum, Error: fmt.Sprintf("scan: %v", err)}
	}

	result.Lines = lineNum
	result.Valid = result.Malformed == 0
	return result
}
