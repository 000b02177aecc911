package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TimestampFormat is the layout of the timestamp field.
const TimestampFormat = "2006-01-02 15:04:05"

// Unknown is written for any field whose value is unavailable.
const Unknown = "unknown"

// Record is one line of the audit sink. Field order fixes the key order
// of the encoded JSON object; no key is ever omitted.
type Record struct {
	Timestamp    string `json:"timestamp"`
	Type         string `json:"type"`
	Details      string `json:"details"`
	Caller       string `json:"caller"`
	Filename     string `json:"filename"`
	FileHash     string `json:"file-hash"`
	ModifiedTime string `json:"modified-time"`
	Line         uint   `json:"line"`
	IP           string `json:"ip"`
	IsEval       bool   `json:"is-eval"`
	WasBlocked   bool   `json:"was-blocked"`
}

// requiredKeys lists every key a well-formed line carries.
var requiredKeys = []string{
	"timestamp", "type", "details", "caller", "filename", "file-hash",
	"modified-time", "line", "ip", "is-eval", "was-blocked",
}

// normalized returns a copy with every empty string field set to Unknown.
func (r Record) normalized() Record {
	for _, f := range []*string{
		&r.Timestamp, &r.Type, &r.Details, &r.Caller, &r.Filename,
		&r.FileHash, &r.ModifiedTime, &r.IP,
	} {
		if *f == "" {
			*f = Unknown
		}
	}
	return r
}

// Encode renders the record as a single JSON line terminated by '\n'.
// Quotes, backslashes and control characters are escaped; HTML-sensitive
// characters are kept literal so commands read as typed.
func Encode(r Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r.normalized()); err != nil {
		return nil, fmt.Errorf("audit: encode record: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses one sink line. Lines missing any key (for example the
// torn half of an interleaved write) are rejected.
func Decode(line []byte) (Record, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(line, &keys); err != nil {
		return Record{}, fmt.Errorf("audit: decode line: %w", err)
	}
	for _, k := range requiredKeys {
		if _, ok := keys[k]; !ok {
			return Record{}, fmt.Errorf("audit: decode line: missing key %q", k)
		}
	}
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, fmt.Errorf("audit: decode line: %w", err)
	}
	return r, nil
}
