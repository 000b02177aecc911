package auditdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/raspguard/internal/audit"
)

func rec(ts, typ, details string, blocked bool) audit.Record {
	return audit.Record{
		Timestamp:    ts,
		Type:         typ,
		Details:      details,
		Caller:       "handler",
		Filename:     "/var/www/index.php",
		FileHash:     "abc",
		ModifiedTime: "2024-01-01 00:00:00",
		Line:         12,
		IP:           "10.0.0.1",
		WasBlocked:   blocked,
	}
}

func sample() []audit.Record {
	return []audit.Record{
		rec("2024-05-01 10:00:00", "exec", "exec executed: ls", true),
		rec("2024-05-01 10:00:01", "system", "system executed: echo hi", false),
		rec("2024-05-01 10:00:02", "exec", "exec executed: echo ok", false),
		rec("2024-05-02 09:00:00", "popen", "popen executed: curl x, mode: r", true),
	}
}

// entries places records on consecutive lines of one sink.
func entries(records []audit.Record) []Entry {
	out := make([]Entry, len(records))
	for i, r := range records {
		out[i] = Entry{Source: "/var/log/raspguard/audit.log", Line: i + 1, Record: r}
	}
	return out
}

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestImportIsIdempotent(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	n, err := db.Import(ctx, entries(sample()))
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected 4 new records, got %d", n)
	}

	n, err = db.Import(ctx, entries(sample()))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected 0 new records on re-import, got %d", n)
	}

	all, err := db.Query(ctx, audit.Filter{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 records, got %d", len(all))
	}
}

func TestQueryRoundTripsRecord(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	r := rec("2024-05-01 10:00:00", "exec", "exec executed: ls", true)
	r.IsEval = true
	if _, err := db.Import(ctx, entries([]audit.Record{r})); err != nil {
		t.Fatal(err)
	}

	got, err := db.Query(ctx, audit.Filter{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != r {
		t.Errorf("expected %+v, got %+v", r, got)
	}
}

func TestQueryFilters(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	if _, err := db.Import(ctx, entries(sample())); err != nil {
		t.Fatal(err)
	}

	since, _ := time.ParseInLocation(audit.TimestampFormat, "2024-05-01 10:00:01", time.Local)
	until, _ := time.ParseInLocation(audit.TimestampFormat, "2024-05-01 23:59:59", time.Local)

	tests := []struct {
		name   string
		filter audit.Filter
		limit  int
		want   int
	}{
		{"all", audit.Filter{}, 0, 4},
		{"type", audit.Filter{Type: "exec"}, 0, 2},
		{"blocked", audit.Filter{BlockedOnly: true}, 0, 2},
		{"allowed", audit.Filter{AllowedOnly: true}, 0, 2},
		{"since", audit.Filter{Since: since}, 0, 3},
		{"range", audit.Filter{Since: since, Until: until}, 0, 2},
		{"type and blocked", audit.Filter{Type: "exec", BlockedOnly: true}, 0, 1},
		{"limit", audit.Filter{}, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.Query(ctx, tt.filter, tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d records, got %d", tt.want, len(got))
			}
		})
	}
}

func TestQueryOrdersByTimestamp(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	all := entries(sample())
	// import newest first
	for i := len(all) - 1; i >= 0; i-- {
		if _, err := db.Import(ctx, all[i:i+1]); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.Query(ctx, audit.Filter{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Timestamp > got[i].Timestamp {
			t.Fatalf("records out of order: %s before %s", got[i-1].Timestamp, got[i].Timestamp)
		}
	}
}

func TestCounts(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	if _, err := db.Import(ctx, entries(sample())); err != nil {
		t.Fatal(err)
	}

	counts, err := db.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []audit.TypeCount{
		{Type: "exec", Total: 2, Blocked: 1},
		{Type: "popen", Total: 1, Blocked: 1},
		{Type: "system", Total: 1, Blocked: 0},
	}
	if len(counts) != len(want) {
		t.Fatalf("expected %v, got %v", want, counts)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("count %d: expected %+v, got %+v", i, want[i], counts[i])
		}
	}
}

func TestImportFromSink(t *testing.T) {
	dir := t.TempDir()
	sink := filepath.Join(dir, "audit.log")
	logger := audit.NewLogger(sink)
	for _, r := range sample() {
		if err := logger.Append(r); err != nil {
			t.Fatal(err)
		}
	}

	res, err := audit.Read(sink, audit.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	db := openTest(t)
	n, err := db.Import(context.Background(), Entries(sink, res))
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected 4 imported, got %d", n)
	}
}

func TestImportKeepsIdenticalRecordsFromDistinctLines(t *testing.T) {
	sink := filepath.Join(t.TempDir(), "audit.log")
	logger := audit.NewLogger(sink)
	r := rec("2024-05-01 10:00:00", "exec", "exec executed: ls", false)
	for i := 0; i < 3; i++ {
		if err := logger.Append(r); err != nil {
			t.Fatal(err)
		}
	}

	res, err := audit.Read(sink, audit.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	db := openTest(t)
	ctx := context.Background()
	n, err := db.Import(ctx, Entries(sink, res))
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 imported, got %d", n)
	}

	n, err = db.Import(ctx, Entries(sink, res))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected 0 new records on re-import, got %d", n)
	}

	got, err := db.Query(ctx, audit.Filter{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 rows, got %d", len(got))
	}
}

func TestImportSeparatesSinks(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	r := rec("2024-05-01 10:00:00", "exec", "exec executed: ls", false)
	batch := []Entry{
		{Source: "/var/log/a.log", Line: 1, Record: r},
		{Source: "/var/log/b.log", Line: 1, Record: r},
	}
	n, err := db.Import(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 imported, got %d", n)
	}
}
