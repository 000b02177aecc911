package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/raspguard/internal/audit"
	"github.com/ppiankov/raspguard/internal/auditdb"
)

var (
	auditPath    string
	auditFormat  string
	auditType    string
	auditBlocked bool
	auditAllowed bool
	auditSince   string
	auditUntil   string
	auditDB      string
	auditLimit   int
	tailLines    int
	tailFollow   bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditViewCmd, auditTailCmd, auditStatsCmd, auditVerifyCmd, auditIndexCmd, auditQueryCmd)

	auditCmd.PersistentFlags().StringVar(&auditPath, "path", "", "Audit log path (default: from config)")
	auditCmd.PersistentFlags().StringVar(&auditFormat, "format", "text", "Output format (text|json)")
	for _, c := range []*cobra.Command{auditViewCmd, auditStatsCmd, auditQueryCmd} {
		c.Flags().StringVar(&auditType, "type", "", "Only records of this function")
		c.Flags().BoolVar(&auditBlocked, "blocked", false, "Only blocked calls")
		c.Flags().BoolVar(&auditAllowed, "allowed", false, "Only allowed calls")
		c.Flags().StringVar(&auditSince, "since", "", "Lower bound: duration (24h) or \"YYYY-MM-DD HH:MM:SS\"")
		c.Flags().StringVar(&auditUntil, "until", "", "Upper bound: duration (1h) or \"YYYY-MM-DD HH:MM:SS\"")
	}
	for _, c := range []*cobra.Command{auditIndexCmd, auditQueryCmd} {
		c.Flags().StringVar(&auditDB, "db", "", "SQLite index path (default: <audit log>.db)")
	}
	auditQueryCmd.Flags().IntVar(&auditLimit, "limit", 0, "Maximum records (0 = all)")
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent records to show")
	auditTailCmd.Flags().BoolVarP(&tailFollow, "follow", "f", false, "Keep streaming new records")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for viewing, summarizing, indexing and checking the JSONL audit log.",
}

var auditViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show audit records as a table",
	Args:  cobra.NoArgs,
	RunE:  runAuditView,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent audit records, optionally following the log",
	Args:  cobra.NoArgs,
	RunE:  runAuditTail,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize decisions per function",
	Args:  cobra.NoArgs,
	RunE:  runAuditStats,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every line of the audit log is a complete record",
	Long:  "Exits 0 if every line decodes with the full key set, 1 otherwise.",
	Args:  cobra.NoArgs,
	RunE:  runAuditVerify,
}

var auditIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Import the audit log into a SQLite index",
	Long:  "Re-importing is safe: records already indexed are skipped.",
	Args:  cobra.NoArgs,
	RunE:  runAuditIndex,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the SQLite index",
	Args:  cobra.NoArgs,
	RunE:  runAuditQuery,
}

func resolveAuditPath() (string, error) {
	if auditPath != "" {
		return auditPath, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.AuditPath, nil
}

func resolveDBPath(logPath string) string {
	if auditDB != "" {
		return auditDB
	}
	return logPath + ".db"
}

func auditFilter(now time.Time) (audit.Filter, error) {
	f := audit.Filter{
		Type:        auditType,
		BlockedOnly: auditBlocked,
		AllowedOnly: auditAllowed,
	}
	if auditBlocked && auditAllowed {
		return f, fmt.Errorf("--blocked and --allowed are mutually exclusive")
	}
	var err error
	if f.Since, err = parseBound(auditSince, now); err != nil {
		return f, fmt.Errorf("--since: %w", err)
	}
	if f.Until, err = parseBound(auditUntil, now); err != nil {
		return f, fmt.Errorf("--until: %w", err)
	}
	return f, nil
}

// parseBound accepts a duration back from now or a sink timestamp.
func parseBound(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.ParseInLocation(audit.TimestampFormat, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected duration or %q, got %q", audit.TimestampFormat, s)
	}
	return t, nil
}

func writeRecords(w io.Writer, records []audit.Record) error {
	if auditFormat == "json" {
		out, err := audit.FormatJSON(records)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
		return nil
	}
	audit.FormatTable(w, records)
	return nil
}

func reportMalformed(cmd *cobra.Command, n int) {
	if n > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: skipped %d malformed line(s)\n", n)
	}
}

func runAuditView(cmd *cobra.Command, args []string) error {
	path, err := resolveAuditPath()
	if err != nil {
		return err
	}
	filter, err := auditFilter(time.Now())
	if err != nil {
		return err
	}
	result, err := audit.Read(path, filter)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return writeRecords(cmd.OutOrStdout(), nil)
		}
		return err
	}
	reportMalformed(cmd, result.Malformed)
	return writeRecords(cmd.OutOrStdout(), result.Records)
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, err := resolveAuditPath()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	result, err := audit.Read(path, audit.Filter{})
	switch {
	case err == nil:
		records := result.Records
		if start := len(records) - tailLines; start > 0 {
			records = records[start:]
		}
		for _, r := range records {
			printTailRecord(out, r)
		}
	case errors.Is(err, os.ErrNotExist) && tailFollow:
	default:
		return err
	}

	if !tailFollow {
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return audit.Follow(ctx, path, false, func(r audit.Record) {
		printTailRecord(out, r)
	})
}

func printTailRecord(w io.Writer, r audit.Record) {
	if auditFormat == "json" {
		line, err := audit.Encode(r)
		if err == nil {
			w.Write(line)
		}
		return
	}
	verdict := "allow"
	if r.WasBlocked {
		verdict = "BLOCK"
	}
	fmt.Fprintf(w, "%s %-5s %-10s %s (%s:%d, %s)\n",
		r.Timestamp, verdict, r.Type, r.Details, r.Filename, r.Line, r.IP)
}

func runAuditStats(cmd *cobra.Command, args []string) error {
	path, err := resolveAuditPath()
	if err != nil {
		return err
	}
	filter, err := auditFilter(time.Now())
	if err != nil {
		return err
	}
	result, err := audit.Read(path, filter)
	if err != nil {
		return err
	}
	summary := audit.Summarize(result)

	if auditFormat == "json" {
		out, err := audit.FormatJSON(summary)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), audit.FormatSummary(summary))
	return nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := resolveAuditPath()
	if err != nil {
		return err
	}
	result := audit.Verify(path)
	if auditFormat == "json" {
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	} else if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d records verified\n", result.Lines)
	} else if result.ErrorLine > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "FAILED: %d malformed line(s), first at line %d: %s\n",
			result.Malformed, result.ErrorLine, result.Error)
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "FAILED: %s\n", result.Error)
	}
	if !result.Valid {
		return &exitError{code: 1}
	}
	return nil
}

func runAuditIndex(cmd *cobra.Command, args []string) error {
	path, err := resolveAuditPath()
	if err != nil {
		return err
	}
	result, err := audit.Read(path, audit.Filter{})
	if err != nil {
		return err
	}
	reportMalformed(cmd, result.Malformed)

	dbPath := resolveDBPath(path)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	db, err := auditdb.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	source, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve audit path: %w", err)
	}
	added, err := db.Import(cmd.Context(), auditdb.Entries(source, result))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d new record(s) of %d into %s\n", added, len(result.Records), dbPath)
	return nil
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	path, err := resolveAuditPath()
	if err != nil {
		return err
	}
	filter, err := auditFilter(time.Now())
	if err != nil {
		return err
	}
	dbPath := resolveDBPath(path)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no index at %s: run \"raspguard audit index\" first", dbPath)
	}
	db, err := auditdb.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.Query(cmd.Context(), filter, auditLimit)
	if err != nil {
		return err
	}
	return writeRecords(cmd.OutOrStdout(), records)
}
