package logbook

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Export formats. Output is deterministic for a given entry set.
const (
	FormatText = "text"
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Export renders entries in the requested format. Entries are rendered in
// the order given (newest first as returned by Query).
func Export(entries []Entry, format string) ([]byte, string, error) {
	switch format {
	case FormatText:
		return exportText(entries), "text/plain; charset=utf-8", nil
	case FormatCSV:
		out, err := exportCSV(entries)
		return out, "text/csv; charset=utf-8", err
	case FormatJSON:
		out, err := json.MarshalIndent(entries, "", "  ")
		return out, "application/json", err
	default:
		return nil, "", fmt.Errorf("logbook: unknown export format %q", format)
	}
}

func exportText(entries []Entry) []byte {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s %s: %s\n",
			e.Timestamp.UTC().Format("2006-01-02 15:04:05"), e.Status, e.Task, e.Summary)
		for _, k := range sortedDetailKeys(e.Details) {
			fmt.Fprintf(&b, "    %s: %v\n", k, e.Details[k])
		}
	}
	return []byte(b.String())
}

func exportCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"timestamp", "status", "task", "summary", "details"}); err != nil {
		return nil, err
	}
	for _, e := range entries {
		details := ""
		if len(e.Details) > 0 {
			// Key-sorted so the same entry always renders identically.
			parts := make([]string, 0, len(e.Details))
			for _, k := range sortedDetailKeys(e.Details) {
				parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
			}
			details = strings.Join(parts, "; ")
		}
		row := []string{
			e.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			e.Status,
			e.Task,
			e.Summary,
			details,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func sortedDetailKeys(details map[string]any) []string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
