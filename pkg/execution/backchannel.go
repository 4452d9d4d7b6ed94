package execution

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// StatusReport is one record of the status back-channel (fd 3).
type StatusReport struct {
	AgentID   string         `json:"agent_id"`
	Timestamp string         `json:"timestamp"`
	Status    string         `json:"status"`
	Data      map[string]any `json:"data,omitempty"`
}

// LogEntry is one record of the log back-channel (fd 4).
type LogEntry struct {
	AgentID   string         `json:"agent_id"`
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

// readStatusReports drains one NDJSON sink until EOF. Malformed lines are
// logged and discarded; the run is never aborted by back-channel noise.
func readStatusReports(r io.Reader) []StatusReport {
	var reports []StatusReport
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var report StatusReport
		if err := json.Unmarshal(line, &report); err != nil {
			log.Printf("Discarding malformed status record: %v", err)
			continue
		}
		log.Printf("Status: agent=%s, status=%s", report.AgentID, report.Status)
		reports = append(reports, report)
	}
	return reports
}

func readLogEntries(r io.Reader) []LogEntry {
	var entries []LogEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Printf("Discarding malformed log record: %v", err)
			continue
		}
		log.Printf("Agent log [%s]: %s", entry.Level, entry.Message)
		entries = append(entries, entry)
	}
	return entries
}

// costKeys are the record fields checked for per-run cost accounting.
// Dotted keys traverse nested objects.
var costKeys = []string{"cost_usd", "cost", "usage.total_cost", "usage.cost_usd"}

// extractCost sums every cost figure found in the status and log records.
func extractCost(reports []StatusReport, entries []LogEntry) float64 {
	var total float64
	for _, report := range reports {
		total += costFromMap(report.Data)
	}
	for _, entry := range entries {
		total += costFromMap(entry.Context)
	}
	return total
}

func costFromMap(m map[string]any) float64 {
	if m == nil {
		return 0
	}
	for _, key := range costKeys {
		if value, ok := nestedValue(m, key); ok {
			if n, ok := asFloat(value); ok {
				return n
			}
		}
	}
	return 0
}

func nestedValue(m map[string]any, dotted string) (any, bool) {
	var node any = m
	for {
		head, rest, more := strings.Cut(dotted, ".")
		current, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok := current[head]
		if !ok {
			return nil, false
		}
		if !more {
			return value, true
		}
		node = value
		dotted = rest
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
