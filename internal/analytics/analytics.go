package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gws-pilot/internal/storage"
)

// DailyStats summarizes one UTC day of exchanges.
type DailyStats struct {
	Date           string         `json:"date"`
	TotalExchanges int            `json:"total_exchanges"`
	UniqueSessions int            `json:"unique_sessions"`
	Failures       int            `json:"failures"`
	ByOutcome      map[string]int `json:"by_outcome"`
	ByChannel      map[string]int `json:"by_channel"`
	AvgLatencyMS   int64          `json:"avg_latency_ms"`
}

// AnalyzeDailyLogs counts events whose timestamp falls within targetDate's day.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:      startOfDay.Format("2006-01-02"),
		ByOutcome: make(map[string]int),
		ByChannel: make(map[string]int),
	}

	sessions := make(map[string]struct{})
	var latencyTotal int64
	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserMessage == "" {
			continue
		}
		stats.TotalExchanges++
		sessions[event.SessionID] = struct{}{}
		stats.ByOutcome[event.Outcome]++
		stats.ByChannel[event.Channel]++
		if event.Outcome != "success" {
			stats.Failures++
		}
		latencyTotal += event.LatencyMS
	}

	stats.UniqueSessions = len(sessions)
	if stats.TotalExchanges > 0 {
		stats.AvgLatencyMS = latencyTotal / int64(stats.TotalExchanges)
	}
	return stats
}

// GenerateReportSummary renders the stats as a short plain-text report.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workspace Pilot usage for %s:\n\n", ds.Date)
	fmt.Fprintf(&b, "- Exchanges: %d\n", ds.TotalExchanges)
	fmt.Fprintf(&b, "- Unique sessions: %d\n", ds.UniqueSessions)
	fmt.Fprintf(&b, "- Failed replies: %d\n", ds.Failures)
	fmt.Fprintf(&b, "- Average latency: %dms\n", ds.AvgLatencyMS)

	writeCounts(&b, "By outcome", ds.ByOutcome)
	writeCounts(&b, "By channel", ds.ByChannel)
	return b.String()
}

func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %d\n", k, counts[k])
	}
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
