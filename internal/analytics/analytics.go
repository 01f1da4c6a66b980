package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront-bot/internal/storage"
)

// DailyStats содержит статистику диспетчера за день
type DailyStats struct {
	Date        string         `json:"date"`
	TotalEvents int            `json:"total_events"`
	UniqueChats int            `json:"unique_chats"`
	ByKind      map[string]int `json:"by_kind"`
	ByHandler   map[string]int `json:"by_handler"`
	ByOutcome   map[string]int `json:"by_outcome"`
	AvgMs       int64          `json:"avg_ms"`
}

// AnalyzeDaily агрегирует журнал событий за указанную дату
func AnalyzeDaily(events []storage.Event, targetDate time.Time) *DailyStats {
	// Нормализуем дату до начала дня
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:      startOfDay.Format("2006-01-02"),
		ByKind:    make(map[string]int),
		ByHandler: make(map[string]int),
		ByOutcome: make(map[string]int),
	}

	chats := make(map[int64]bool)
	var totalMs int64
	for _, ev := range events {
		if ev.Timestamp.Before(startOfDay) || !ev.Timestamp.Before(endOfDay) {
			continue
		}
		stats.TotalEvents++
		chats[ev.ChatID] = true
		stats.ByKind[ev.Kind]++
		stats.ByHandler[ev.Handler]++
		stats.ByOutcome[ev.Outcome]++
		totalMs += ev.DurationMs
	}

	stats.UniqueChats = len(chats)
	if stats.TotalEvents > 0 {
		stats.AvgMs = totalMs / int64(stats.TotalEvents)
	}
	return stats
}

// Summary формирует текстовый отчёт для чата
func (ds *DailyStats) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dispatch statistics for %s\n\n", ds.Date)
	fmt.Fprintf(&b, "Events: %d\nUnique chats: %d\nAverage handling: %d ms\n", ds.TotalEvents, ds.UniqueChats, ds.AvgMs)

	writeCounts(&b, "By outcome", ds.ByOutcome)
	writeCounts(&b, "By handler", ds.ByHandler)
	return b.String()
}

func writeCounts(b *strings.Builder, title string, m map[string]int) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// по убыванию, при равенстве по имени
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %d\n", k, m[k])
	}
}

// ToJSON сериализует статистику в JSON
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
