package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"folio/internal/api"
	"folio/internal/catalog"
)

// buildStatsRows orders item counts by lifecycle position so the table reads
// top to bottom the way items move through the pipeline. Unknown keys sort
// after the known ones.
func buildStatsRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}

	order := make(map[string]int, len(catalog.AllStatuses()))
	for i, status := range catalog.AllStatuses() {
		order[string(status)] = i
	}

	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iKnown := order[keys[i]]
		oj, jKnown := order[keys[j]]
		switch {
		case iKnown && jKnown:
			return oi < oj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return keys[i] < keys[j]
		}
	})

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), strconv.Itoa(stats[key])})
	}
	return rows
}

func buildItemListRows(items []api.ItemSummary) [][]string {
	if len(items) == 0 {
		return nil
	}
	sorted := api.SortItemsNewestFirst(items)

	rows := make([][]string, 0, len(sorted))
	for _, item := range sorted {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = item.ExternalID
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.ExternalID,
			title,
			strings.TrimSpace(item.Author),
			formatStatusLabel(item.Status),
			strconv.Itoa(item.Priority),
			formatDisplayTime(item.CreatedAt),
		})
	}
	return rows
}

func buildHistoryRows(entries []api.HistoryEntry) [][]string {
	if len(entries) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		detail := strings.TrimSpace(entry.Note)
		if msg := strings.TrimSpace(entry.ErrorMessage); msg != "" {
			if detail != "" {
				detail += "; "
			}
			detail += msg
		}
		rows = append(rows, []string{
			strconv.Itoa(entry.Seq),
			formatStatusLabel(entry.FromStatus),
			formatStatusLabel(entry.ToStatus),
			formatElapsed(entry.ElapsedMS),
			detail,
			formatDisplayTime(entry.CreatedAt),
		})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t := api.ParseItemTime(value); !t.IsZero() {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func formatElapsed(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.Duration(ms * int64(time.Millisecond)).Truncate(time.Millisecond).String()
}

func formatFileSize(size int64) string {
	if size <= 0 {
		return "-"
	}
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
