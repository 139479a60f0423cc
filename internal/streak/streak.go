// internal/streak/streak.go
package streak

import (
	"time"

	"github-streak-manager/internal/model"
	"github-streak-manager/internal/schedule"
)

// Summarize buckets commit times into calendar days of loc between from and to inclusive,
// and derives streaks and gaps from the buckets.
func Summarize(repo string, commits []time.Time, from, to time.Time, loc *time.Location) (model.ActivitySummary, error) {
	counts := make(map[string]int, len(commits))
	for _, c := range commits {
		counts[schedule.FormatDate(c.In(loc))]++
	}
	summary, err := SummarizeCounts(counts, from, to, loc)
	if err != nil {
		return model.ActivitySummary{}, err
	}
	summary.Repository = repo
	return summary, nil
}

// SummarizeCounts derives streaks and gaps from per-day counts keyed by YYYY-MM-DD. Days
// outside from..to are ignored; missing days count as zero.
func SummarizeCounts(counts map[string]int, from, to time.Time, loc *time.Location) (model.ActivitySummary, error) {
	days, err := schedule.Expand(from.In(loc), to.In(loc), model.FrequencyDaily)
	if err != nil {
		return model.ActivitySummary{}, err
	}

	summary := model.ActivitySummary{
		From: schedule.FormatDate(days[0]),
		To:   schedule.FormatDate(days[len(days)-1]),
		Days: make([]model.DayCount, 0, len(days)),
		Gaps: []string{},
	}

	run := 0
	for _, d := range days {
		key := schedule.FormatDate(d)
		n := counts[key]
		summary.Days = append(summary.Days, model.DayCount{Date: key, Count: n})
		summary.TotalCommits += n
		if n == 0 {
			summary.Gaps = append(summary.Gaps, key)
			run = 0
			continue
		}
		run++
		if run > summary.LongestStreak {
			summary.LongestStreak = run
		}
	}
	summary.CurrentStreak = currentStreak(summary.Days)
	return summary, nil
}

// currentStreak counts consecutive active days ending at the last day. A last day without
// commits does not break the streak yet, since that day may still be in progress.
func currentStreak(days []model.DayCount) int {
	i := len(days) - 1
	if i >= 0 && days[i].Count == 0 {
		i--
	}
	streak := 0
	for ; i >= 0 && days[i].Count > 0; i-- {
		streak++
	}
	return streak
}
