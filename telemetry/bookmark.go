package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkInsightSurge       BookmarkType = "insight_surge"
	BookmarkBurstStorm         BookmarkType = "burst_storm"
	BookmarkPopulationRecovery BookmarkType = "population_recovery"
	BookmarkPopulationCrash    BookmarkType = "population_crash"
	BookmarkStableGarden       BookmarkType = "stable_garden"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Tick        int64        `csv:"tick"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using logger.
func (b Bookmark) LogBookmark(logger *slog.Logger) {
	logger.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the garden from window stats.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	recentMin          int // minimum bloom count in recent history
	recentPeak         int // peak bloom count in recent history
	stableWindowsCount int // consecutive windows with a stable population
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for stable garden detection
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
		recentMin:   -1,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		if b := bd.checkSurge(stats, BookmarkInsightSurge, "Insights", func(s WindowStats) int { return s.Insights }); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkSurge(stats, BookmarkBurstStorm, "Bursts", func(s WindowStats) int { return s.Bursts }); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Recovery: was ≤3, now ≥3x that
		if b := bd.checkRecovery(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Crash: dropped >30% from recent peak
		if b := bd.checkCrash(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		if b := bd.checkStable(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)

	if bd.recentMin < 0 || stats.Blooms < bd.recentMin {
		bd.recentMin = stats.Blooms
	}
	if stats.Blooms > bd.recentPeak {
		bd.recentPeak = stats.Blooms
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// checkSurge fires when a per-window count is more than twice its rolling average.
func (bd *BookmarkDetector) checkSurge(stats WindowStats, kind BookmarkType, label string, count func(WindowStats) int) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total int
	for _, h := range history {
		total += count(h)
	}
	avg := float64(total) / float64(len(history))

	current := count(stats)
	if current < 3 || float64(current) <= avg*2.0 {
		return nil
	}

	desc := fmt.Sprintf("%s %d with no prior activity", label, current)
	if avg > 0 {
		desc = fmt.Sprintf("%s %d is %.1fx average (%.2f)", label, current, float64(current)/avg, avg)
	}
	return &Bookmark{Type: kind, Tick: stats.WindowEndTick, Description: desc}
}

func (bd *BookmarkDetector) checkRecovery(stats WindowStats) *Bookmark {
	if bd.recentMin < 0 || bd.recentMin > 3 {
		return nil
	}

	threshold := max(bd.recentMin*3, 6)
	if stats.Blooms >= threshold {
		// Reset the minimum after triggering
		oldMin := bd.recentMin
		bd.recentMin = stats.Blooms

		return &Bookmark{
			Type:        BookmarkPopulationRecovery,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Garden recovered from %d to %d blooms", oldMin, stats.Blooms),
		}
	}

	return nil
}

func (bd *BookmarkDetector) checkCrash(stats WindowStats) *Bookmark {
	if bd.recentPeak == 0 {
		return nil
	}

	dropPercent := 1.0 - float64(stats.Blooms)/float64(bd.recentPeak)
	if dropPercent > 0.30 && stats.Blooms < bd.recentPeak-10 {
		// Reset peak after crash
		oldPeak := bd.recentPeak
		bd.recentPeak = stats.Blooms

		return &Bookmark{
			Type:        BookmarkPopulationCrash,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Blooms crashed %.0f%% from peak %d to %d", dropPercent*100, oldPeak, stats.Blooms),
		}
	}

	return nil
}

func (bd *BookmarkDetector) checkStable(stats WindowStats) *Bookmark {
	if stats.Blooms < 10 {
		bd.stableWindowsCount = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}

	recent := history[len(history)-4:]
	var sum float64
	for _, h := range recent {
		sum += float64(h.Blooms)
	}
	mean := sum / 4

	var variance float64
	for _, h := range recent {
		d := float64(h.Blooms) - mean
		variance += d * d
	}
	variance /= 4

	cv2 := 0.0
	if mean > 0 {
		cv2 = variance / (mean * mean)
	}

	if cv2 < 0.04 { // CV^2 < 0.04 means CV < 0.2
		bd.stableWindowsCount++
	} else {
		bd.stableWindowsCount = 0
	}

	if bd.stableWindowsCount == 5 { // trigger exactly once at 5 windows
		return &Bookmark{
			Type:        BookmarkStableGarden,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Stable garden with %d blooms over 5+ windows", stats.Blooms),
		}
	}

	return nil
}
