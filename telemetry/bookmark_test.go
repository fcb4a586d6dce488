package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func hasBookmark(bookmarks []Bookmark, kind BookmarkType) bool {
	for _, bm := range bookmarks {
		if bm.Type == kind {
			return true
		}
	}
	return false
}

func TestBookmarkDetector_InsightSurge(t *testing.T) {
	bd := NewBookmarkDetector(10)

	// Quiet history
	for i := range 5 {
		bd.Check(WindowStats{WindowEndTick: int64(i * 60), Blooms: 50, Insights: 1})
	}

	bookmarks := bd.Check(WindowStats{WindowEndTick: 300, Blooms: 50, Insights: 6})
	assert.True(t, hasBookmark(bookmarks, BookmarkInsightSurge))
	assert.False(t, hasBookmark(bookmarks, BookmarkBurstStorm))
}

func TestBookmarkDetector_SurgeNeedsVolume(t *testing.T) {
	bd := NewBookmarkDetector(10)
	for i := range 5 {
		bd.Check(WindowStats{WindowEndTick: int64(i * 60), Blooms: 50})
	}

	// 2 bursts from nothing is still too few
	bookmarks := bd.Check(WindowStats{WindowEndTick: 300, Blooms: 50, Bursts: 2})
	assert.False(t, hasBookmark(bookmarks, BookmarkBurstStorm))

	bookmarks = bd.Check(WindowStats{WindowEndTick: 360, Blooms: 50, Bursts: 4})
	assert.True(t, hasBookmark(bookmarks, BookmarkBurstStorm))
}

func TestBookmarkDetector_PopulationCrash(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := range 5 {
		bd.Check(WindowStats{WindowEndTick: int64(i * 60), Blooms: 100})
	}

	bookmarks := bd.Check(WindowStats{WindowEndTick: 300, Blooms: 50})
	assert.True(t, hasBookmark(bookmarks, BookmarkPopulationCrash))

	// The peak resets, so holding steady does not fire again
	bookmarks = bd.Check(WindowStats{WindowEndTick: 360, Blooms: 50})
	assert.False(t, hasBookmark(bookmarks, BookmarkPopulationCrash))
}

func TestBookmarkDetector_PopulationRecovery(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := range 3 {
		bd.Check(WindowStats{WindowEndTick: int64(i * 60), Blooms: 2})
	}

	bookmarks := bd.Check(WindowStats{WindowEndTick: 240, Blooms: 10})
	assert.True(t, hasBookmark(bookmarks, BookmarkPopulationRecovery))
}

func TestBookmarkDetector_StableGarden(t *testing.T) {
	bd := NewBookmarkDetector(10)

	fired := -1
	for i := range 10 {
		bookmarks := bd.Check(WindowStats{WindowEndTick: int64(i * 60), Blooms: 100})
		if hasBookmark(bookmarks, BookmarkStableGarden) {
			assert.Equal(t, -1, fired, "stable_garden fires once")
			fired = i
		}
	}
	assert.Equal(t, 8, fired)
}
