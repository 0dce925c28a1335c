package cli

import (
	"fmt"
	"strings"

	"github.com/vibe-dev/academy/internal/app/engagement"
)

// ─── Level Progress Bar ─────────────────────────────────────────────────────
// Shows: [============>.................]  42% | 63 / 150 XP | next: Builder

const barWidth = 30 // Characters for the progress bar

func renderLevelBar(snap engagement.Snapshot) string {
	pct := snap.Progress.Percentage
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	// Build the bar: [=======>............]
	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	var bar string
	if filled == barWidth {
		bar = strings.Repeat("=", filled)
	} else if filled > 0 {
		bar = strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty)
	} else {
		bar = strings.Repeat(".", barWidth)
	}

	return fmt.Sprintf("[%s] %3.0f%% | %s | %s", bar, pct, xpInfo(snap), nextInfo(snap))
}

func xpInfo(snap engagement.Snapshot) string {
	if snap.NextLevel == nil {
		return fmt.Sprintf("%d XP", snap.Progress.Current)
	}
	return fmt.Sprintf("%d / %d XP", snap.Progress.Current, snap.Progress.Needed)
}

func nextInfo(snap engagement.Snapshot) string {
	if snap.NextLevel == nil {
		return "max level"
	}
	return "next: " + snap.NextLevel.Title
}
