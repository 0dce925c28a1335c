package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/vibe-dev/academy/internal/app/engagement"
	"github.com/vibe-dev/academy/internal/daemon"
)

// withSession opens the stores, runs fn on uid's session and closes
// everything, flushing queued XP on the way out.
func withSession(ctx context.Context, uid string, fn func(*daemon.Daemon, *engagement.Session) error) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	s, err := d.Engine.OpenSession(ctx, uid)
	if err != nil {
		return err
	}
	if s.InLocalMode() {
		fmt.Fprintln(errOut, "[offline] profile store unreachable, changes are kept locally")
	}
	if err := fn(d, s); err != nil {
		return err
	}
	return s.Close(ctx)
}

// printOutcome summarizes what an action did.
func printOutcome(w io.Writer, out *engagement.Outcome) {
	switch {
	case out == nil:
		return
	case out.Duplicate && out.Granted == 0:
		fmt.Fprintln(w, "Already recorded, no XP granted.")
	case out.Granted > 0:
		where := ""
		if out.Local {
			where = " (saved offline)"
		}
		fmt.Fprintf(w, "+%d XP%s\n", out.Granted, where)
	}
	if out.Streak != nil {
		fmt.Fprintf(w, "Streak: %d day(s) (%s)\n", out.Streak.Streak, out.Streak.Transition)
	}
	for _, a := range out.Unlocked {
		fmt.Fprintf(w, "Achievement unlocked: %s [%s] +%d XP\n", a.Title, a.Tier, a.XPReward)
	}
	if out.LeveledUp && out.Level != nil {
		fmt.Fprintf(w, "Level up! You are now level %d, %s\n", out.Level.Level, out.Level.Title)
	}
}

// printSnapshot prints the learner's display state.
func printSnapshot(w io.Writer, snap engagement.Snapshot) {
	fmt.Fprintf(w, "User:         %s\n", snap.UserID)
	fmt.Fprintf(w, "XP:           %d\n", snap.XP)
	fmt.Fprintf(w, "Level:        %d (%s)\n", snap.Level.Level, snap.Level.Title)
	fmt.Fprintf(w, "Progress:     %s\n", renderLevelBar(snap))
	fmt.Fprintf(w, "Streak:       %d day(s)\n", snap.StreakDays)
	fmt.Fprintf(w, "Achievements: %d\n", len(snap.Achievements))
	if snap.LocalMode || snap.PendingXP > 0 {
		fmt.Fprintf(w, "Offline:      %d XP waiting to sync\n", snap.PendingXP)
	}
	if !snap.LastSync.IsZero() {
		fmt.Fprintf(w, "Last sync:    %s\n", snap.LastSync.Format("2006-01-02 15:04"))
	}
}
