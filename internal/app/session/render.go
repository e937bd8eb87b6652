package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/osa030/foldatunez/internal/app/playback"
	"github.com/osa030/foldatunez/internal/domain/track"
)

const defaultMessageLimit = 1900

// RenderQueue formats a snapshot as chat messages of at most limit characters.
func RenderQueue(snap playback.Snapshot, limit int) []string {
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if snap.Current == nil && len(snap.Pending) == 0 {
		return []string{"Queue is empty"}
	}

	var messages []string
	var cur []string

	if snap.Current != nil {
		status := ""
		if snap.Phase == playback.PhasePaused {
			status = " (paused)"
		}
		cur = append(cur,
			fmt.Sprintf("**Now Playing:** %s%s", snap.Current.Title, status),
			fmt.Sprintf("`%s/%s` | Requested by %s",
				clock(snap.Elapsed), track.FormatDuration(snap.Current.Duration), snap.Current.Requester.DisplayName()),
		)
		if snap.LoopMode != playback.LoopNone {
			cur = append(cur, "Loop: "+snap.LoopMode.String())
		}
	}

	if len(snap.Pending) > 0 {
		if len(cur) > 0 {
			cur = append(cur, "\n**Upcoming:**")
		} else {
			cur = append(cur, "**Upcoming:**")
		}
		for i, t := range snap.Pending {
			line := fmt.Sprintf("%d. %s (%s) | %s", i+1, t.Title, track.FormatDuration(t.Duration), t.Requester.DisplayName())
			if len(strings.Join(append(cur, line), "\n")) > limit {
				messages = append(messages, strings.Join(cur, "\n"))
				cur = []string{"**Upcoming (cont'd):**", line}
			} else {
				cur = append(cur, line)
			}
		}
	}

	if len(cur) > 0 {
		messages = append(messages, strings.Join(cur, "\n"))
	}
	return messages
}

// clock formats elapsed time as m:ss.
func clock(d time.Duration) string {
	s := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// FormatUsage formats usage totals for a chat reply.
func FormatUsage(u playback.Usage, now time.Time) string {
	up := now.Sub(u.StartedAt)
	if up < 0 {
		up = 0
	}
	hours := int(up.Hours())
	minutes := int(up.Minutes()) % 60
	return fmt.Sprintf("**Data Usage:** %.2f MB\n**Uptime:** %dh %dm\n**Tracks played:** %d",
		float64(u.BytesStreamed)/1024/1024, hours, minutes, u.TracksStarted)
}
