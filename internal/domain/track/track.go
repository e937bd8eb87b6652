// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Track is one playable item. Tracks are values: once built nobody mutates them,
// containers always hold copies.
type Track struct {
	ID         string        // Unique per enqueue, two requests of the same source are distinct
	Title      string        // Display title
	Source     string        // Playable locator (local path or cached media file)
	Origin     string        // Locator the user asked for (URL, search text, path)
	Requester  Requester     // Who asked for it
	Duration   time.Duration // Zero when unknown
	EnqueuedAt time.Time     // Time when created for the queue
}

// RequesterType represents the type of requester.
type RequesterType string

const (
	RequesterTypeUser     RequesterType = "USER"
	RequesterTypePlaylist RequesterType = "PLAYLIST"
	RequesterTypeOperator RequesterType = "OPERATOR"
)

// Requester represents the person who requested the track.
type Requester struct {
	ID   string        // Platform user ID
	Name string        // Display name
	Type RequesterType // Type of requester
}

// New builds a track with a fresh ID.
func New(title, source string, requester Requester, duration time.Duration) Track {
	return Track{
		ID:         uuid.NewString(),
		Title:      title,
		Source:     source,
		Origin:     source,
		Requester:  requester,
		Duration:   duration,
		EnqueuedAt: time.Now(),
	}
}

// DisplayName returns the requester name, falling back to the ID.
func (r Requester) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	if r.ID != "" {
		return r.ID
	}
	return "unknown"
}

// FormatDuration renders m:ss or h:mm:ss, "Unknown" for zero.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "Unknown"
	}
	total := int(d.Round(time.Second) / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
