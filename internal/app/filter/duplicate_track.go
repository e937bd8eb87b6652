package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/foldatunez/internal/domain/track"
)

// DuplicateTrackFilter rejects a track that is already current or pending.
// Detects:
// - The same locator requested twice
// - Remasters and video variants (normalized title match)
type DuplicateTrackFilter struct{}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks already playing or waiting in the queue, including remasters and video variants"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// AppliesTo returns which requester types this filter applies to.
func (f *DuplicateTrackFilter) AppliesTo(requesterType track.RequesterType) bool {
	// Playlists may legitimately repeat entries
	return requesterType == track.RequesterTypeUser
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(config map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the track is a duplicate.
func (f *DuplicateTrackFilter) Check(ctx context.Context, req Request) Result {
	queued := req.Pending
	if req.Current != nil {
		queued = append([]track.Track{*req.Current}, queued...)
	}

	want := normalizeTrackName(req.Track.Title)
	for _, q := range queued {
		if q.Origin != "" && q.Origin == req.Track.Origin {
			return Reject("duplicate_track")
		}
		if want != "" && normalizeTrackName(q.Title) == want {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

// normalizeTrackName removes remaster information and version details.
func normalizeTrackName(name string) string {
	// Convert to lowercase
	normalized := strings.ToLower(name)

	// Remove common remaster patterns
	remasterPatterns := []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	// Remove other common version indicators
	versionPatterns := []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),          // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),             // "(Radio Edit)"
		regexp.MustCompile(`\s*-?\s*live`),               // "- Live"
		regexp.MustCompile(`\s*\(live\)`),                // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),       // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`),   // "- Single Version"
		regexp.MustCompile(`\s*[\(\[]official.*?[\)\]]`), // "(Official Music Video)"
		regexp.MustCompile(`\s*[\(\[]lyrics?.*?[\)\]]`),  // "[Lyrics]"
		regexp.MustCompile(`\s*[\(\[](hd|hq|4k)[\)\]]`),  // "(HD)"
	}

	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	// Remove extra whitespace
	normalized = strings.TrimSpace(normalized)
	normalized = regexp.MustCompile(`\s+`).ReplaceAllString(normalized, " ")

	// Remove trailing dashes
	normalized = strings.TrimRight(normalized, " -")

	return normalized
}

func init() {
	Register("duplicate_track_filter", func() Filter {
		return NewDuplicateTrackFilter()
	})
}
