package playback

import (
	"math/rand/v2"

	"github.com/osa030/foldatunez/internal/domain/track"
)

// Shuffle returns a Fisher-Yates permutation of tracks. The track whose ID equals
// exclude.ID, if any, is left out. The input slice is not modified.
// A nil rng uses the global source.
func Shuffle(tracks []track.Track, exclude *track.Track, rng *rand.Rand) ([]track.Track, error) {
	out := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if exclude != nil && t.ID == exclude.ID {
			continue
		}
		out = append(out, t)
	}
	if len(out) < 2 {
		return nil, ErrTooFewTracks
	}

	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}
	for i := len(out) - 1; i > 0; i-- {
		j := intN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
