package rendering

import (
	"strings"

	"github.com/jonathan/quick-resume/internal/types"
)

// ParseBullet splits a bullet on the bold marker into alternating plain and
// bold runs. The first run is always plain, even when empty. An odd number of
// markers leaves a trailing run flagged bold; no escaping is supported.
func ParseBullet(bullet string) []types.StyledRun {
	pieces := strings.Split(bullet, types.BoldMarker)
	runs := make([]types.StyledRun, len(pieces))
	for i, piece := range pieces {
		runs[i] = types.StyledRun{Text: piece, Bold: i%2 == 1}
	}
	return runs
}

// ParseBullets parses every bullet of an experience block in order.
func ParseBullets(bullets []string) []types.StyledBullet {
	out := make([]types.StyledBullet, 0, len(bullets))
	for _, b := range bullets {
		out = append(out, types.StyledBullet{Runs: ParseBullet(b)})
	}
	return out
}

// StripMarkers removes bold markers, leaving single asterisks alone.
func StripMarkers(text string) string {
	return strings.ReplaceAll(text, types.BoldMarker, "")
}

// StripEmphasis removes every asterisk.
func StripEmphasis(text string) string {
	return strings.ReplaceAll(text, "*", "")
}
