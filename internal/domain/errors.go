// Package domain holds the error taxonomy shared by the composition core and
// its collaborators.
package domain

import "errors"

// Sentinel errors used across layers. Callers wrap them with fmt.Errorf("%w")
// and test with errors.Is.
var (
	// ErrAssetNotFound means no glyph asset exists for a code. Recovered
	// locally with the fallback flex weight; never shown to the user.
	ErrAssetNotFound = errors.New("glyph asset not found")

	// ErrExternalService covers vision API failures: unreachable,
	// unauthorized, rate limited or malformed replies.
	ErrExternalService = errors.New("external service failure")

	// ErrInvalidInput rejects input before it reaches the composition
	// pipeline: empty manual text, non-image files, oversized files.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPlaybackActive is returned when a second producer tries to take
	// the cursor while a playback run holds it.
	ErrPlaybackActive = errors.New("playback already active")
)
