package editor

import (
	"errors"
	"fmt"
)

var (
	// ErrNoOp means the request was valid but changed nothing.
	ErrNoOp = errors.New("operation has no effect")
	// ErrBusy is returned when a mutation is attempted during a View pass.
	ErrBusy           = errors.New("model is being read")
	ErrClipNotFound   = errors.New("clip not found")
	ErrTrackNotFound  = errors.New("track not found")
	ErrItemNotFound   = errors.New("library item not found")
	ErrItemInUse      = errors.New("library item is used by clips")
	ErrEmptyClipboard = errors.New("clipboard is empty")

	// errUnchanged lets an operation succeed without recording history.
	errUnchanged = errors.New("unchanged")
)

// OverlapError rejects a placement that would intersect another clip.
type OverlapError struct {
	TrackIndex        int
	ConflictingClipID string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlaps clip %s on track %d", e.ConflictingClipID, e.TrackIndex)
}

// InvalidRangeError rejects a time range or value that cannot be applied.
type InvalidRangeError struct {
	Op     string
	Start  float64
	End    float64
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("%s: invalid range [%g, %g]: %s", e.Op, e.Start, e.End, e.Reason)
}
