package conduit

import "errors"

var (
	// ErrOutOfBounds is reported for positions outside the configured Bounds.
	ErrOutOfBounds = errors.New("conduit: position out of bounds")
	// ErrUnrecognizedKind is reported when the host classifies a block with a
	// kind the engine does not know.
	ErrUnrecognizedKind = errors.New("conduit: unrecognized block kind")
	// ErrInconsistentGraph is reported when the position index and the
	// network table disagree.
	ErrInconsistentGraph = errors.New("conduit: inconsistent graph state")
	// ErrClosed is returned by operations on a manager that was shut down.
	ErrClosed = errors.New("conduit: manager shut down")
)
