package blackboard

import "errors"

var (
	// ErrClosed is returned by API calls made after Shutdown.
	ErrClosed = errors.New("blackboard: store is shut down")

	// ErrInvalidSection reports a malformed section name.
	ErrInvalidSection = errors.New("blackboard: invalid section name")

	// ErrInvalidKey reports a malformed key.
	ErrInvalidKey = errors.New("blackboard: invalid key")

	// ErrSnapshotCorrupt reports an unparseable snapshot file. The bytes
	// are sidelined to a ".corrupt" file for operator inspection and the
	// store starts empty.
	ErrSnapshotCorrupt = errors.New("blackboard: snapshot file corrupt")
)
