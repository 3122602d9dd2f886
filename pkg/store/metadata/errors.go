package metadata

import "errors"

var (
	// ErrNotFound is returned when a node or child entry does not exist.
	ErrNotFound = errors.New("node not found")

	// ErrNameConflict is returned by Commit when a put would give two
	// siblings the same name.
	ErrNameConflict = errors.New("name already used in parent")

	// ErrParentNotDirectory is returned by Commit when a put targets a
	// parent that is missing or is not a directory.
	ErrParentNotDirectory = errors.New("parent is not a directory")

	// ErrRootImmutable is returned by Commit when a batch tries to delete
	// or reparent the root.
	ErrRootImmutable = errors.New("root node cannot be removed or moved")

	// ErrClosed is returned by stores used after Close.
	ErrClosed = errors.New("node store closed")
)
