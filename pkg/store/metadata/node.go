package metadata

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes directories from files.
type Kind uint8

const (
	KindDirectory Kind = iota + 1
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "DIRECTORY"
	case KindFile:
		return "FILE"
	default:
		return "UNKNOWN"
	}
}

// BlockHandle is an opaque reference to a block in the block layer.
//
// The namespace never interprets handles; it only stores them on file nodes
// and hands them back to the block store for reads and releases.
type BlockHandle string

// Default permission bits recorded on new nodes.
const (
	DefaultDirMode  uint32 = 0o755
	DefaultFileMode uint32 = 0o644
)

// Node is a single entry of the namespace tree.
//
// Nodes reference their parent by ID only. The tree is owned from the root
// downward through the store's child index; ParentID is an index key used
// for upward lookups and never an ownership link.
type Node struct {
	// ID is the stable identity of the node (UUID v4).
	ID uuid.UUID

	// ParentID is the containing directory, uuid.Nil for the root.
	ParentID uuid.UUID

	// Name is the path segment, unique among siblings. Empty for the root.
	Name string

	Kind Kind

	// Block holds the committed content of a file. Empty until the first
	// write handle on the file is closed.
	Block BlockHandle

	// Size is the committed length in bytes. Always 0 for directories.
	Size uint64

	// BlockSize is the block size hint given at create time.
	BlockSize uint64

	// Owner is the caller identity that created the node.
	Owner string

	Mode       uint32
	ModTime    time.Time
	AccessTime time.Time
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool {
	return n.Kind == KindDirectory
}

// IsRoot reports whether the node is the namespace root.
func (n *Node) IsRoot() bool {
	return n.ParentID == uuid.Nil
}

// Clone returns a copy of the node that can be mutated independently.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// NewDirectory returns a directory node under parent.
func NewDirectory(parent uuid.UUID, name, owner string, now time.Time) *Node {
	return &Node{
		ID:         uuid.New(),
		ParentID:   parent,
		Name:       name,
		Kind:       KindDirectory,
		Owner:      owner,
		Mode:       DefaultDirMode,
		ModTime:    now,
		AccessTime: now,
	}
}

// NewFile returns an empty file node under parent.
func NewFile(parent uuid.UUID, name, owner string, blockSize uint64, now time.Time) *Node {
	return &Node{
		ID:         uuid.New(),
		ParentID:   parent,
		Name:       name,
		Kind:       KindFile,
		BlockSize:  blockSize,
		Owner:      owner,
		Mode:       DefaultFileMode,
		ModTime:    now,
		AccessTime: now,
	}
}

// Statistics summarizes the contents of a node store.
type Statistics struct {
	Directories uint64
	Files       uint64
	// Bytes is the sum of committed file sizes.
	Bytes uint64
}
