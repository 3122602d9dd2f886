package namespace

import (
	"time"

	"github.com/marmos91/dittons/pkg/store/metadata"
)

// FileStatus describes one namespace entry.
type FileStatus struct {
	// Path is the canonical absolute path.
	Path string
	// Name is the last path segment, empty for the root.
	Name       string
	Kind       metadata.Kind
	Size       uint64
	BlockSize  uint64
	Owner      string
	Mode       uint32
	ModTime    time.Time
	AccessTime time.Time
}

// IsDir reports whether the entry is a directory.
func (s FileStatus) IsDir() bool {
	return s.Kind == metadata.KindDirectory
}

func newFileStatus(path string, n *metadata.Node) FileStatus {
	return FileStatus{
		Path:       path,
		Name:       n.Name,
		Kind:       n.Kind,
		Size:       n.Size,
		BlockSize:  n.BlockSize,
		Owner:      n.Owner,
		Mode:       n.Mode,
		ModTime:    n.ModTime,
		AccessTime: n.AccessTime,
	}
}
