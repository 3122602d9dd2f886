package rest

import (
	"path"
	"strconv"
	"time"

	"github.com/marmos91/dittons/pkg/namespace"
	"github.com/marmos91/dittons/pkg/store/metadata"
)

// Wire types follow the WebHDFS JSON layout so existing tooling can read
// the responses.

const (
	TypeFile      = "FILE"
	TypeDirectory = "DIRECTORY"
)

// FileStatus is the JSON form of namespace.FileStatus.
//
// PathSuffix is the entry name relative to the requested path: the child
// name in a directory listing, empty when the entry is the path itself.
type FileStatus struct {
	PathSuffix       string `json:"pathSuffix"`
	Type             string `json:"type"`
	Length           uint64 `json:"length"`
	Owner            string `json:"owner"`
	Permission       string `json:"permission"`
	ModificationTime int64  `json:"modificationTime"`
	AccessTime       int64  `json:"accessTime"`
	BlockSize        uint64 `json:"blockSize"`
}

type FileStatusResponse struct {
	FileStatus FileStatus `json:"FileStatus"`
}

type FileStatuses struct {
	FileStatus []FileStatus `json:"FileStatus"`
}

type FileStatusesResponse struct {
	FileStatuses FileStatuses `json:"FileStatuses"`
}

type BooleanResponse struct {
	Boolean bool `json:"boolean"`
}

// RemoteException carries a failed operation back to the client. Exception
// is the namespace.ErrorCode name, Message the engine's message verbatim.
type RemoteException struct {
	Exception string `json:"exception"`
	Message   string `json:"message"`
}

type RemoteExceptionResponse struct {
	RemoteException RemoteException `json:"RemoteException"`
}

// Exception names for failures that do not come from the engine.
const (
	ExceptionIllegalArgument = "IllegalArgumentException"
	ExceptionUnsupported     = "UnsupportedOperationException"
	ExceptionRetriable       = "RetriableException"
)

func toFileStatus(st namespace.FileStatus, suffix string) FileStatus {
	typ := TypeFile
	if st.IsDir() {
		typ = TypeDirectory
	}
	return FileStatus{
		PathSuffix:       suffix,
		Type:             typ,
		Length:           st.Size,
		Owner:            st.Owner,
		Permission:       strconv.FormatUint(uint64(st.Mode&0o777), 8),
		ModificationTime: st.ModTime.UnixMilli(),
		AccessTime:       st.AccessTime.UnixMilli(),
		BlockSize:        st.BlockSize,
	}
}

// ToNamespace converts a wire status back into a namespace.FileStatus for
// the entry at p.
func (f FileStatus) ToNamespace(p string) namespace.FileStatus {
	kind := metadata.KindFile
	if f.Type == TypeDirectory {
		kind = metadata.KindDirectory
	}
	mode, _ := strconv.ParseUint(f.Permission, 8, 32)

	name := f.PathSuffix
	if name == "" && p != "/" {
		name = path.Base(p)
	}

	return namespace.FileStatus{
		Path:       p,
		Name:       name,
		Kind:       kind,
		Size:       f.Length,
		BlockSize:  f.BlockSize,
		Owner:      f.Owner,
		Mode:       uint32(mode),
		ModTime:    time.UnixMilli(f.ModificationTime),
		AccessTime: time.UnixMilli(f.AccessTime),
	}
}
