package badger

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittons/pkg/store/metadata"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// Node records are encoded with XDR: compact, fixed field order and no
// reflection over map keys. recordVersion is bumped when fields change.
const recordVersion uint32 = 1

// nodeRecord is the on-disk form of metadata.Node.
type nodeRecord struct {
	Version    uint32
	ID         []byte
	ParentID   []byte
	Name       string
	Kind       uint32
	Block      string
	Size       uint64
	BlockSize  uint64
	Owner      string
	Mode       uint32
	ModTime    int64
	AccessTime int64
}

func encodeNode(n *metadata.Node) ([]byte, error) {
	rec := nodeRecord{
		Version:    recordVersion,
		ID:         n.ID[:],
		ParentID:   n.ParentID[:],
		Name:       n.Name,
		Kind:       uint32(n.Kind),
		Block:      string(n.Block),
		Size:       n.Size,
		BlockSize:  n.BlockSize,
		Owner:      n.Owner,
		Mode:       n.Mode,
		ModTime:    n.ModTime.UnixNano(),
		AccessTime: n.AccessTime.UnixNano(),
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &rec); err != nil {
		return nil, fmt.Errorf("failed to encode node %s: %w", n.ID, err)
	}
	return buf.Bytes(), nil
}

func decodeNode(data []byte) (*metadata.Node, error) {
	var rec nodeRecord
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode node: %w", err)
	}
	if rec.Version != recordVersion {
		return nil, fmt.Errorf("unsupported node record version %d", rec.Version)
	}

	id, err := uuid.FromBytes(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid node id: %w", err)
	}
	parent, err := uuid.FromBytes(rec.ParentID)
	if err != nil {
		return nil, fmt.Errorf("invalid parent id: %w", err)
	}

	return &metadata.Node{
		ID:         id,
		ParentID:   parent,
		Name:       rec.Name,
		Kind:       metadata.Kind(rec.Kind),
		Block:      metadata.BlockHandle(rec.Block),
		Size:       rec.Size,
		BlockSize:  rec.BlockSize,
		Owner:      rec.Owner,
		Mode:       rec.Mode,
		ModTime:    time.Unix(0, rec.ModTime),
		AccessTime: time.Unix(0, rec.AccessTime),
	}, nil
}

func decodeID(data []byte) (uuid.UUID, error) {
	id, err := uuid.FromBytes(data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}
