package badger

import (
	"github.com/google/uuid"
)

// Database Key Namespace
// ======================
//
// BadgerDB is a flat key-value store, so record types are separated by key
// prefixes:
//
// Data Type      Prefix   Key Format                  Value
// ===========================================================================
// Node records   "n:"     n:<uuid>                    nodeRecord (XDR)
// Child index    "c:"     c:<parentUUID>:<name>       child UUID (16 bytes)
// Root pointer   "root"   root                        root UUID (16 bytes)
//
// Child index keys sort by name within a parent, so a prefix scan over
// "c:<parentUUID>:" yields children already ordered by name.
//
// Parent back-references live inside the node record (ParentID) and are
// never stored as a separate key: the tree is only ever owned downward
// through the child index.

const (
	prefixNode  = "n:"
	prefixChild = "c:"
	keyRootName = "root"
)

func keyNode(id uuid.UUID) []byte {
	return []byte(prefixNode + id.String())
}

func keyChild(parent uuid.UUID, name string) []byte {
	return []byte(prefixChild + parent.String() + ":" + name)
}

// keyChildPrefix is the scan prefix for every child of parent.
func keyChildPrefix(parent uuid.UUID) []byte {
	return []byte(prefixChild + parent.String() + ":")
}

func keyRoot() []byte {
	return []byte(keyRootName)
}
