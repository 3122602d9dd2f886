package namespace

import (
	"fmt"
	"strings"
)

// Limits bounds path and name lengths in bytes.
type Limits struct {
	MaxNameLen int
	MaxPathLen int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxNameLen: 255, MaxPathLen: 4096}
}

// Clean parses an absolute path and returns its canonical form, collapsing
// repeated and trailing separators. "/" is the root.
func Clean(p string) (string, error) {
	segs, err := splitPath(p, DefaultLimits())
	if err != nil {
		return "", err
	}
	return joinPath(segs), nil
}

// splitPath validates p and returns its segments. The root yields none.
func splitPath(p string, limits Limits) ([]string, error) {
	if p == "" {
		return nil, invalidPath(p, "empty path")
	}
	if p[0] != '/' {
		return nil, invalidPath(p, "path must be absolute")
	}
	if strings.IndexByte(p, 0) >= 0 {
		return nil, invalidPath(p, "path contains NUL")
	}

	var segs []string
	for _, s := range strings.Split(p, "/") {
		switch s {
		case "":
			continue
		case ".", "..":
			return nil, invalidPath(p, fmt.Sprintf("segment %q not allowed", s))
		}
		if limits.MaxNameLen > 0 && len(s) > limits.MaxNameLen {
			return nil, invalidPath(p, fmt.Sprintf("name longer than %d bytes", limits.MaxNameLen))
		}
		segs = append(segs, s)
	}

	if limits.MaxPathLen > 0 && len(joinPath(segs)) > limits.MaxPathLen {
		return nil, invalidPath(p, fmt.Sprintf("path longer than %d bytes", limits.MaxPathLen))
	}
	return segs, nil
}

func joinPath(segs []string) string {
	return "/" + strings.Join(segs, "/")
}

// childPath appends name to a canonical directory path.
func childPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
