package namespace

import (
	"errors"
	"fmt"
)

// Error is a namespace-level failure returned by Engine operations.
//
// These are domain errors (missing file, name clash, non-empty directory) as
// opposed to raw infrastructure errors. Infrastructure failures from the node
// or block store surface as ErrIO with the cause available through Unwrap.
//
// Adapters translate Code to their own status codes; Message is meant to be
// shown to clients verbatim.
type Error struct {
	// Code is the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Path is the namespace path the error refers to.
	Path string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode represents the category of a namespace error.
type ErrorCode int

const (
	// ErrNotFound indicates the path does not resolve to the expected entry.
	ErrNotFound ErrorCode = iota + 1

	// ErrAlreadyExists indicates create found an existing entry and
	// overwrite was not requested, or the entry is a directory.
	ErrAlreadyExists

	// ErrNotADirectory indicates a path segment that must be a directory
	// is a file.
	ErrNotADirectory

	// ErrDirectoryNotEmpty indicates a non-recursive delete of a directory
	// with children.
	ErrDirectoryNotEmpty

	// ErrInvalidPath indicates a malformed path: relative, containing
	// "." or "..", or exceeding the configured limits.
	ErrInvalidPath

	// ErrLeaseHeld indicates another write handle is open on the file.
	ErrLeaseHeld

	// ErrLeaseExpired indicates a write handle lost its lease to a newer
	// writer before it could commit.
	ErrLeaseExpired

	// ErrIO indicates a node store or block store failure.
	ErrIO
)

// String returns the exception name used by adapters.
func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "FileNotFoundException"
	case ErrAlreadyExists:
		return "FileAlreadyExistsException"
	case ErrNotADirectory:
		return "ParentNotDirectoryException"
	case ErrDirectoryNotEmpty:
		return "PathIsNotEmptyDirectoryException"
	case ErrInvalidPath:
		return "InvalidPathException"
	case ErrLeaseHeld:
		return "AlreadyBeingCreatedException"
	case ErrLeaseExpired:
		return "LeaseExpiredException"
	case ErrIO:
		return "IOException"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// CodeFromString is the inverse of ErrorCode.String. It returns ErrIO for
// unknown names.
func CodeFromString(s string) ErrorCode {
	for c := ErrNotFound; c <= ErrIO; c++ {
		if c.String() == s {
			return c
		}
	}
	return ErrIO
}

func notFound(path string) error {
	return &Error{Code: ErrNotFound, Message: "File does not exist", Path: path}
}

func alreadyExists(path string) error {
	return &Error{Code: ErrAlreadyExists, Message: "File already exists", Path: path}
}

func existsAsDirectory(path string) error {
	return &Error{Code: ErrAlreadyExists, Message: "Path already exists as a directory", Path: path}
}

func notADirectory(path string) error {
	return &Error{Code: ErrNotADirectory, Message: "Parent path is not a directory", Path: path}
}

func directoryNotEmpty(path string) error {
	return &Error{Code: ErrDirectoryNotEmpty, Message: "Directory is not empty", Path: path}
}

func invalidPath(path, reason string) error {
	return &Error{Code: ErrInvalidPath, Message: "Invalid path (" + reason + ")", Path: path}
}

func leaseHeld(path string) error {
	return &Error{Code: ErrLeaseHeld, Message: "File is already being written", Path: path}
}

func leaseExpired(path string) error {
	return &Error{Code: ErrLeaseExpired, Message: "Write lease expired", Path: path}
}

// ioError wraps an infrastructure failure. Namespace errors pass through.
func ioError(path string, err error) error {
	var nsErr *Error
	if errors.As(err, &nsErr) {
		return err
	}
	return &Error{Code: ErrIO, Message: "I/O error (" + err.Error() + ")", Path: path, Err: err}
}

// CodeOf returns the code of a namespace error, or 0 if err is not one.
func CodeOf(err error) ErrorCode {
	var nsErr *Error
	if errors.As(err, &nsErr) {
		return nsErr.Code
	}
	return 0
}

// IsNotFound reports whether err is a namespace ErrNotFound.
func IsNotFound(err error) bool { return CodeOf(err) == ErrNotFound }

// IsAlreadyExists reports whether err is a namespace ErrAlreadyExists.
func IsAlreadyExists(err error) bool { return CodeOf(err) == ErrAlreadyExists }

// IsNotADirectory reports whether err is a namespace ErrNotADirectory.
func IsNotADirectory(err error) bool { return CodeOf(err) == ErrNotADirectory }

// IsDirectoryNotEmpty reports whether err is a namespace ErrDirectoryNotEmpty.
func IsDirectoryNotEmpty(err error) bool { return CodeOf(err) == ErrDirectoryNotEmpty }

// IsInvalidPath reports whether err is a namespace ErrInvalidPath.
func IsInvalidPath(err error) bool { return CodeOf(err) == ErrInvalidPath }

// IsLeaseHeld reports whether err is a namespace ErrLeaseHeld.
func IsLeaseHeld(err error) bool { return CodeOf(err) == ErrLeaseHeld }

// IsLeaseExpired reports whether err is a namespace ErrLeaseExpired.
func IsLeaseExpired(err error) bool { return CodeOf(err) == ErrLeaseExpired }
