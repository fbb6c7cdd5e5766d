package msi

import "errors"

// Sentinel errors for package reading and extraction. Callers classify
// failures with errors.Is; the wrapped error carries the detail.
var (
	// ErrDatabase indicates a table or query failure in the package database.
	ErrDatabase = errors.New("msi: database error")

	// ErrNotFound indicates a table the caller asked for does not exist.
	ErrNotFound = errors.New("msi: not found")

	// ErrCorruptPackage indicates structurally invalid cross references,
	// such as a file pointing at an unknown directory.
	ErrCorruptPackage = errors.New("msi: corrupt package")

	// ErrCabinetNotFound indicates neither the _Streams table nor the raw
	// compound file scan produced the requested cabinet.
	ErrCabinetNotFound = errors.New("msi: cabinet not found")

	// ErrMultipleCandidates indicates the compound file scan found more
	// than one stream carrying the cabinet signature.
	ErrMultipleCandidates = errors.New("msi: multiple cabinet candidates")

	// ErrIO indicates a filesystem failure while copying or writing.
	ErrIO = errors.New("msi: i/o error")

	// ErrCanceled indicates the caller aborted the extraction.
	ErrCanceled = errors.New("msi: extraction canceled")

	// ErrInvalidArgument indicates a missing or malformed argument.
	ErrInvalidArgument = errors.New("msi: invalid argument")
)
