package archive

import "github.com/juju/errors"

const (
	// ErrPathTraversal is returned when an archive member would be
	// written outside the restore directory.
	ErrPathTraversal = errors.ConstError("path traversal")

	// ErrEmptyArchive is returned when none of the sources yielded a file.
	ErrEmptyArchive = errors.ConstError("no files to back up")
)
