// Package file opens a local dataset file.
package file

import (
	"errors"
	"io"
	"io/fs"
	"os"

	apperrors "jobmarket/internal/errors"
)

// Open opens path for reading.
//
// Errors:
//   - SourceNotFound when path does not exist or is a directory.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.SourceNotFound(path, err)
		}
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, apperrors.SourceNotFound(path, errors.New("is a directory"))
	}
	return f, nil
}
