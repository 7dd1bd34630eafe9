package remote

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	ErrNotFound    = errors.New("remote path not found")
	ErrConflict    = errors.New("remote path already exists")
	ErrAuthExpired = errors.New("remote authorization expired")
	ErrTooLarge    = errors.New("file too large")
	ErrUnavailable = errors.New("remote unavailable")
	ErrNotModified = errors.New("remote folder not modified")
)

// MaxFileSize is the largest single upload the remote accepts
const MaxFileSize = 150 << 20

// CheckSize rejects uploads over MaxFileSize before any bytes are sent
func CheckSize(path string, size int64) error {
	if size > MaxFileSize {
		return fmt.Errorf("%w: %s is %s, limit is %s", ErrTooLarge, path,
			humanize.IBytes(uint64(size)), humanize.IBytes(MaxFileSize))
	}
	return nil
}
