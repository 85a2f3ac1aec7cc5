// Package storage keeps uploaded files on local disk or in S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	voxerrors "vox-chat/pkg/errors"

	"github.com/google/uuid"
)

// FileStore saves and serves uploaded files by their stored name.
type FileStore interface {
	Save(ctx context.Context, name, contentType string, r io.Reader, size int64) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Redirector is implemented by stores whose files are served from elsewhere.
type Redirector interface {
	RedirectURL(ctx context.Context, name string) (string, error)
}

const maxExtLen = 16

// NewName returns a random stored name that keeps the extension of the
// uploaded file.
func NewName(original string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	if len(ext) > maxExtLen || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return uuid.NewString() + ext
}

// ValidName rejects names that could escape the upload directory.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: bad file name %q", voxerrors.ErrInvalidInput, name)
	}
	return nil
}
