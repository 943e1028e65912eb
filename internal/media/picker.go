// Package media picks local image files for listings.
package media

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pauljones0/komsu/internal/models"
)

// PickOptions mirrors the picker options the app asked for.
type PickOptions struct {
	// MaxBytes rejects larger files; zero means no limit.
	MaxBytes int64
}

type Picker struct {
	root string
}

// New returns a picker that may only read files below root.
func New(root string) (*Picker, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media root %s: %w", root, err)
	}
	return &Picker{root: abs}, nil
}

// RequestPermission grants access to path only when it lies inside the media root.
func (p *Picker) RequestPermission(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(p.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s: %w", path, models.ErrPermissionDenied)
	}
	return nil
}

// PickImage checks that path is a readable image and returns its file:// URI.
// An empty path means the user cancelled.
func (p *Picker) PickImage(path string, opts PickOptions) (string, error) {
	if path == "" {
		return "", models.ErrPickCancelled
	}
	if err := p.RequestPermission(path); err != nil {
		return "", err
	}

	abs, _ := filepath.Abs(path)
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if opts.MaxBytes > 0 && info.Size() > opts.MaxBytes {
		return "", fmt.Errorf("%s is %d bytes, limit is %d", path, info.Size(), opts.MaxBytes)
	}

	mtype, err := mimetype.DetectFile(abs)
	if err != nil {
		return "", fmt.Errorf("detect type of %s: %w", path, err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%s is %s, not an image", path, mtype.String())
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}
