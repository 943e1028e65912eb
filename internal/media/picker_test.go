package media

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pauljones0/komsu/internal/models"
)

// Smallest valid PNG: signature plus IHDR, IDAT and IEND chunks.
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

func setup(t *testing.T) (*Picker, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "chair.png"), pngBytes, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("just text"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	return p, root
}

func TestPickImage(t *testing.T) {
	p, root := setup(t)

	uri, err := p.PickImage(filepath.Join(root, "chair.png"), PickOptions{})
	if err != nil {
		t.Fatalf("PickImage() error = %v", err)
	}
	if !strings.HasPrefix(uri, "file://") || !strings.HasSuffix(uri, "/chair.png") {
		t.Errorf("PickImage() = %q, want a file:// URI", uri)
	}
}

func TestPickImage_Cancelled(t *testing.T) {
	p, _ := setup(t)
	if _, err := p.PickImage("", PickOptions{}); !errors.Is(err, models.ErrPickCancelled) {
		t.Errorf("PickImage(\"\") error = %v, want ErrPickCancelled", err)
	}
}

func TestPickImage_OutsideRootDenied(t *testing.T) {
	p, _ := setup(t)
	outside := filepath.Join(t.TempDir(), "other.png")
	if err := os.WriteFile(outside, pngBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := p.PickImage(outside, PickOptions{}); !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("PickImage() error = %v, want ErrPermissionDenied", err)
	}
}

func TestPickImage_RejectsNonImage(t *testing.T) {
	p, root := setup(t)
	if _, err := p.PickImage(filepath.Join(root, "notes.txt"), PickOptions{}); err == nil {
		t.Error("PickImage() should reject a text file")
	}
}

func TestPickImage_SizeLimit(t *testing.T) {
	p, root := setup(t)
	if _, err := p.PickImage(filepath.Join(root, "chair.png"), PickOptions{MaxBytes: 10}); err == nil {
		t.Error("PickImage() should reject files over MaxBytes")
	}
}

func TestRequestPermission(t *testing.T) {
	p, root := setup(t)
	if err := p.RequestPermission(filepath.Join(root, "sub", "x.png")); err != nil {
		t.Errorf("path inside root should be granted: %v", err)
	}
	if err := p.RequestPermission(filepath.Join(root, "..", "x.png")); !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("path escaping root error = %v, want ErrPermissionDenied", err)
	}
}
