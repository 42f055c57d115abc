// Package camera acquires still photos into the local capture directory.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/virasat/internal/model"
)

// Camera produces captured images and disposes of discarded ones
type Camera interface {
	Capture(ctx context.Context) (model.CapturedImage, error)
	Discard(img model.CapturedImage) error
}

// ErrNoSource is returned when a FileCamera has nothing to capture
var ErrNoSource = errors.New("no photo source set")

// FileCamera "captures" by copying an existing photo into its directory.
// Each capture gets a unique, timestamped file name.
type FileCamera struct {
	dir    string
	source string
	now    func() time.Time
}

// NewFileCamera creates a camera storing captures in dir
func NewFileCamera(dir, source string) *FileCamera {
	return &FileCamera{dir: dir, source: source, now: time.Now}
}

// SetSource selects the photo used by the next capture
func (c *FileCamera) SetSource(path string) {
	c.source = path
}

// Capture copies the current source into the capture directory
func (c *FileCamera) Capture(ctx context.Context) (model.CapturedImage, error) {
	if err := ctx.Err(); err != nil {
		return model.CapturedImage{}, err
	}
	if c.source == "" {
		return model.CapturedImage{}, ErrNoSource
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return model.CapturedImage{}, fmt.Errorf("create capture dir: %w", err)
	}

	src, err := os.Open(c.source)
	if err != nil {
		return model.CapturedImage{}, fmt.Errorf("open photo: %w", err)
	}
	defer func() { _ = src.Close() }()

	at := c.now()
	ext := strings.ToLower(filepath.Ext(c.source))
	if ext == "" {
		ext = ".jpg"
	}
	name := fmt.Sprintf("%s-%s%s", at.UTC().Format("20060102T150405"), uuid.NewString()[:8], ext)
	dst := filepath.Join(c.dir, name)

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return model.CapturedImage{}, fmt.Errorf("create capture: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return model.CapturedImage{}, fmt.Errorf("copy photo: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return model.CapturedImage{}, fmt.Errorf("close capture: %w", err)
	}

	abs, err := filepath.Abs(dst)
	if err != nil {
		abs = dst
	}
	return model.CapturedImage{URI: abs, CapturedAt: at}, nil
}

// Discard removes a captured file. Files outside the capture directory and
// already-removed files are left alone.
func (c *FileCamera) Discard(img model.CapturedImage) error {
	if img.IsZero() {
		return nil
	}

	dir, err := filepath.Abs(c.dir)
	if err != nil {
		return err
	}
	if filepath.Dir(img.URI) != dir {
		return nil
	}

	if err := os.Remove(img.URI); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard capture: %w", err)
	}
	return nil
}
