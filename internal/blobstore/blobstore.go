// Package blobstore stores surgery attachments (pre/post artifacts) and
// hands back stable reference paths for the surgery record.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrBlobNotFound    = errors.New("attachment not found")
	ErrMissingFileName = errors.New("file name is required")
	ErrBadReference    = errors.New("invalid attachment reference")
)

// MaxFileSize caps a single attachment at 25 MB.
const MaxFileSize = 25 * 1024 * 1024

var ErrFileTooLarge = errors.New("attachment exceeds maximum allowed size")

// Store is the attachment storage contract. Save returns the stable
// reference path recorded on the surgery.
type Store interface {
	Save(ctx context.Context, ownerID, filename string, content io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

// FSStore keeps attachments on the local filesystem under a root dir.
type FSStore struct {
	root string
	now  func() time.Time
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment root: %w", err)
	}
	return &FSStore{root: root, now: time.Now}, nil
}

// Save writes the content under {ownerID}/{unixMillis}-{sanitized} and
// returns that relative reference.
func (s *FSStore) Save(_ context.Context, ownerID, filename string, content io.Reader) (string, error) {
	name := SanitizeFilename(filename)
	if name == "" {
		return "", ErrMissingFileName
	}

	ref := fmt.Sprintf("%s/%d-%s", ownerID, s.now().UnixMilli(), name)

	dir := filepath.Join(s.root, ownerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create owner dir: %w", err)
	}

	f, err := os.Create(filepath.Join(s.root, filepath.FromSlash(ref)))
	if err != nil {
		return "", fmt.Errorf("create attachment: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	if n > MaxFileSize {
		_ = os.Remove(f.Name())
		return "", ErrFileTooLarge
	}

	return ref, nil
}

func (s *FSStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	return f, nil
}

func (s *FSStore) Delete(_ context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

// resolve maps a reference back to a path under root, refusing anything
// that would escape it.
func (s *FSStore) resolve(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", ErrBadReference
	}
	return filepath.Join(s.root, clean), nil
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeFilename strips diacritics, turns whitespace into underscores,
// and drops everything outside [a-zA-Z0-9.-_].
func SanitizeFilename(name string) string {
	flat, _, err := transform.String(stripMarks, name)
	if err != nil {
		flat = name
	}

	var b strings.Builder
	for _, r := range flat {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte('_')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
