// Package upload persists user-submitted files under a local directory,
// enforcing a per-kind extension allow-list and deduplicating filenames.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidFormat reports a missing or disallowed file extension.
var ErrInvalidFormat = errors.New("upload: invalid file format")

// Saver writes uploads into Dir. The directory is created on first use.
type Saver struct {
	Dir string
}

// Allowed reports whether filename carries an extension present in exts
// (lower-case, no leading dot). A name without an extension is never allowed.
func Allowed(filename string, exts map[string]bool) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return false
	}
	return exts[ext]
}

// Save sanitizes the client-supplied filename, validates the sanitized
// name's extension against exts, picks a collision-free name and writes the
// content. It returns the stored filename (not the full path).
func (s *Saver) Save(r io.Reader, filename string, exts map[string]bool) (string, error) {
	// Validate the name we will actually store: sanitizing can drop the
	// extension of degenerate names like "../.pdf".
	name := Sanitize(filename)
	if !Allowed(name, exts) {
		return "", ErrInvalidFormat
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("upload: create dir: %w", err)
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	// On collision append _1, _2, ... before the extension until free.
	// Known race: two concurrent uploads can pick the same free name.
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(s.Dir, name)); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s_%d%s", base, i, ext)
	}

	out, err := os.Create(filepath.Join(s.Dir, name))
	if err != nil {
		return "", fmt.Errorf("upload: create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return "", fmt.Errorf("upload: write file: %w", err)
	}
	return name, nil
}

// Sanitize strips any path component and maps the remaining runes onto a
// safe character set [A-Za-z0-9._-].
func Sanitize(filename string) string {
	filename = filepath.Base(filepath.Clean(filename))
	// Windows clients may send a full path with backslashes.
	if i := strings.LastIndexByte(filename, '\\'); i >= 0 {
		filename = filename[i+1:]
	}

	var b strings.Builder
	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "._")
	if name == "" {
		name = "upload"
	}
	return name
}
