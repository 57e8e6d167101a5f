package upload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var videoExts = map[string]bool{"mp4": true, "webm": true, "ogg": true}
var fileExts = map[string]bool{"pdf": true, "zip": true, "docx": true, "txt": true}

func TestAllowed(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		exts     map[string]bool
		want     bool
	}{
		{"allowed video", "clip.mp4", videoExts, true},
		{"case insensitive", "CLIP.MP4", videoExts, true},
		{"disallowed", "clip.exe", videoExts, false},
		{"wrong kind", "doc.pdf", videoExts, false},
		{"no extension", "README", fileExts, false},
		{"trailing dot", "weird.", fileExts, false},
		{"allowed file", "report.PDF", fileExts, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allowed(tt.filename, tt.exts))
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"my report.pdf", "my_report.pdf"},
		{"../../etc/passwd.txt", "passwd.txt"},
		{`C:\Users\bob\notes.txt`, "notes.txt"},
		{"weird@#$.zip", "weird___.zip"},
		{"...", "upload"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), "input %q", tt.in)
	}
}

func TestSaveRejectsDisallowedExtension(t *testing.T) {
	s := &Saver{Dir: t.TempDir()}
	_, err := s.Save(strings.NewReader("payload"), "malware.exe", fileExts)
	require.ErrorIs(t, err, ErrInvalidFormat)

	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing should be written for a rejected upload")
}

func TestSaveRejectsNameThatLosesExtension(t *testing.T) {
	// "../.pdf" sanitizes to "pdf" with no extension; the stored name must
	// always carry an allow-listed extension, so this is rejected.
	s := &Saver{Dir: t.TempDir()}
	_, err := s.Save(strings.NewReader("payload"), "../.pdf", fileExts)
	require.ErrorIs(t, err, ErrInvalidFormat)

	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveWritesContent(t *testing.T) {
	s := &Saver{Dir: t.TempDir()}
	name, err := s.Save(strings.NewReader("hello"), "notes.txt", fileExts)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", name)

	got, err := os.ReadFile(filepath.Join(s.Dir, name))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestSaveDeduplicatesOnCollision(t *testing.T) {
	s := &Saver{Dir: t.TempDir()}

	first, err := s.Save(strings.NewReader("original"), "report.pdf", fileExts)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", first)

	second, err := s.Save(strings.NewReader("newer"), "report.pdf", fileExts)
	require.NoError(t, err)
	assert.Equal(t, "report_1.pdf", second)

	third, err := s.Save(strings.NewReader("newest"), "report.pdf", fileExts)
	require.NoError(t, err)
	assert.Equal(t, "report_2.pdf", third)

	// The original file is untouched.
	got, err := os.ReadFile(filepath.Join(s.Dir, "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestSaveSanitizesBeforeStoring(t *testing.T) {
	s := &Saver{Dir: t.TempDir()}
	name, err := s.Save(strings.NewReader("x"), "my report.pdf", fileExts)
	require.NoError(t, err)
	assert.Equal(t, "my_report.pdf", name)
}
