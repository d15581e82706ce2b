package cmip6

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/i474232898/cmip6-download/internal/common"
)

// ErrUnsafeMember is returned for archive members that would land outside the
// extraction directory.
var ErrUnsafeMember = errors.New("archive member escapes extraction directory")

// removeFile deletes auxiliary files; replaced in tests.
var removeFile = os.Remove

// ExtractFirstMember extracts the first member of the zip archive whose name
// ends in ext into dir and moves it to dst. Scanning stops at the first match,
// so later matching members are dropped without notice. It returns the name of
// the extracted member, or "" when no member matched; the latter is not an
// error.
func ExtractFirstMember(archivePath, dir, ext, dst string) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ext) {
			continue
		}
		if !filepath.IsLocal(f.Name) {
			return "", fmt.Errorf("%w: %q", ErrUnsafeMember, f.Name)
		}

		src := filepath.Join(dir, filepath.FromSlash(f.Name))
		if err := extractMember(f, src); err != nil {
			return "", fmt.Errorf("extract %s: %w", f.Name, err)
		}
		if err := os.Rename(src, dst); err != nil {
			return "", fmt.Errorf("move %s: %w", f.Name, err)
		}
		return f.Name, nil
	}
	return "", nil
}

func extractMember(f *zip.File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// RemoveAuxiliary deletes files in dir whose names end in one of exts and
// returns the names it removed. Only listing dir can fail.
func RemoveAuxiliary(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		if e.IsDir() || !common.HasAnySuffix(e.Name(), exts...) {
			continue
		}
		if err := removeFile(filepath.Join(dir, e.Name())); err != nil {
			// Ignored: leftover metadata must not fail an otherwise good
			// download, whatever the permission or lock state of the file.
			continue
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}
