package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP extracts every file in a ZIP archive into destDir and returns the
// extracted paths in archive order.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		path, err := extractZIPEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		if path != "" {
			extracted = append(extracted, path)
		}
	}
	return extracted, nil
}

// Unpack returns a path to the first file with one of the given extensions.
// A plain file is returned as is when its own extension matches. A ZIP
// archive is extracted next to itself (into "<name>_files") and searched in
// extension preference order. Extensions are matched case-insensitively.
func Unpack(path string, exts ...string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".zip" {
		if len(exts) == 0 || slices.ContainsFunc(exts, func(e string) bool { return strings.EqualFold(e, ext) }) {
			return path, nil
		}
		return "", eris.Errorf("zip: %s is not one of %v", path, exts)
	}

	destDir := strings.TrimSuffix(path, filepath.Ext(path)) + "_files"
	files, err := ExtractZIP(path, destDir)
	if err != nil {
		return "", err
	}
	for _, want := range exts {
		for _, f := range files {
			if strings.EqualFold(filepath.Ext(f), want) {
				return f, nil
			}
		}
	}
	if len(exts) == 0 && len(files) == 1 {
		return files[0], nil
	}
	return "", eris.Errorf("zip: no %v file in %s", exts, path)
}

// extractZIPEntry writes one archive entry below destDir and returns its
// path, or "" for directories. Entries that would escape destDir are refused.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return "", eris.Wrap(err, "zip: create directory")
		}
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return "", eris.Wrap(err, "zip: write file")
	}
	if err := out.Close(); err != nil {
		return "", eris.Wrap(err, "zip: close file")
	}
	return destPath, nil
}
