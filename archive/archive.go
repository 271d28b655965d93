package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ResultExtensions are the file types collected into the results directory.
var ResultExtensions = []string{".json", ".csv"}

type MoveOptions struct {
	// Leave files whose names start with a dot in place.
	SkipHidden bool
}

// MoveResults moves every result file directly inside srcDir into destDir, creating destDir if needed.
// Existing files in destDir with the same name are replaced. Returns the moved file names.
func MoveResults(srcDir, destDir string, opts MoveOptions) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", srcDir, err)
	}

	moved := []string{}
	for _, ext := range ResultExtensions {
		for _, entry := range entries {
			name := entry.Name()
			if !strings.HasSuffix(name, ext) || !entry.Type().IsRegular() {
				continue
			}
			if opts.SkipHidden && strings.HasPrefix(name, ".") {
				continue
			}
			src := filepath.Join(srcDir, name)
			dest := filepath.Join(destDir, name)
			slog.Info("moving result", slog.String("from", src), slog.String("to", dest))
			if err := moveFile(src, dest); err != nil {
				return moved, err
			}
			moved = append(moved, name)
		}
	}
	return moved, nil
}

func moveFile(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return fmt.Errorf("moving %s: %w", src, err)
	}

	// rename fails across filesystems, fall back to copy and delete
	if err := copyFile(src, dest); err != nil {
		return fmt.Errorf("moving %s: %w", src, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("removing %s after copy: %w", src, err)
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ZipDir compresses dir recursively into zipPath. Entry names are slash-separated paths relative to dir.
// A ".zip" suffix is appended to zipPath when missing. Returns the written path.
func ZipDir(dir, zipPath string) (string, error) {
	if filepath.Ext(zipPath) != ".zip" {
		zipPath = strings.TrimSuffix(zipPath, filepath.Ext(zipPath)) + ".zip"
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	absZip, err := filepath.Abs(zipPath)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", zipPath, err)
	}

	f, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path == absZip {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel))
	})
	if err != nil {
		zw.Close()
		return "", fmt.Errorf("archiving %s: %w", dir, err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finishing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing archive: %w", err)
	}

	slog.Info("results archived", slog.String("dir", root), slog.String("archive", zipPath))
	return zipPath, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
