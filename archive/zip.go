// Package archive unpacks downloaded mod archives and bundles installed mods
// back into a single zip.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrUnsafePath rejects entries that would land outside the destination.
var ErrUnsafePath = errors.New("unsafe path in archive")

const defaultMaxSize = 512 << 20

// Zip installs mod archives. MaxSize caps the uncompressed size of one
// archive; zero means 512 MiB.
type Zip struct {
	MaxSize int64
}

// Extract unpacks data into dest. The archive is first written to a staging
// directory next to dest and only renamed into place once complete, so dest
// either holds the whole new archive or is left as it was.
func (z Zip) Extract(data []byte, dest string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}
	staging, err := os.MkdirTemp(parent, ".staging-"+filepath.Base(dest)+"-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	budget := z.MaxSize
	if budget <= 0 {
		budget = defaultMaxSize
	}
	for _, f := range zr.File {
		n, err := extractEntry(f, staging, budget)
		if err != nil {
			return err
		}
		budget -= n
	}

	return swapInto(staging, dest)
}

func extractEntry(f *zip.File, root string, budget int64) (int64, error) {
	name := filepath.FromSlash(f.Name)
	if !filepath.IsLocal(name) || strings.Contains(f.Name, `\`) {
		return 0, fmt.Errorf("%w: %q", ErrUnsafePath, f.Name)
	}
	target := filepath.Join(root, name)

	mode := f.Mode()
	switch {
	case mode.IsDir():
		return 0, os.MkdirAll(target, 0755)
	case mode&fs.ModeSymlink != 0, !mode.IsRegular():
		return 0, fmt.Errorf("%w: %q is not a regular file", ErrUnsafePath, f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, io.LimitReader(rc, budget+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if n > budget {
		return n, fmt.Errorf("archive exceeds size limit")
	}
	return n, nil
}

// swapInto renames staging to dest, moving an existing dest aside first and
// restoring it if the rename fails.
func swapInto(staging, dest string) error {
	if _, err := os.Lstat(dest); errors.Is(err, fs.ErrNotExist) {
		return os.Rename(staging, dest)
	} else if err != nil {
		return err
	}

	backup := staging + ".previous"
	if err := os.Rename(dest, backup); err != nil {
		return fmt.Errorf("move aside %s: %w", dest, err)
	}
	if err := os.Rename(staging, dest); err != nil {
		if rerr := os.Rename(backup, dest); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return os.RemoveAll(backup)
}

// Pack bundles files and directories into one zip. Each path is stored under
// its base name; directories keep their inner layout.
func Pack(paths []string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, p := range paths {
		base := filepath.Dir(filepath.Clean(p))
		err := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(base, path)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)
			if d.IsDir() {
				_, err := zw.Create(name + "/")
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			return addFile(zw, path, name)
		})
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", p, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addFile(zw *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
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
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
