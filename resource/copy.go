package resource

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/circleci/ephemeral/closer"
)

// ArchiveExt marks a CopyDataFrom source as a snapshot archive rather than a
// directory.
const ArchiveExt = ".tar.zst"

func copyData(src, dst string) error {
	src, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if strings.HasSuffix(src, ArchiveExt) {
		return extractArchive(src, dst)
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is neither a directory nor a %s archive", src, ArchiveExt)
	}
	return copyDir(src, dst)
}

// copyDir copies the regular files, directories and symlinks below src into
// dst, keeping permissions. Anything else (sockets, pipes) is skipped.
// Absolute links into src are repointed at dst so the copy never shares
// files with its source.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}

		switch mode := info.Mode(); {
		case mode.IsDir():
			return os.MkdirAll(target, mode.Perm()|0o700)
		case mode.IsRegular():
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return writeFile(target, f, mode.Perm())
		case mode&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if rel, ok := within(src, link); ok {
				link = filepath.Join(dst, rel)
			}
			return os.Symlink(link, target)
		}
		return nil
	})
}

// within reports whether link is an absolute path inside root, and where.
func within(root, link string) (string, bool) {
	if !filepath.IsAbs(link) {
		return "", false
	}
	rel, err := filepath.Rel(root, link)
	if err != nil || !filepath.IsLocal(rel) {
		return "", false
	}
	return rel, true
}

func writeFile(path string, r io.Reader, perm fs.FileMode) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer closer.ErrorHandler(f, &err)
	_, err = io.Copy(f, r)
	return err
}

// writeArchive writes the tree below src to w as a zstd compressed tar.
// Absolute links into src are stored relative to the link so that they
// resolve inside wherever the archive is extracted.
func writeArchive(w io.Writer, src string) (err error) {
	if src, err = filepath.Abs(src); err != nil {
		return err
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	defer closer.ErrorHandler(zw, &err)
	tw := tar.NewWriter(zw)
	defer closer.ErrorHandler(tw, &err)

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil || rel == "." {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		mode := info.Mode()
		switch {
		case mode.IsDir(), mode.IsRegular():
		case mode&fs.ModeSymlink != 0:
			if link, err = os.Readlink(path); err != nil {
				return err
			}
			if _, ok := within(src, link); ok {
				if link, err = filepath.Rel(filepath.Dir(path), link); err != nil {
					return err
				}
			}
		default:
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if mode.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !mode.IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

func extractArchive(path, dst string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	if err := os.MkdirAll(dst, 0o700); err != nil {
		return err
	}

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.FromSlash(strings.TrimSuffix(hdr.Name, "/"))
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive entry %q escapes the data directory", hdr.Name)
		}
		target := filepath.Join(dst, name)
		perm := hdr.FileInfo().Mode().Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, perm|0o700)
		case tar.TypeReg:
			if err = os.MkdirAll(filepath.Dir(target), 0o700); err == nil {
				err = writeFile(target, tr, perm)
			}
		case tar.TypeSymlink:
			err = os.Symlink(hdr.Linkname, target)
		}
		if err != nil {
			return err
		}
	}
}
