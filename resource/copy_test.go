package resource

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"
)

func TestCopyDir(t *testing.T) {
	src := fs.NewDir(t, "src",
		fs.WithFile("PG_VERSION", "16\n", fs.WithMode(0o600)),
		fs.WithDir("base",
			fs.WithFile("1", "pages", fs.WithMode(0o640)),
		),
	)
	assert.Assert(t, os.Symlink("1", src.Join("base", "link")))
	dst := filepath.Join(t.TempDir(), "data")

	assert.Assert(t, copyData(src.Path(), dst))

	b, err := os.ReadFile(filepath.Join(dst, "PG_VERSION"))
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(string(b), "16\n"))

	info, err := os.Stat(filepath.Join(dst, "base", "1"))
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(info.Mode().Perm(), os.FileMode(0o640)))

	link, err := os.Readlink(filepath.Join(dst, "base", "link"))
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(link, "1"))
}

func TestCopyDir_AbsoluteLinksStayInTheCopy(t *testing.T) {
	outside := t.TempDir()
	src := fs.NewDir(t, "src",
		fs.WithDir("ts", fs.WithFile("f", "template", fs.WithMode(0o600))),
	)
	assert.Assert(t, os.Symlink(src.Join("ts"), src.Join("link")))
	assert.Assert(t, os.Symlink(outside, src.Join("elsewhere")))
	dst := filepath.Join(t.TempDir(), "data")

	assert.Assert(t, copyData(src.Path(), dst))

	link, err := os.Readlink(filepath.Join(dst, "link"))
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(link, filepath.Join(dst, "ts")))
	link, err = os.Readlink(filepath.Join(dst, "elsewhere"))
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(link, outside))

	assert.Assert(t, os.WriteFile(filepath.Join(dst, "link", "f"), []byte("clone"), 0o600))
	b, err := os.ReadFile(src.Join("ts", "f"))
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(string(b), "template"))
}

func TestCopyData_NotADirectory(t *testing.T) {
	src := fs.NewFile(t, "plain", fs.WithContent("x"))
	err := copyData(src.Path(), t.TempDir())
	assert.Check(t, cmp.ErrorContains(err, "neither a directory nor"))

	err = copyData(filepath.Join(t.TempDir(), "missing"), t.TempDir())
	assert.Check(t, cmp.ErrorIs(err, os.ErrNotExist))
}

func TestArchive_RoundTrip(t *testing.T) {
	src := fs.NewDir(t, "src",
		fs.WithFile("VERSION", "1\n", fs.WithMode(0o600)),
		fs.WithDir("nested", fs.WithDir("deeper",
			fs.WithFile("store.dat", "contents", fs.WithMode(0o600)),
		)),
	)

	archive := filepath.Join(t.TempDir(), "snap"+ArchiveExt)
	out, err := os.Create(archive)
	assert.Assert(t, err)
	assert.Assert(t, writeArchive(out, src.Path()))
	assert.Assert(t, out.Close())

	dst := filepath.Join(t.TempDir(), "data")
	assert.Assert(t, copyData(archive, dst))

	b, err := os.ReadFile(filepath.Join(dst, "nested", "deeper", "store.dat"))
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(string(b), "contents"))
	b, err = os.ReadFile(filepath.Join(dst, "VERSION"))
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(string(b), "1\n"))
}

func TestArchive_AbsoluteLinksBecomeRelative(t *testing.T) {
	src := fs.NewDir(t, "src",
		fs.WithDir("ts", fs.WithFile("f", "template", fs.WithMode(0o600))),
		fs.WithDir("pg_tblspc"),
	)
	assert.Assert(t, os.Symlink(src.Join("ts"), src.Join("pg_tblspc", "16384")))

	archive := filepath.Join(t.TempDir(), "snap"+ArchiveExt)
	out, err := os.Create(archive)
	assert.Assert(t, err)
	assert.Assert(t, writeArchive(out, src.Path()))
	assert.Assert(t, out.Close())

	dst := filepath.Join(t.TempDir(), "data")
	assert.Assert(t, copyData(archive, dst))

	link, err := os.Readlink(filepath.Join(dst, "pg_tblspc", "16384"))
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(link, filepath.Join("..", "ts")))

	assert.Assert(t, os.WriteFile(filepath.Join(dst, "pg_tblspc", "16384", "f"), []byte("clone"), 0o600))
	b, err := os.ReadFile(src.Join("ts", "f"))
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(string(b), "template"))
}

func TestExtractArchive_RejectsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	assert.Assert(t, err)
	tw := tar.NewWriter(zw)
	assert.Assert(t, tw.WriteHeader(&tar.Header{
		Name:     "../escaped",
		Typeflag: tar.TypeReg,
		Mode:     0o600,
		Size:     1,
	}))
	_, err = tw.Write([]byte("x"))
	assert.Assert(t, err)
	assert.Assert(t, tw.Close())
	assert.Assert(t, zw.Close())

	archive := filepath.Join(t.TempDir(), "evil"+ArchiveExt)
	assert.Assert(t, os.WriteFile(archive, buf.Bytes(), 0o600))

	root := t.TempDir()
	err = extractArchive(archive, filepath.Join(root, "data"))
	assert.Check(t, cmp.ErrorContains(err, "escapes the data directory"))
	_, err = os.Stat(filepath.Join(root, "escaped"))
	assert.Check(t, os.IsNotExist(err))
}
