// Package tagengine builds a tag's directory tree from a source tag, via
// hardlink replication or a single symlink, per spec §4.9.
package tagengine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/afero"
)

var (
	ErrSrcMissing    = errors.New("src_dir does not exist")
	ErrDestNotEmpty  = errors.New("dest_dir already exists and is not empty; use force to overwrite")
	ErrInvalidTag    = errors.New("tag name must match ^[A-Za-z0-9_-]+$")
	tagNameRe        = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Request describes one tag build.
type Request struct {
	SrcDir, DestDir string
	DestTag         string
	Symlink         bool
	HardTagRegex    *regexp.Regexp
	Force           bool
}

// Build materializes req.DestDir from req.SrcDir. If req.Symlink is true
// and req.DestTag does not match req.HardTagRegex, dest is created as a
// symlink to src (a cheap, atomic "moving pointer"). Otherwise dest is
// built as an independent tree of hardlinks to every file under src (a
// stable snapshot unaffected by later mutation of src).
func Build(fsys afero.Fs, req Request) error {
	if !tagNameRe.MatchString(req.DestTag) {
		return fmt.Errorf("%w: %q", ErrInvalidTag, req.DestTag)
	}

	if _, err := fsys.Stat(req.SrcDir); err != nil {
		return fmt.Errorf("%w: %q", ErrSrcMissing, req.SrcDir)
	}

	if err := prepareDest(fsys, req.DestDir, req.Force); err != nil {
		return err
	}

	hardOverride := req.HardTagRegex != nil && req.HardTagRegex.MatchString(req.DestTag)

	if req.Symlink && !hardOverride {
		return buildSymlink(fsys, req.SrcDir, req.DestDir)
	}

	return buildHardlinkTree(fsys, req.SrcDir, req.DestDir)
}

func prepareDest(fsys afero.Fs, destDir string, force bool) error {
	info, err := lstat(fsys, destDir)
	if err != nil {
		return nil //nolint:nilerr // destDir not existing is the common, expected case
	}

	if info.Mode()&os.ModeSymlink != 0 {
		// An existing soft tag is always cheap to replace.
		return fsys.Remove(destDir)
	}

	empty, err := afero.IsEmpty(fsys, destDir)
	if err != nil {
		return fmt.Errorf("failed checking for emptiness: %q (%w)", destDir, err)
	}
	if !empty && !force {
		return fmt.Errorf("%w: %q", ErrDestNotEmpty, destDir)
	}

	return fsys.RemoveAll(destDir)
}

// buildSymlink creates destDir as a symbolic link to srcDir. afero only
// exposes symlink support on OsFs (via the Symlinker interface); when
// the underlying Fs doesn't support it (e.g. MemMapFs in tests), build a
// hardlink tree instead so the operation still succeeds.
func buildSymlink(fsys afero.Fs, srcDir, destDir string) error {
	linker, ok := fsys.(afero.Symlinker)
	if !ok {
		return buildHardlinkTree(fsys, srcDir, destDir)
	}

	if err := fsys.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
		return fmt.Errorf("failed to create parent: %q (%w)", filepath.Dir(destDir), err)
	}

	if err := linker.SymlinkIfPossible(srcDir, destDir); err != nil {
		return fmt.Errorf("failed to symlink: %q -> %q (%w)", destDir, srcDir, err)
	}

	return nil
}

// buildHardlinkTree replicates every file under srcDir at the
// corresponding path under destDir, hardlinking where the filesystem
// supports it (real OsFs) and falling back to a byte copy otherwise
// (MemMapFs, which has no inode concept to share).
func buildHardlinkTree(fsys afero.Fs, srcDir, destDir string) error {
	return afero.Walk(fsys, srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		dest := filepath.Join(destDir, rel)

		if info.IsDir() {
			return fsys.MkdirAll(dest, info.Mode())
		}

		if err := fsys.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}

		if _, ok := fsys.(*afero.OsFs); ok {
			if err := os.Link(p, dest); err == nil {
				return nil
			}
		}

		return copyFile(fsys, p, dest)
	})
}

// lstat reports destDir's info without following a terminal symlink, so a
// soft tag can be distinguished from a real directory.
func lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if lstater, ok := fsys.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(path)

		return info, err
	}

	return fsys.Stat(path)
}

func copyFile(fsys afero.Fs, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	data, err := afero.ReadAll(in)
	if err != nil {
		return err
	}

	return afero.WriteFile(fsys, dst, data, 0o644)
}
