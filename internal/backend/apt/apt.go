// Package apt implements the plugin contract for Apt/deb repos: it
// downloads a flat "Packages" index per architecture and the pool files
// it references (spec §1 lists Apt's internals as an external
// collaborator beyond the plugin contract; this is a real, if simpler,
// implementation of that contract, grounded on the deb822 index format
// rather than the full Release/by-hash machinery of a complete mirror).
package apt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/djzort/repositorio/internal/backend"
	"github.com/djzort/repositorio/internal/fetch"
	"github.com/djzort/repositorio/internal/tagengine"
	"github.com/djzort/repositorio/internal/validate"
)

const (
	TypeName = "Apt"

	indexFile = "Packages"
)

var ErrAllURLsFailed = errors.New("all upstream urls failed")

func init() {
	backend.Register(TypeName, func(deps backend.Deps) backend.Backend {
		return &Backend{fsys: deps.Fsys, log: deps.Log, newFetcher: deps.NewFetcher}
	})
}

// Backend implements the Apt plugin over a per-architecture flat
// "Packages" index and its referenced pool files.
type Backend struct {
	fsys       afero.Fs
	log        *slog.Logger
	newFetcher func(proxy, ca, cert, key string) (*fetch.Fetcher, error)
}

func (b *Backend) Type() string { return TypeName }

func (b *Backend) MakeDir(path string) error {
	if err := b.fsys.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create: %q (%w)", path, err)
	}

	return nil
}

// Mirror downloads each arch's Packages index (trying each upstream URL
// in turn, pinning the first that succeeds) and every pool file it
// references that doesn't already validate locally.
func (b *Backend) Mirror(ctx context.Context, req backend.MirrorRequest) error {
	ft, err := b.newFetcher(req.Proxy, req.CA, req.Cert, req.Key)
	if err != nil {
		return fmt.Errorf("failed to build fetcher: %w", err)
	}

	for _, arch := range req.Arch {
		archDir := filepath.Join(req.HeadDir, arch)
		if err := b.MakeDir(archDir); err != nil {
			return err
		}

		pkgs, okURL, err := b.getIndex(ctx, ft, archDir, req.URL, arch)
		if err != nil {
			if req.IgnoreErrors {
				b.log.Debug("skipping arch after index failure", "repo", req.RepoName, "arch", arch, "error", err)

				continue
			}

			return fmt.Errorf("arch %q: %w", arch, err)
		}

		if err := b.getPackages(ctx, ft, archDir, okURL, pkgs, req.Checksums, req.IgnoreErrors); err != nil {
			return fmt.Errorf("arch %q: %w", arch, err)
		}
	}

	return nil
}

// getIndex tries each upstream URL in order and pins the first that
// yields a parseable index, mirroring the Yum backend's ok_url failover.
func (b *Backend) getIndex(ctx context.Context, ft *fetch.Fetcher, archDir string, urls []string, arch string) ([]Package, string, error) {
	var lastErr error

	for _, tmpl := range urls {
		base := fetch.ExpandArch(tmpl, arch)

		pkgs, err := b.getIndexFromURL(ctx, ft, archDir, base)
		if err == nil {
			return pkgs, base, nil
		}

		b.log.Debug("index fetch failed, trying next url", "url", base, "error", err)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = ErrAllURLsFailed
	}

	return nil, "", fmt.Errorf("%w: %w", ErrAllURLsFailed, lastErr)
}

func (b *Backend) getIndexFromURL(ctx context.Context, ft *fetch.Fetcher, archDir, baseURL string) ([]Package, error) {
	indexPath := filepath.Join(archDir, indexFile)
	indexURL := joinURL(baseURL, indexFile)

	if _, err := ft.DownloadBinaryFile(ctx, b.fsys, indexURL, indexPath); err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", indexFile, err)
	}

	return ReadLocalPackages(b.fsys, indexPath)
}

// getPackages downloads every pool file named by pkgs, resolved against
// the pinned okURL from this run's getIndex call.
func (b *Backend) getPackages(ctx context.Context, ft *fetch.Fetcher, archDir, okURL string, pkgs []Package, checksums, ignoreErrors bool) error {
	for _, p := range pkgs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("failed checking context: %w", err)
		}

		localPath := filepath.Join(archDir, filepath.FromSlash(p.Filename))

		ok, err := validate.Validate(b.fsys, localPath, p.Validator(checksums))
		if err != nil {
			return err
		}
		if ok {
			continue
		}

		if err := b.MakeDir(filepath.Dir(localPath)); err != nil {
			return err
		}

		b.log.Info("downloading package", "name", p.Name, "path", p.Filename)

		pkgURL := joinURL(okURL, p.Filename)
		if _, err := ft.DownloadBinaryFile(ctx, b.fsys, pkgURL, localPath); err != nil {
			if ignoreErrors {
				b.log.Debug("skipping package after download failure", "name", p.Name, "error", err)

				continue
			}

			return fmt.Errorf("failed to download package %q: %w", p.Name, err)
		}
	}

	return nil
}

func joinURL(base, rel string) string {
	if strings.HasSuffix(base, "/") {
		return base + rel
	}

	return base + "/" + rel
}

// Clean reads the local index (no network) and removes any pool file it
// no longer references.
func (b *Backend) Clean(_ context.Context, req backend.CleanRequest) error {
	for _, arch := range req.Arch {
		archDir := filepath.Join(req.HeadDir, arch)

		referenced, err := b.referencedPaths(archDir)
		if err != nil {
			return fmt.Errorf("arch %q: %w", arch, err)
		}

		err = afero.Walk(b.fsys, archDir, func(p string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				if errors.Is(walkErr, os.ErrNotExist) {
					return nil
				}

				return walkErr
			}
			if info.IsDir() {
				return nil
			}

			rel, err := filepath.Rel(archDir, p)
			if err != nil {
				return err
			}

			if referenced[rel] {
				return nil
			}

			b.log.Info("removing unreferenced file", "path", p)

			return b.fsys.Remove(p)
		})
		if err != nil {
			return fmt.Errorf("arch %q: %w", arch, err)
		}
	}

	return nil
}

func (b *Backend) referencedPaths(archDir string) (map[string]bool, error) {
	pkgs, err := ReadLocalPackages(b.fsys, filepath.Join(archDir, indexFile))
	if err != nil {
		return nil, err
	}

	referenced := map[string]bool{indexFile: true}
	for _, p := range pkgs {
		referenced[filepath.FromSlash(p.Filename)] = true
	}

	return referenced, nil
}

// Init creates the empty arch directories for a local (non-mirrored)
// repo; regenerating a Packages index (apt-ftparchive's job) is outside
// the plugin contract this backend implements.
func (b *Backend) Init(_ context.Context, req backend.InitRequest) error {
	for _, arch := range req.Arch {
		if err := b.MakeDir(filepath.Join(req.HeadDir, arch)); err != nil {
			return err
		}
	}

	return nil
}

// AddFile copies named files into the arch directory's pool. The local
// Packages index is not regenerated; see Init.
func (b *Backend) AddFile(_ context.Context, req backend.AddFileRequest) error {
	if !contains(req.ConfiguredArch, req.Arch) {
		return fmt.Errorf("arch not configured: %q", req.Arch)
	}

	archDir := filepath.Join(req.HeadDir, req.Arch)
	if err := b.MakeDir(archDir); err != nil {
		return err
	}

	for _, src := range req.Files {
		dst := filepath.Join(archDir, filepath.Base(src))

		if _, err := b.fsys.Stat(dst); err == nil && !req.Force {
			return fmt.Errorf("target file already exists; use force to overwrite: %q", dst)
		}

		if err := copyFile(b.fsys, src, dst); err != nil {
			return fmt.Errorf("failed to add %q: %w", src, err)
		}
	}

	return nil
}

// DelFile removes named files from the arch directory's pool.
func (b *Backend) DelFile(_ context.Context, req backend.DelFileRequest) error {
	if !contains(req.ConfiguredArch, req.Arch) {
		return fmt.Errorf("arch not configured: %q", req.Arch)
	}

	archDir := filepath.Join(req.HeadDir, req.Arch)

	for _, name := range req.Files {
		target := filepath.Join(archDir, filepath.Base(name))
		if err := b.fsys.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %q: %w", target, err)
		}
	}

	return nil
}

func (b *Backend) Tag(_ context.Context, req backend.TagRequest) error {
	return tagengine.Build(b.fsys, tagengine.Request{
		SrcDir:       req.SrcDir,
		DestDir:      req.DestDir,
		DestTag:      req.DestTag,
		Symlink:      req.Symlink,
		HardTagRegex: req.HardTagRegex,
		Force:        req.Force,
	})
}

// Diff reads each side's local index and returns the set symmetric
// difference of referenced .deb basenames.
func (b *Backend) Diff(_ context.Context, req backend.DiffRequest) (backend.DiffResult, error) {
	srcSet, err := b.debBasenames(filepath.Join(req.SrcDir, req.Arch))
	if err != nil {
		return backend.DiffResult{}, fmt.Errorf("src: %w", err)
	}

	destSet, err := b.debBasenames(filepath.Join(req.DestDir, req.Arch))
	if err != nil {
		return backend.DiffResult{}, fmt.Errorf("dest: %w", err)
	}

	counts := map[string]int{}
	for name := range destSet {
		counts[name]++
	}
	for name := range srcSet {
		counts[name]--
	}

	result := backend.DiffResult{SrcTag: req.SrcTag, DestTag: req.DestTag}
	for name, n := range counts {
		switch {
		case n < 0:
			result.OnlyInSrc = append(result.OnlyInSrc, name)
		case n > 0:
			result.OnlyInDest = append(result.OnlyInDest, name)
		}
	}

	return result, nil
}

func (b *Backend) debBasenames(archDir string) (map[string]struct{}, error) {
	referenced, err := b.referencedPaths(archDir)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for rel := range referenced {
		base := filepath.Base(rel)
		if strings.HasSuffix(base, ".deb") {
			set[base] = struct{}{}
		}
	}

	return set, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}

func copyFile(fsys afero.Fs, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open: %q (%w)", src, err)
	}
	defer in.Close()

	out, err := fsys.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create: %q (%w)", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed during io: %w", err)
	}

	return out.Close()
}
