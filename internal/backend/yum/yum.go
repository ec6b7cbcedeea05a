package yum

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/djzort/repositorio/internal/backend"
	"github.com/djzort/repositorio/internal/fetch"
	"github.com/djzort/repositorio/internal/tagengine"
	"github.com/djzort/repositorio/internal/validate"
)

const (
	TypeName = "Yum"

	repodataDir   = "repodata"
	repomdFile    = "repomd.xml"
	packagesDir   = "Packages"
	primaryType   = "primary"
)

var (
	ErrArchNotConfigured = errors.New("arch is not configured for this repo")
	ErrMirroredRepo      = errors.New("operation not valid on a mirrored repo")
	ErrFileExists        = errors.New("target file already exists; use force to overwrite")
	ErrAllURLsFailed     = errors.New("all upstream urls failed")
)

func init() {
	backend.Register(TypeName, func(deps backend.Deps) backend.Backend {
		return &Backend{fsys: deps.Fsys, log: deps.Log, newFetcher: deps.NewFetcher}
	})
}

// Backend implements the Yum/RPM plugin (spec §4.7).
type Backend struct {
	fsys       afero.Fs
	log        *slog.Logger
	newFetcher func(proxy, ca, cert, key string) (*fetch.Fetcher, error)
}

func (b *Backend) Type() string { return TypeName }

// MakeDir idempotently creates path and any missing parents.
func (b *Backend) MakeDir(path string) error {
	if err := b.fsys.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create: %q (%w)", path, err)
	}

	return nil
}

// Mirror updates the repo's head tag from its configured upstream URLs,
// one architecture at a time (spec §4.7 get_metadata + get_packages).
func (b *Backend) Mirror(ctx context.Context, req backend.MirrorRequest) error {
	fl, err := newFilter(req.IncludeFilename, req.IncludePackage, req.ExcludeFilename, req.ExcludePackage)
	if err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}

	ft, err := b.newFetcher(req.Proxy, req.CA, req.Cert, req.Key)
	if err != nil {
		return fmt.Errorf("failed to build fetcher: %w", err)
	}

	for _, arch := range req.Arch {
		archDir := filepath.Join(req.HeadDir, arch)
		if err := b.MakeDir(filepath.Join(archDir, packagesDir)); err != nil {
			return err
		}

		pkgs, okURL, err := b.getMetadata(ctx, ft, archDir, req.URL, arch, req.Checksums)
		if err != nil {
			if req.IgnoreErrors {
				b.log.Debug("skipping arch after metadata failure",
					"repo", req.RepoName, "arch", arch, "error", err)

				continue
			}

			return fmt.Errorf("arch %q: %w", arch, err)
		}

		if err := b.getPackages(ctx, ft, archDir, okURL, pkgs, fl, req.Checksums, req.IgnoreErrors); err != nil {
			return fmt.Errorf("arch %q: %w", arch, err)
		}
	}

	return nil
}

// getMetadata implements spec §4.7 get_metadata(arch): try each upstream
// URL in order, always re-downloading repomd.xml, downloading any stale
// or missing child descriptor, and parsing the primary package listing.
// The first URL to complete cleanly is pinned (ok_url) and returned for
// subsequent package downloads in the same run.
func (b *Backend) getMetadata(ctx context.Context, ft *fetch.Fetcher, archDir string, urls []string, arch string, checksums bool) ([]Package, string, error) {
	var lastErr error

	for _, tmpl := range urls {
		base := fetch.ExpandArch(tmpl, arch)

		pkgs, err := b.getMetadataFromURL(ctx, ft, archDir, base, checksums)
		if err == nil {
			return pkgs, base, nil
		}

		b.log.Debug("metadata fetch failed, trying next url", "url", base, "error", err)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = ErrAllURLsFailed
	}

	return nil, "", fmt.Errorf("%w: %w", ErrAllURLsFailed, lastErr)
}

func (b *Backend) getMetadataFromURL(ctx context.Context, ft *fetch.Fetcher, archDir, baseURL string, checksums bool) ([]Package, error) {
	repodata := filepath.Join(archDir, repodataDir)
	if err := b.MakeDir(repodata); err != nil {
		return nil, err
	}

	repomdPath := filepath.Join(repodata, repomdFile)
	repomdURL := joinURL(baseURL, path.Join(repodataDir, repomdFile))

	if _, err := ft.DownloadBinaryFile(ctx, b.fsys, repomdURL, repomdPath); err != nil {
		return nil, fmt.Errorf("failed to download repomd.xml: %w", err)
	}

	md, err := ReadLocalRepoMD(b.fsys, repomdPath)
	if err != nil {
		return nil, err
	}

	var primaryHref string

	for _, d := range md.Data {
		check, err := d.Validator(checksums)
		if err != nil {
			return nil, err
		}

		localPath := filepath.Join(archDir, filepath.FromSlash(d.Location.Href))

		ok, err := validate.Validate(b.fsys, localPath, check)
		if err != nil {
			return nil, err
		}

		if !ok {
			if err := b.MakeDir(filepath.Dir(localPath)); err != nil {
				return nil, err
			}

			fileURL := joinURL(baseURL, d.Location.Href)
			if _, err := ft.DownloadBinaryFile(ctx, b.fsys, fileURL, localPath); err != nil {
				return nil, fmt.Errorf("failed to download %q: %w", d.Type, err)
			}
		}

		if d.Type == primaryType {
			primaryHref = d.Location.Href
		}
	}

	if primaryHref == "" {
		return nil, fmt.Errorf("repomd.xml has no %q descriptor", primaryType)
	}

	return ReadLocalPrimary(b.fsys, filepath.Join(archDir, filepath.FromSlash(primaryHref)))
}

// getPackages implements spec §4.7 get_packages(arch, packages): filter,
// skip what already validates locally, download the rest. Every download
// uses okURL, the pinned base URL from this run's get_metadata call.
func (b *Backend) getPackages(ctx context.Context, ft *fetch.Fetcher, archDir, okURL string, pkgs []Package, fl *filter, checksums, ignoreErrors bool) error {
	for _, p := range pkgs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("failed checking context: %w", err)
		}

		if !fl.Keep(p) {
			continue
		}

		localPath := filepath.Join(archDir, filepath.FromSlash(p.Location.Href))

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

		b.log.Info("downloading package", "name", p.Name, "path", p.Location.Href)

		pkgURL := joinURL(okURL, p.Location.Href)
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

// Clean walks the arch directory tree and unlinks every regular file
// whose relative path is not referenced by current on-disk metadata
// (spec §4.7 clean()).
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

// referencedPaths reads local metadata (no network) and returns every
// relative path it references, including the metadata files themselves.
func (b *Backend) referencedPaths(archDir string) (map[string]bool, error) {
	repomdPath := filepath.Join(repodataDir, repomdFile)

	md, err := ReadLocalRepoMD(b.fsys, filepath.Join(archDir, repomdPath))
	if err != nil {
		return nil, err
	}

	referenced := map[string]bool{repomdPath: true}

	var primaryHref string

	for _, d := range md.Data {
		referenced[filepath.FromSlash(d.Location.Href)] = true
		if d.Type == primaryType {
			primaryHref = d.Location.Href
		}
	}

	if primaryHref != "" {
		pkgs, err := ReadLocalPrimary(b.fsys, filepath.Join(archDir, filepath.FromSlash(primaryHref)))
		if err != nil {
			return nil, err
		}

		for _, p := range pkgs {
			referenced[filepath.FromSlash(p.Location.Href)] = true
		}
	}

	return referenced, nil
}

// Init generates fresh metadata for a local (non-mirrored) repo via the
// createrepo subprocess (spec §4.7 init_arch).
func (b *Backend) Init(ctx context.Context, req backend.InitRequest) error {
	arches := req.Arch
	if len(arches) == 0 {
		return errors.New("init requires at least one arch")
	}

	for _, arch := range arches {
		if err := b.initArch(ctx, filepath.Join(req.HeadDir, arch), req.Force); err != nil {
			return fmt.Errorf("arch %q: %w", arch, err)
		}
	}

	return nil
}

// AddFile copies external files into the arch's package directory and
// regenerates that arch's metadata (spec §4.7 add_file).
func (b *Backend) AddFile(ctx context.Context, req backend.AddFileRequest) error {
	if !contains(req.ConfiguredArch, req.Arch) {
		return fmt.Errorf("%w: %q", ErrArchNotConfigured, req.Arch)
	}

	archDir := filepath.Join(req.HeadDir, req.Arch)
	pkgDir := filepath.Join(archDir, packagesDir)

	if err := b.MakeDir(pkgDir); err != nil {
		return err
	}

	for _, src := range req.Files {
		dst := filepath.Join(pkgDir, filepath.Base(src))

		if _, err := b.fsys.Stat(dst); err == nil && !req.Force {
			return fmt.Errorf("%w: %q", ErrFileExists, dst)
		}

		if err := copyFile(b.fsys, src, dst); err != nil {
			return fmt.Errorf("failed to add %q: %w", src, err)
		}
	}

	return b.initArch(ctx, archDir, true)
}

// DelFile removes named files and regenerates metadata (spec §4.7
// del_file). Locking is always applied uniformly by the orchestrator for
// every mutating action (spec §9, resolving the source's lock asymmetry).
func (b *Backend) DelFile(ctx context.Context, req backend.DelFileRequest) error {
	if !contains(req.ConfiguredArch, req.Arch) {
		return fmt.Errorf("%w: %q", ErrArchNotConfigured, req.Arch)
	}

	archDir := filepath.Join(req.HeadDir, req.Arch)
	pkgDir := filepath.Join(archDir, packagesDir)

	for _, name := range req.Files {
		target := filepath.Join(pkgDir, filepath.Base(name))
		if err := b.fsys.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %q: %w", target, err)
		}
	}

	return b.initArch(ctx, archDir, true)
}

// Tag builds dest from src via the shared tag engine (spec §4.9).
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

// Diff reads metadata on both sides (no network) and returns the set
// symmetric difference of referenced .rpm basenames (spec §4.7 diff).
func (b *Backend) Diff(_ context.Context, req backend.DiffRequest) (backend.DiffResult, error) {
	srcArch := filepath.Join(req.SrcDir, req.Arch)
	destArch := filepath.Join(req.DestDir, req.Arch)

	srcSet, err := b.rpmBasenames(srcArch)
	if err != nil {
		return backend.DiffResult{}, fmt.Errorf("src: %w", err)
	}

	destSet, err := b.rpmBasenames(destArch)
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

func (b *Backend) rpmBasenames(archDir string) (map[string]struct{}, error) {
	referenced, err := b.referencedPaths(archDir)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for rel := range referenced {
		base := filepath.Base(rel)
		if strings.HasSuffix(base, ".rpm") {
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
