// Package plain implements the plugin contract for "plain file tree"
// repos: a flat directory of files named directly by URL, with no
// repository index of its own (spec §1 lists Plain's internals as an
// external collaborator; only the plugin contract is specified here).
package plain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/djzort/repositorio/internal/backend"
	"github.com/djzort/repositorio/internal/fetch"
	"github.com/djzort/repositorio/internal/tagengine"
)

const TypeName = "Plain"

var ErrFileExists = errors.New("target file already exists; use force to overwrite")

func init() {
	backend.Register(TypeName, func(deps backend.Deps) backend.Backend {
		return &Backend{fsys: deps.Fsys, log: deps.Log, newFetcher: deps.NewFetcher}
	})
}

// Backend mirrors each configured URL directly into the arch directory,
// keyed by its basename; there is no index file to parse or regenerate.
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

// Mirror downloads every URL in req.URL, expanded for each arch, into
// that arch's directory. Each URL must name one file directly; there is
// no remote listing to discover additional files from.
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

		for _, tmpl := range req.URL {
			rawURL := fetch.ExpandArch(tmpl, arch)
			dest := filepath.Join(archDir, filepath.Base(rawURL))

			if _, err := b.fsys.Stat(dest); err == nil && !req.Force {
				continue
			}

			b.log.Info("downloading file", "url", rawURL, "arch", arch)

			if _, err := ft.DownloadBinaryFile(ctx, b.fsys, rawURL, dest); err != nil {
				if req.IgnoreErrors {
					b.log.Debug("skipping file after download failure", "url", rawURL, "error", err)

					continue
				}

				return fmt.Errorf("arch %q: %w", arch, err)
			}
		}
	}

	return nil
}

// Clean is a no-op: without a repository index there is no authoritative
// set of files to prune against, so nothing is ever considered stale.
func (b *Backend) Clean(_ context.Context, _ backend.CleanRequest) error {
	return nil
}

// Init creates the empty arch directories for a local (non-mirrored)
// plain tree; there is no metadata to generate.
func (b *Backend) Init(_ context.Context, req backend.InitRequest) error {
	for _, arch := range req.Arch {
		if err := b.MakeDir(filepath.Join(req.HeadDir, arch)); err != nil {
			return err
		}
	}

	return nil
}

// AddFile copies named files directly into the arch directory.
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
			return fmt.Errorf("%w: %q", ErrFileExists, dst)
		}

		if err := copyFile(b.fsys, src, dst); err != nil {
			return fmt.Errorf("failed to add %q: %w", src, err)
		}
	}

	return nil
}

// DelFile removes named files from the arch directory.
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

// Diff compares the flat file listing of both arch directories directly,
// since a plain tree carries no index to read instead.
func (b *Backend) Diff(_ context.Context, req backend.DiffRequest) (backend.DiffResult, error) {
	srcSet, err := b.basenames(filepath.Join(req.SrcDir, req.Arch))
	if err != nil {
		return backend.DiffResult{}, fmt.Errorf("src: %w", err)
	}

	destSet, err := b.basenames(filepath.Join(req.DestDir, req.Arch))
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

func (b *Backend) basenames(dir string) (map[string]struct{}, error) {
	entries, err := afero.ReadDir(b.fsys, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}

		return nil, fmt.Errorf("failed to read: %q (%w)", dir, err)
	}

	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			set[e.Name()] = struct{}{}
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
