// Package orchestrator dispatches a single CLI action against a
// validated config, expanding repo selectors, acquiring the per-repo
// lock, and delegating to the matched backend (spec §4.8).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"github.com/spf13/afero"

	"github.com/djzort/repositorio/internal/backend"
	"github.com/djzort/repositorio/internal/config"
	"github.com/djzort/repositorio/internal/diffengine"
	"github.com/djzort/repositorio/internal/fetch"
	"github.com/djzort/repositorio/internal/layout"
	"github.com/djzort/repositorio/internal/lockmgr"
)

var (
	ErrRepoRequired = errors.New("repo is required for this action")
	ErrTagRequired  = errors.New("tag is required for this action")
	ErrArchRequired = errors.New("arch is required for this action")
	ErrFileRequired = errors.New("file is required for this action")
)

// ActionOptions is the uniform set of options every action reads from,
// corresponding to spec §6's action/option table. Not every field is
// meaningful for every action.
type ActionOptions struct {
	Repo    string
	Regex   bool
	Arch    []string
	File    []string
	Tag     string
	SrcTag  string
	Symlink bool
	Format  string

	Force        bool
	Checksums    bool
	IgnoreErrors bool
}

// State carries per-invocation bookkeeping an action's exit code depends
// on.
type State struct {
	HasPartialFailures bool
}

// Orchestrator wires together the validated config, the shared locker,
// and backend construction for one process invocation.
type Orchestrator struct {
	cfg    *config.Config
	fsys   afero.Fs
	log    *slog.Logger
	locker lockmgr.Interface
	State  *State
}

// New builds an Orchestrator from a validated config.
func New(cfg *config.Config, fsys afero.Fs, log *slog.Logger, locker lockmgr.Interface) *Orchestrator {
	return &Orchestrator{cfg: cfg, fsys: fsys, log: log, locker: locker, State: &State{}}
}

func (o *Orchestrator) deps() backend.Deps {
	return backend.Deps{
		Fsys:       o.fsys,
		Log:        o.log,
		NewFetcher: fetch.New,
	}
}

func (o *Orchestrator) headDir(repoName string, r *config.Repo) string {
	return layout.Dir(o.cfg.DataDir, o.cfg.TagStyle, r.Local, config.DefaultTag)
}

func (o *Orchestrator) tagDir(repoName string, r *config.Repo, tag string) string {
	return layout.Dir(o.cfg.DataDir, o.cfg.TagStyle, r.Local, tag)
}

// forEachRepo expands opts.Repo (possibly "all" or a regex), and for
// each matched repo acquires its lock, builds its backend, invokes fn,
// and releases the lock -- even on error. Unless opts.IgnoreErrors is
// set, the first per-repo error aborts the fan-out (spec §4.8).
func (o *Orchestrator) forEachRepo(ctx context.Context, opts ActionOptions, fn func(ctx context.Context, name string, r *config.Repo, b backend.Backend) error) error {
	if opts.Repo == "" {
		return ErrRepoRequired
	}

	names, err := o.cfg.ReposMatching(opts.Repo, opts.Regex)
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := o.runOneRepo(ctx, name, opts, fn); err != nil {
			if opts.IgnoreErrors {
				o.log.Warn("repo failed, continuing", "repo", name, "error", err)
				o.State.HasPartialFailures = true

				continue
			}

			return fmt.Errorf("repo %q: %w", name, err)
		}
	}

	return nil
}

func (o *Orchestrator) runOneRepo(ctx context.Context, name string, opts ActionOptions, fn func(ctx context.Context, name string, r *config.Repo, b backend.Backend) error) error {
	repo := o.cfg.Repo[name]
	headDir := o.headDir(name, repo)

	lock, err := o.locker.Acquire(headDir, name)
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer func() {
		if relErr := o.locker.Release(lock); relErr != nil {
			o.log.Error("failed to release lock", "repo", name, "error", relErr)
		}
	}()

	b, err := backend.Build(string(repo.Type), o.deps())
	if err != nil {
		return err
	}

	return fn(ctx, name, repo, b)
}

func archOrConfigured(opts ActionOptions, repo *config.Repo) []string {
	if len(opts.Arch) > 0 {
		return opts.Arch
	}

	return repo.Arch
}

// Mirror implements the `mirror` action.
func (o *Orchestrator) Mirror(ctx context.Context, opts ActionOptions) error {
	return o.forEachRepo(ctx, opts, func(ctx context.Context, name string, r *config.Repo, b backend.Backend) error {
		return b.Mirror(ctx, backend.MirrorRequest{
			RepoName:        name,
			HeadDir:         o.headDir(name, r),
			Arch:            archOrConfigured(opts, r),
			URL:             r.URL,
			Proxy:           r.Proxy,
			CA:              r.CA,
			Cert:            r.Cert,
			Key:             r.Key,
			IncludeFilename: r.IncludeFilename,
			IncludePackage:  r.IncludePackage,
			ExcludeFilename: r.ExcludeFilename,
			ExcludePackage:  r.ExcludePackage,
			Checksums:       opts.Checksums,
			IgnoreErrors:    opts.IgnoreErrors,
			Force:           opts.Force,
		})
	})
}

// Clean implements the `clean` action.
func (o *Orchestrator) Clean(ctx context.Context, opts ActionOptions) error {
	return o.forEachRepo(ctx, opts, func(ctx context.Context, name string, r *config.Repo, b backend.Backend) error {
		return b.Clean(ctx, backend.CleanRequest{
			RepoName: name,
			HeadDir:  o.headDir(name, r),
			Arch:     archOrConfigured(opts, r),
			Force:    opts.Force,
		})
	})
}

// Init implements the `init` action.
func (o *Orchestrator) Init(ctx context.Context, opts ActionOptions) error {
	return o.forEachRepo(ctx, opts, func(ctx context.Context, name string, r *config.Repo, b backend.Backend) error {
		if r.Mirrored() {
			return fmt.Errorf("repo %q: init is not valid on a mirrored repo", name)
		}

		return b.Init(ctx, backend.InitRequest{
			RepoName: name,
			HeadDir:  o.headDir(name, r),
			Arch:     archOrConfigured(opts, r),
			Force:    opts.Force,
		})
	})
}

// AddFile implements the `add-file` action.
func (o *Orchestrator) AddFile(ctx context.Context, opts ActionOptions) error {
	if len(opts.Arch) != 1 {
		return ErrArchRequired
	}
	if len(opts.File) == 0 {
		return ErrFileRequired
	}

	return o.forEachRepo(ctx, opts, func(ctx context.Context, name string, r *config.Repo, b backend.Backend) error {
		if r.Mirrored() {
			return fmt.Errorf("repo %q: add-file is not valid on a mirrored repo", name)
		}

		return b.AddFile(ctx, backend.AddFileRequest{
			RepoName:       name,
			HeadDir:        o.headDir(name, r),
			ConfiguredArch: r.Arch,
			Arch:           opts.Arch[0],
			Files:          opts.File,
			Force:          opts.Force,
		})
	})
}

// DelFile implements the `del-file` action.
func (o *Orchestrator) DelFile(ctx context.Context, opts ActionOptions) error {
	if len(opts.Arch) != 1 {
		return ErrArchRequired
	}
	if len(opts.File) == 0 {
		return ErrFileRequired
	}

	return o.forEachRepo(ctx, opts, func(ctx context.Context, name string, r *config.Repo, b backend.Backend) error {
		if r.Mirrored() {
			return fmt.Errorf("repo %q: del-file is not valid on a mirrored repo", name)
		}

		return b.DelFile(ctx, backend.DelFileRequest{
			RepoName:       name,
			HeadDir:        o.headDir(name, r),
			ConfiguredArch: r.Arch,
			Arch:           opts.Arch[0],
			Files:          opts.File,
		})
	})
}

// Tag implements the `tag` action.
func (o *Orchestrator) Tag(ctx context.Context, opts ActionOptions) error {
	if opts.Tag == "" {
		return ErrTagRequired
	}

	srcTag := opts.SrcTag
	if srcTag == "" {
		srcTag = config.DefaultTag
	}

	return o.forEachRepo(ctx, opts, func(ctx context.Context, name string, r *config.Repo, b backend.Backend) error {
		var hardRe *regexp.Regexp

		if pattern := o.cfg.HardTagRegexFor(name); pattern != "" {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("invalid hard_tag_regex: %w", err)
			}
			hardRe = re
		}

		return b.Tag(ctx, backend.TagRequest{
			SrcDir:       o.tagDir(name, r, srcTag),
			DestDir:      o.tagDir(name, r, opts.Tag),
			SrcTag:       srcTag,
			DestTag:      opts.Tag,
			Symlink:      opts.Symlink,
			HardTagRegex: hardRe,
			Force:        opts.Force,
		})
	})
}

// Diff implements the `diff` action.
func (o *Orchestrator) Diff(ctx context.Context, opts ActionOptions, w io.Writer) error {
	if opts.Tag == "" {
		return ErrTagRequired
	}
	if len(opts.Arch) != 1 {
		return ErrArchRequired
	}

	srcTag := opts.SrcTag
	if srcTag == "" {
		srcTag = config.DefaultTag
	}

	return o.forEachRepo(ctx, opts, func(ctx context.Context, name string, r *config.Repo, b backend.Backend) error {
		result, err := b.Diff(ctx, backend.DiffRequest{
			Arch:    opts.Arch[0],
			SrcDir:  o.tagDir(name, r, srcTag),
			DestDir: o.tagDir(name, r, opts.Tag),
			SrcTag:  srcTag,
			DestTag: opts.Tag,
		})
		if err != nil {
			return err
		}

		return diffengine.Render(result, opts.Format, w)
	})
}
