// Package backend defines the uniform operation surface that the Yum,
// Apt and Plain plugins implement, and the explicit constructor registry
// the orchestrator dispatches through (spec §4.6, §9 "Plugin dispatch").
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/spf13/afero"

	"github.com/djzort/repositorio/internal/fetch"
)

// Deps bundles the shared, process-wide collaborators every backend
// needs; constructed once by the orchestrator and passed to each
// registered backend constructor.
type Deps struct {
	Fsys   afero.Fs
	Log    *slog.Logger
	NewFetcher func(proxy, ca, cert, key string) (*fetch.Fetcher, error)
}

// MirrorRequest describes a mirror() call for one repo/arch.
type MirrorRequest struct {
	RepoName string
	HeadDir  string
	Arch     []string
	URL      []string
	Proxy    string
	CA, Cert, Key string

	IncludeFilename, IncludePackage string
	ExcludeFilename, ExcludePackage string

	Checksums     bool
	IgnoreErrors  bool
	Force         bool
}

// CleanRequest describes a clean() call.
type CleanRequest struct {
	RepoName string
	HeadDir  string
	Arch     []string
	Force    bool
}

// InitRequest describes an init() call.
type InitRequest struct {
	RepoName string
	HeadDir  string
	Arch     []string // the orchestrator fills in the configured arches when none is given
	Force    bool
}

// AddFileRequest describes an add_file() call.
type AddFileRequest struct {
	RepoName    string
	HeadDir     string
	ConfiguredArch []string
	Arch        string
	Files       []string
	Force       bool
}

// DelFileRequest describes a del_file() call.
type DelFileRequest struct {
	RepoName    string
	HeadDir     string
	ConfiguredArch []string
	Arch        string
	Files       []string
}

// TagRequest describes a tag() call.
type TagRequest struct {
	SrcDir, DestDir       string
	SrcTag, DestTag       string
	Symlink               bool
	HardTagRegex          *regexp.Regexp
	Force                 bool
}

// DiffRequest describes a diff() call.
type DiffRequest struct {
	Arch                  string
	SrcDir, DestDir       string
	SrcTag, DestTag       string
}

// DiffResult is the set-symmetric-difference result of a Diff call,
// reported as two columns of basenames keyed by tag name.
type DiffResult struct {
	SrcTag     string
	DestTag    string
	OnlyInSrc  []string
	OnlyInDest []string
}

// Backend is the uniform operation surface every plugin exposes.
type Backend interface {
	Type() string
	Mirror(ctx context.Context, req MirrorRequest) error
	Clean(ctx context.Context, req CleanRequest) error
	Init(ctx context.Context, req InitRequest) error
	AddFile(ctx context.Context, req AddFileRequest) error
	DelFile(ctx context.Context, req DelFileRequest) error
	Tag(ctx context.Context, req TagRequest) error
	Diff(ctx context.Context, req DiffRequest) (DiffResult, error)
	MakeDir(path string) error
}

// Constructor builds a Backend from shared Deps.
type Constructor func(Deps) Backend

var registry = map[string]Constructor{}

// ErrNotFound is returned by Lookup when no backend is registered for a
// requested type name (spec §4.6/§7 "Plugin-not-found").
var ErrNotFound = fmt.Errorf("no backend registered for type")

// Register adds a backend constructor under typ. Backends call this from
// an init() function, making the set of available backends auditable at
// build time instead of discovered via reflection (spec §9).
func Register(typ string, ctor Constructor) {
	registry[typ] = ctor
}

// Lookup returns the constructor registered for typ, if any.
func Lookup(typ string) (Constructor, bool) {
	ctor, ok := registry[typ]

	return ctor, ok
}

// Build constructs and returns the backend registered for typ.
func Build(typ string, deps Deps) (Backend, error) {
	ctor, ok := Lookup(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, typ)
	}

	return ctor(deps), nil
}
