package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/djzort/repositorio/internal/backend"
	"github.com/djzort/repositorio/internal/config"
	"github.com/djzort/repositorio/internal/lockmgr"
)

const fakeTypeName = "Fake"

// fakeBackend records every call it receives, for assertions, and lets
// tests inject a failure for one named repo.
type fakeBackend struct {
	mirrored  []string
	failRepos map[string]bool
	lastCtx   context.Context
	initArch  []string
}

func init() {
	backend.Register(fakeTypeName, func(_ backend.Deps) backend.Backend {
		return &fakeBackend{failRepos: map[string]bool{}}
	})
}

func (f *fakeBackend) Type() string { return fakeTypeName }

func (f *fakeBackend) Mirror(ctx context.Context, req backend.MirrorRequest) error {
	f.lastCtx = ctx

	if f.failRepos[req.RepoName] {
		return errors.New("mirror failed for " + req.RepoName)
	}
	f.mirrored = append(f.mirrored, req.RepoName)

	return nil
}
func (f *fakeBackend) Clean(context.Context, backend.CleanRequest) error { return nil }
func (f *fakeBackend) Init(_ context.Context, req backend.InitRequest) error {
	f.initArch = req.Arch

	return nil
}
func (f *fakeBackend) AddFile(context.Context, backend.AddFileRequest) error  { return nil }
func (f *fakeBackend) DelFile(context.Context, backend.DelFileRequest) error  { return nil }
func (f *fakeBackend) Tag(context.Context, backend.TagRequest) error          { return nil }
func (f *fakeBackend) Diff(context.Context, backend.DiffRequest) (backend.DiffResult, error) {
	return backend.DiffResult{}, nil
}
func (f *fakeBackend) MakeDir(string) error { return nil }

func newTestOrchestrator(t *testing.T, repoNames ...string) *Orchestrator {
	t.Helper()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/data", 0o755))

	repos := map[string]*config.Repo{}
	for _, name := range repoNames {
		repos[name] = &config.Repo{Type: fakeTypeName, Local: name, Arch: []string{"x86_64"}}
		require.NoError(t, fsys.MkdirAll("/data/head/"+name, 0o755))
	}

	cfg := &config.Config{DataDir: "/data", TagStyle: config.TagStyleTop, Repo: repos, RepoNames: repoNames}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(cfg, fsys, log, &lockmgr.NullLocker{})
}

func TestMirror_SingleRepo_Success(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, "base")

	err := o.Mirror(context.Background(), ActionOptions{Repo: "base"})
	require.NoError(t, err)
	require.False(t, o.State.HasPartialFailures)
}

func TestMirror_NoRepoSelector_Error(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, "base")

	err := o.Mirror(context.Background(), ActionOptions{})
	require.ErrorIs(t, err, ErrRepoRequired)
}

// Not parallel: mutates the shared backend registry.
func TestMirror_All_FailsFast_WithoutIgnoreErrors(t *testing.T) {
	o := newTestOrchestrator(t, "a", "b")

	ctor, _ := backend.Lookup(fakeTypeName)
	fb := ctor(backend.Deps{}).(*fakeBackend)
	fb.failRepos["a"] = true
	backend.Register(fakeTypeName, func(backend.Deps) backend.Backend { return fb })

	err := o.Mirror(context.Background(), ActionOptions{Repo: "all"})
	require.Error(t, err)
	require.False(t, o.State.HasPartialFailures)
}

// Not parallel: mutates the shared backend registry.
func TestMirror_All_IgnoreErrors_SetsPartialFailure(t *testing.T) {
	o := newTestOrchestrator(t, "a", "b")

	fb := &fakeBackend{failRepos: map[string]bool{"a": true}}
	backend.Register(fakeTypeName, func(backend.Deps) backend.Backend { return fb })

	err := o.Mirror(context.Background(), ActionOptions{Repo: "all", IgnoreErrors: true})
	require.NoError(t, err)
	require.True(t, o.State.HasPartialFailures)
	require.Contains(t, fb.mirrored, "b")
}

// Not parallel: mutates the shared backend registry.
func TestMirror_PropagatesCallerContext(t *testing.T) {
	o := newTestOrchestrator(t, "base")

	fb := &fakeBackend{failRepos: map[string]bool{}}
	backend.Register(fakeTypeName, func(backend.Deps) backend.Backend { return fb })

	type ctxKey struct{}

	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")

	err := o.Mirror(ctx, ActionOptions{Repo: "base"})
	require.NoError(t, err)
	require.Equal(t, "marker", fb.lastCtx.Value(ctxKey{}))
}

// Not parallel: mutates the shared backend registry.
func TestMirror_CancelledContext_ReachesBackend(t *testing.T) {
	o := newTestOrchestrator(t, "base")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fb := &fakeBackend{failRepos: map[string]bool{}}
	backend.Register(fakeTypeName, func(backend.Deps) backend.Backend { return fb })

	err := o.Mirror(ctx, ActionOptions{Repo: "base"})
	require.NoError(t, err)
	require.ErrorIs(t, fb.lastCtx.Err(), context.Canceled)
}

// Not parallel: mutates the shared backend registry.
func TestInit_NoArchFlag_DefaultsToConfiguredArch(t *testing.T) {
	o := newTestOrchestrator(t, "base")

	fb := &fakeBackend{failRepos: map[string]bool{}}
	backend.Register(fakeTypeName, func(backend.Deps) backend.Backend { return fb })

	err := o.Init(context.Background(), ActionOptions{Repo: "base"})
	require.NoError(t, err)
	require.Equal(t, []string{"x86_64"}, fb.initArch)
}

func TestTag_RequiresTag(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, "base")

	err := o.Tag(context.Background(), ActionOptions{Repo: "base"})
	require.ErrorIs(t, err, ErrTagRequired)
}

func TestList_NoRepoSelector_ListsRepos(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, "base")

	result, err := o.List(context.Background(), ActionOptions{})
	require.NoError(t, err)
	require.Len(t, result.Repos, 1)
	require.Equal(t, "base", result.Repos[0].Name)
}
