package plain

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/djzort/repositorio/internal/backend"
	"github.com/djzort/repositorio/internal/fetch"
)

func newTestBackend(fsys afero.Fs) *Backend {
	return &Backend{
		fsys: fsys,
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		newFetcher: func(proxy, ca, cert, key string) (*fetch.Fetcher, error) {
			return fetch.New(proxy, ca, cert, key)
		},
	}
}

func TestAddFileDelFile_RoundTrip(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src/pkg-1.bin", []byte("payload"), 0o644))

	b := newTestBackend(fsys)

	err := b.AddFile(context.Background(), backend.AddFileRequest{
		HeadDir:        "/data/head",
		ConfiguredArch: []string{"noarch"},
		Arch:           "noarch",
		Files:          []string{"/src/pkg-1.bin"},
	})
	require.NoError(t, err)

	got, err := afero.ReadFile(fsys, "/data/head/noarch/pkg-1.bin")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)

	err = b.DelFile(context.Background(), backend.DelFileRequest{
		HeadDir:        "/data/head",
		ConfiguredArch: []string{"noarch"},
		Arch:           "noarch",
		Files:          []string{"pkg-1.bin"},
	})
	require.NoError(t, err)

	_, err = fsys.Stat("/data/head/noarch/pkg-1.bin")
	require.Error(t, err)
}

func TestAddFile_ArchNotConfigured_Error(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src/f.bin", []byte("x"), 0o644))

	b := newTestBackend(fsys)

	err := b.AddFile(context.Background(), backend.AddFileRequest{
		HeadDir:        "/data/head",
		ConfiguredArch: []string{"x86_64"},
		Arch:           "noarch",
		Files:          []string{"/src/f.bin"},
	})
	require.Error(t, err)
}

func TestDiff_SetSymmetricDifference(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/data/head/noarch/a.bin", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/data/head/noarch/shared.bin", []byte("s"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/data/v1/noarch/b.bin", []byte("b"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/data/v1/noarch/shared.bin", []byte("s"), 0o644))

	b := newTestBackend(fsys)

	result, err := b.Diff(context.Background(), backend.DiffRequest{
		Arch: "noarch", SrcDir: "/data/head", DestDir: "/data/v1", SrcTag: "head", DestTag: "v1",
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a.bin"}, result.OnlyInSrc)
	require.ElementsMatch(t, []string{"b.bin"}, result.OnlyInDest)
}

func TestClean_IsNoOp(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/data/head/noarch/a.bin", []byte("a"), 0o644))

	b := newTestBackend(fsys)

	err := b.Clean(context.Background(), backend.CleanRequest{HeadDir: "/data/head", Arch: []string{"noarch"}})
	require.NoError(t, err)

	_, err = fsys.Stat("/data/head/noarch/a.bin")
	require.NoError(t, err)
}
