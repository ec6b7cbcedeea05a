package apt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
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

const testPackages = `Package: hello
Filename: pool/h/hello_1.0_amd64.deb
Size: 7

`

func newIndexServer(t *testing.T, pkgBody string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/noarch/Packages":
			_, _ = w.Write([]byte(testPackages))
		case "/noarch/pool/h/hello_1.0_amd64.deb":
			_, _ = w.Write([]byte(pkgBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestMirror_DownloadsIndexAndPackages(t *testing.T) {
	t.Parallel()

	srv := newIndexServer(t, "content")
	defer srv.Close()

	fsys := afero.NewMemMapFs()
	b := newTestBackend(fsys)

	err := b.Mirror(context.Background(), backend.MirrorRequest{
		HeadDir: "/data/head",
		Arch:    []string{"noarch"},
		URL:     []string{srv.URL + "/%ARCH%"},
	})
	require.NoError(t, err)

	idx, err := afero.ReadFile(fsys, "/data/head/noarch/Packages")
	require.NoError(t, err)
	require.Equal(t, testPackages, string(idx))

	pkg, err := afero.ReadFile(fsys, "/data/head/noarch/pool/h/hello_1.0_amd64.deb")
	require.NoError(t, err)
	require.Equal(t, "content", string(pkg))
}

func TestMirror_FailoverToSecondURL(t *testing.T) {
	t.Parallel()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	good := newIndexServer(t, "content")
	defer good.Close()

	fsys := afero.NewMemMapFs()
	b := newTestBackend(fsys)

	err := b.Mirror(context.Background(), backend.MirrorRequest{
		HeadDir: "/data/head",
		Arch:    []string{"noarch"},
		URL:     []string{bad.URL + "/%ARCH%", good.URL + "/%ARCH%"},
	})
	require.NoError(t, err)

	_, err = fsys.Stat("/data/head/noarch/Packages")
	require.NoError(t, err)
}

func TestMirror_AllURLsFail_Error(t *testing.T) {
	t.Parallel()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	fsys := afero.NewMemMapFs()
	b := newTestBackend(fsys)

	err := b.Mirror(context.Background(), backend.MirrorRequest{
		HeadDir: "/data/head",
		Arch:    []string{"noarch"},
		URL:     []string{bad.URL + "/%ARCH%"},
	})
	require.ErrorIs(t, err, ErrAllURLsFailed)
}

func TestClean_RemovesUnreferencedPoolFiles(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/data/head/noarch/Packages", []byte(testPackages), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/data/head/noarch/pool/h/hello_1.0_amd64.deb", []byte("content"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/data/head/noarch/pool/o/orphan_1.0_amd64.deb", []byte("stale"), 0o644))

	b := newTestBackend(fsys)

	err := b.Clean(context.Background(), backend.CleanRequest{HeadDir: "/data/head", Arch: []string{"noarch"}})
	require.NoError(t, err)

	_, err = fsys.Stat("/data/head/noarch/pool/h/hello_1.0_amd64.deb")
	require.NoError(t, err)

	_, err = fsys.Stat("/data/head/noarch/pool/o/orphan_1.0_amd64.deb")
	require.Error(t, err)
}

func TestAddFile_DelFile_RoundTrip(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src/extra_1.0_amd64.deb", []byte("x"), 0o644))

	b := newTestBackend(fsys)

	err := b.AddFile(context.Background(), backend.AddFileRequest{
		ConfiguredArch: []string{"noarch"},
		HeadDir:        "/data/head",
		Arch:           "noarch",
		Files:          []string{"/src/extra_1.0_amd64.deb"},
	})
	require.NoError(t, err)

	_, err = fsys.Stat("/data/head/noarch/extra_1.0_amd64.deb")
	require.NoError(t, err)

	err = b.DelFile(context.Background(), backend.DelFileRequest{
		ConfiguredArch: []string{"noarch"},
		HeadDir:        "/data/head",
		Arch:           "noarch",
		Files:          []string{"extra_1.0_amd64.deb"},
	})
	require.NoError(t, err)

	_, err = fsys.Stat("/data/head/noarch/extra_1.0_amd64.deb")
	require.Error(t, err)
}

func TestDiff_ComparesDebBasenames(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/data/head/noarch/Packages", []byte(testPackages), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/data/v1/noarch/Packages", []byte(""), 0o644))

	b := newTestBackend(fsys)

	result, err := b.Diff(context.Background(), backend.DiffRequest{
		Arch: "noarch", SrcDir: "/data/head", DestDir: "/data/v1", SrcTag: "head", DestTag: "v1",
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"hello_1.0_amd64.deb"}, result.OnlyInSrc)
	require.Empty(t, result.OnlyInDest)
}

func TestJoinURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, fmt.Sprintf("%s/%s", "http://x", "y"), joinURL("http://x", "y"))
	require.Equal(t, "http://x/y", joinURL("http://x/", "y"))
}
