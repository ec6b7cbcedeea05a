package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDir_TopStyle(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/data/head/base", Dir("/data", TagStyleTop, "base", "head"))
}

func TestDir_BottomStyle(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/data/base/head", Dir("/data", TagStyleBottom, "base", "head"))
}

func TestDir_DefaultsToTop(t *testing.T) {
	t.Parallel()

	require.Equal(t, Dir("/data", TagStyleTop, "base", "head"), Dir("/data", "", "base", "head"))
}

func TestArchDir(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/data/head/base/x86_64", ArchDir("/data", TagStyleTop, "base", "head", "x86_64"))
}

func TestLockPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/data/head/base.lock", LockPath("/data/head", "base"))
}
