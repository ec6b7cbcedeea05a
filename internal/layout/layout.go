// Package layout computes on-disk paths for a repo's tag directories
// under either the topdir or bottomdir tag_style, without touching the
// filesystem.
package layout

import "path/filepath"

const (
	TagStyleTop    = "topdir"
	TagStyleBottom = "bottomdir"
)

// Dir returns the directory for repo local under tag, given dataDir and
// tagStyle. With topdir: {dataDir}/{tag}/{local}; with bottomdir:
// {dataDir}/{local}/{tag}.
func Dir(dataDir, tagStyle, local, tag string) string {
	if tagStyle == TagStyleBottom {
		return filepath.Join(dataDir, local, tag)
	}

	return filepath.Join(dataDir, tag, local)
}

// ArchDir returns the architecture subdirectory under a repo's tag dir.
func ArchDir(dataDir, tagStyle, local, tag, arch string) string {
	return filepath.Join(Dir(dataDir, tagStyle, local, tag), arch)
}

// LockPath returns the path of the advisory lock file for repoName,
// rooted at repoDir (the repo's head-tag directory, per spec §6).
func LockPath(repoDir, repoName string) string {
	return filepath.Join(repoDir, repoName+".lock")
}
