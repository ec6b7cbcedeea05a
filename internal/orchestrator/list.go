package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/djzort/repositorio/internal/config"
)

// RepoInfo describes one catalog entry for the repo-listing form of the
// `list` action.
type RepoInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Mirrored bool   `json:"mirrored"`
}

// TagInfo describes one on-disk tag for a single repo's tag listing.
type TagInfo struct {
	Tag     string   `json:"tag"`
	SoftTag []string `json:"soft tag"`
}

// ListResult is either a repo listing (Repos populated, Repo empty) or a
// tag listing for one named repo (spec §6 "List output formats").
type ListResult struct {
	Repos []RepoInfo `json:"repos,omitempty"`
	Repo  string     `json:"repo,omitempty"`
	Tags  []TagInfo  `json:"tags,omitempty"`
}

// List implements the `list` action: without a repo selector it
// enumerates every configured repo; with one, it switches to listing
// that repo's on-disk tags.
func (o *Orchestrator) List(_ context.Context, opts ActionOptions) (ListResult, error) {
	if opts.Repo == "" {
		return o.listRepos(), nil
	}

	return o.listTags(opts.Repo)
}

func (o *Orchestrator) listRepos() ListResult {
	infos := make([]RepoInfo, 0, len(o.cfg.RepoNames))
	for _, name := range o.cfg.RepoNames {
		r := o.cfg.Repo[name]
		infos = append(infos, RepoInfo{Name: name, Type: string(r.Type), Mirrored: r.Mirrored()})
	}

	return ListResult{Repos: infos}
}

func (o *Orchestrator) listTags(repoName string) (ListResult, error) {
	r, ok := o.cfg.Repo[repoName]
	if !ok {
		return ListResult{}, ErrRepoRequired
	}

	tagNames, err := o.discoverTagNames(r)
	if err != nil {
		return ListResult{}, err
	}

	tags := make([]TagInfo, 0, len(tagNames))
	for _, tag := range tagNames {
		tags = append(tags, TagInfo{
			Tag:     tag,
			SoftTag: o.softLinksTo(r, tagNames, tag),
		})
	}

	return ListResult{Repo: repoName, Tags: tags}, nil
}

// discoverTagNames enumerates every tag directory that exists on disk
// for repo r, regardless of tag_style layout.
func (o *Orchestrator) discoverTagNames(r *config.Repo) ([]string, error) {
	var names []string

	if o.cfg.TagStyle == config.TagStyleBottom {
		entries, err := afero.ReadDir(o.fsys, filepath.Join(o.cfg.DataDir, r.Local))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}

			return nil, err
		}
		for _, e := range entries {
			names = append(names, e.Name())
		}

		sort.Strings(names)

		return names, nil
	}

	entries, err := afero.ReadDir(o.fsys, o.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	for _, e := range entries {
		if !e.IsDir() && e.Mode()&os.ModeSymlink == 0 {
			continue
		}
		if _, err := o.fsys.Stat(filepath.Join(o.cfg.DataDir, e.Name(), r.Local)); err == nil {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}

// softLinksTo returns every other tag name whose on-disk entry is a
// symlink resolving to tag's directory (i.e. every soft tag pointing at
// it), skipping the lookup entirely on filesystems without Lstat.
func (o *Orchestrator) softLinksTo(r *config.Repo, allTags []string, tag string) []string {
	lstater, ok := o.fsys.(afero.Lstater)
	if !ok {
		return nil
	}

	target := o.tagDir("", r, tag)

	var soft []string

	for _, other := range allTags {
		if other == tag {
			continue
		}

		otherDir := o.tagDir("", r, other)

		info, isLstat, err := lstater.LstatIfPossible(otherDir)
		if err != nil || !isLstat || info.Mode()&os.ModeSymlink == 0 {
			continue
		}

		symlinker, ok := lstater.(afero.Symlinker)
		if !ok {
			continue
		}

		dest, err := symlinker.ReadlinkIfPossible(otherDir)
		if err == nil && dest == target {
			soft = append(soft, other)
		}
	}

	sort.Strings(soft)

	return soft
}
