// Package config loads and validates the repository catalog that drives
// every action of repositorio: where repos live on disk, what upstream
// URLs to mirror from, and the per-repo options that gate mutation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var (
	ErrConfigMalformed  = errors.New("config yaml is malformed")
	ErrConfigMissing    = errors.New("config yaml file does not exist")
	ErrDataDirMissing   = errors.New("data_dir does not exist or is not a directory")
	ErrDataDirNotAbs    = errors.New("data_dir could not be made absolute")
	ErrTagStyleInvalid  = errors.New("tag_style must be 'topdir' or 'bottomdir'")
	ErrRepoTypeMissing  = errors.New("repo type is required")
	ErrRepoTypeInvalid  = errors.New("repo type must be Yum, Apt or Plain")
	ErrRepoLocalMissing = errors.New("repo local is required")
	ErrRepoArchMissing  = errors.New("repo arch is required")
	ErrSSLIncomplete    = errors.New("ca, cert and key must all be set or all be absent")
	ErrSSLFileMissing   = errors.New("ca, cert or key file does not exist")
	ErrSSLWithoutURL    = errors.New("ca, cert and key are only valid when url is set")
	ErrTooManyFilters   = errors.New("at most one of include_filename, include_package, exclude_filename, exclude_package may be set")
	ErrRepoNotFound     = errors.New("no repo matches selector")
	ErrBadRegex         = errors.New("selector is not a valid regular expression")

	tagStyleRe = regexp.MustCompile(`^(top|bottom)dir$`)
)

// RepoType identifies which backend plugin handles a repo.
type RepoType string

const (
	TypeYum   RepoType = "Yum"
	TypeApt   RepoType = "Apt"
	TypePlain RepoType = "Plain"
)

const (
	TagStyleTop    = "topdir"
	TagStyleBottom = "bottomdir"

	DefaultTag = "head"
)

// Repo is one named repository entry from the catalog.
type Repo struct {
	Type RepoType `yaml:"type"`
	Local string `yaml:"local"`
	Arch  yamlStrList `yaml:"arch"`
	URL   yamlStrList `yaml:"url"`

	CA   string `yaml:"ca"`
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`

	IncludeFilename string `yaml:"include_filename"`
	IncludePackage  string `yaml:"include_package"`
	ExcludeFilename string `yaml:"exclude_filename"`
	ExcludePackage  string `yaml:"exclude_package"`

	Proxy        string `yaml:"proxy"`
	HardTagRegex string `yaml:"hard_tag_regex"`
}

// Mirrored reports whether the repo has an upstream (vs. being local-only).
func (r *Repo) Mirrored() bool {
	return len(r.URL) > 0
}

// Config is the process-wide, read-mostly catalog.
type Config struct {
	DataDir      string           `yaml:"data_dir"`
	TagStyle     string           `yaml:"tag_style"`
	Proxy        string           `yaml:"proxy"`
	HardTagRegex string           `yaml:"hard_tag_regex"`
	Repo         map[string]*Repo `yaml:"repo"`

	// RepoNames is populated by Validate: every configured repo name,
	// sorted, used by the orchestrator for "all" and regex fan-out.
	RepoNames []string `yaml:"-"`
}

// yamlStrList accepts either a scalar or a sequence in YAML, always
// decoding to a slice (the scalar-promotion rule of spec §4.1).
type yamlStrList []string

func (l *yamlStrList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = []string{s}

		return nil
	case yaml.SequenceNode:
		var s []string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = s

		return nil
	default:
		return fmt.Errorf("%w: expected scalar or sequence", ErrConfigMalformed)
	}
}

// Load reads and parses a YAML catalog from fsys, without validating it.
func Load(fsys afero.Fs, path string) (*Config, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigMissing, err)
	}
	defer f.Close()

	var cfg Config

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigMalformed, err)
	}

	return &cfg, nil
}

// Validate normalizes cfg into canonical form and checks every invariant
// from spec §4.1, returning a new validated Config. cfg is not mutated.
func Validate(fsys afero.Fs, cfg *Config) (*Config, error) {
	out := *cfg
	out.Repo = make(map[string]*Repo, len(cfg.Repo))

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	dataDir := out.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(cwd, dataDir)
	}
	dataDir = filepath.Clean(dataDir)

	info, err := fsys.Stat(dataDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrDataDirMissing, dataDir)
	}
	out.DataDir = dataDir

	if out.TagStyle == "" {
		out.TagStyle = TagStyleTop
	}
	if !tagStyleRe.MatchString(out.TagStyle) {
		return nil, fmt.Errorf("%w: %q", ErrTagStyleInvalid, out.TagStyle)
	}

	names := make([]string, 0, len(cfg.Repo))
	for name, repo := range cfg.Repo {
		r := *repo
		if err := validateRepo(fsys, &r, out.Proxy); err != nil {
			return nil, fmt.Errorf("repo %q: %w", name, err)
		}
		out.Repo[name] = &r
		names = append(names, name)
	}
	sort.Strings(names)
	out.RepoNames = names

	return &out, nil
}

func validateRepo(fsys afero.Fs, r *Repo, globalProxy string) error {
	if r.Type == "" {
		return ErrRepoTypeMissing
	}
	switch r.Type {
	case TypeYum, TypeApt, TypePlain:
	default:
		return fmt.Errorf("%w: %q", ErrRepoTypeInvalid, r.Type)
	}

	if r.Local == "" {
		return ErrRepoLocalMissing
	}

	if len(r.Arch) == 0 {
		return ErrRepoArchMissing
	}

	if len(r.URL) > 0 {
		if err := validateSSLTrio(fsys, r); err != nil {
			return err
		}
	} else if r.CA != "" || r.Cert != "" || r.Key != "" {
		return ErrSSLWithoutURL
	}

	filters := 0
	for _, f := range []string{r.IncludeFilename, r.IncludePackage, r.ExcludeFilename, r.ExcludePackage} {
		if f != "" {
			filters++
		}
	}
	if filters > 1 {
		return ErrTooManyFilters
	}

	if r.Proxy == "" {
		r.Proxy = globalProxy
	}

	return nil
}

func validateSSLTrio(fsys afero.Fs, r *Repo) error {
	set := 0
	for _, p := range []string{r.CA, r.Cert, r.Key} {
		if p != "" {
			set++
		}
	}
	if set == 0 {
		return nil
	}
	if set != 3 {
		return ErrSSLIncomplete
	}

	for _, p := range []string{r.CA, r.Cert, r.Key} {
		info, err := fsys.Stat(p)
		if err != nil || info.IsDir() {
			return fmt.Errorf("%w: %q", ErrSSLFileMissing, p)
		}
	}

	return nil
}

// HardTagRegexFor resolves the effective hard_tag_regex for repo: the
// repo's own override if set, otherwise the top-level default. Per §9,
// the repo-level field is the repo's own regex, not a cross-reference.
func (c *Config) HardTagRegexFor(repoName string) string {
	if r, ok := c.Repo[repoName]; ok && r.HardTagRegex != "" {
		return r.HardTagRegex
	}

	return c.HardTagRegex
}

// ReposMatching expands a repo selector into concrete, sorted repo names.
// selector == "all" returns every configured repo; if regex is true,
// selector is compiled and matched against every configured repo name;
// otherwise selector must itself name a single configured repo.
func (c *Config) ReposMatching(selector string, regex bool) ([]string, error) {
	if selector == "all" {
		return append([]string(nil), c.RepoNames...), nil
	}

	if regex {
		re, err := regexp.Compile(selector)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrBadRegex, selector, err)
		}

		var matched []string
		for _, name := range c.RepoNames {
			if re.MatchString(name) {
				matched = append(matched, name)
			}
		}
		if len(matched) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrRepoNotFound, selector)
		}

		return matched, nil
	}

	if _, ok := c.Repo[selector]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrRepoNotFound, selector)
	}

	return []string{selector}, nil
}

// TrimSpaceList returns a trimmed copy of a slice of user-supplied strings, useful
// for flag/YAML interop that otherwise duplicates across the catalog.
func TrimSpaceList(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}

	return out
}
