package yum

import (
	"path/filepath"
	"regexp"
)

// filter selects which packages get_packages should plan for download,
// per spec §4.7 "Filter semantics". At most one of the four forms is
// active (enforced upstream by config.Validate).
type filter struct {
	includeFilename *regexp.Regexp
	includePackage  *regexp.Regexp
	excludeFilename *regexp.Regexp
	excludePackage  *regexp.Regexp
}

func newFilter(includeFilename, includePackage, excludeFilename, excludePackage string) (*filter, error) {
	f := &filter{}

	var err error
	if includeFilename != "" {
		if f.includeFilename, err = regexp.Compile(includeFilename); err != nil {
			return nil, err
		}
	}
	if includePackage != "" {
		if f.includePackage, err = regexp.Compile(includePackage); err != nil {
			return nil, err
		}
	}
	if excludeFilename != "" {
		if f.excludeFilename, err = regexp.Compile(excludeFilename); err != nil {
			return nil, err
		}
	}
	if excludePackage != "" {
		if f.excludePackage, err = regexp.Compile(excludePackage); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// Keep reports whether p survives this filter.
func (f *filter) Keep(p Package) bool {
	basename := filepath.Base(p.Location.Href)

	switch {
	case f.includeFilename != nil:
		return f.includeFilename.MatchString(basename)
	case f.includePackage != nil:
		return f.includePackage.MatchString(p.Name)
	case f.excludeFilename != nil:
		return !f.excludeFilename.MatchString(basename)
	case f.excludePackage != nil:
		return !f.excludePackage.MatchString(p.Name)
	default:
		return true
	}
}
