// Package yum implements the Yum/RPM backend: repomd.xml + primary.xml(.gz)
// parsing, package planning, and the createrepo subprocess contract.
package yum

import (
	"compress/gzip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/afero"

	"github.com/djzort/repositorio/internal/validate"
)

var ErrMissingValidator = errors.New("metadata descriptor has neither size nor checksum")

// RepoMD is the parsed root-of-trust metadata file, repodata/repomd.xml.
type RepoMD struct {
	XMLName xml.Name `xml:"repomd"`
	Data    []MDData `xml:"data"`
}

// MDData is one child metadata descriptor listed in repomd.xml.
type MDData struct {
	Type     string `xml:"type,attr"`
	Checksum MDChecksum `xml:"checksum"`
	Size     *int64   `xml:"size"`
	Location MDLocation `xml:"location"`
}

// MDChecksum is a child descriptor's checksum element.
type MDChecksum struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// MDLocation is a child descriptor's repo-relative location.
type MDLocation struct {
	Href string `xml:"href,attr"`
}

// Validator builds the validate.Check this descriptor should be checked
// against: the size record when checksums is off and a size is available
// (cheap), otherwise the checksum record, falling back to the size record
// when there is no checksum (spec §4.7 step 3). Absence of both is a hard
// error.
func (d MDData) Validator(checksums bool) (validate.Check, error) {
	if !checksums && d.Size != nil {
		return validate.SizeCheck(*d.Size), nil
	}
	if d.Checksum.Value != "" {
		return validate.DigestCheck(d.Checksum.Type, d.Checksum.Value), nil
	}
	if d.Size != nil {
		return validate.SizeCheck(*d.Size), nil
	}

	return validate.Check{}, fmt.Errorf("%w: type=%q", ErrMissingValidator, d.Type)
}

// ParseRepoMD decodes a repomd.xml document.
func ParseRepoMD(r io.Reader) (*RepoMD, error) {
	var md RepoMD
	if err := xml.NewDecoder(r).Decode(&md); err != nil {
		return nil, fmt.Errorf("failed to parse repomd.xml: %w", err)
	}

	return &md, nil
}

// Find returns the child descriptor of the given type (e.g. "primary"),
// if present.
func (md *RepoMD) Find(typ string) (MDData, bool) {
	for _, d := range md.Data {
		if d.Type == typ {
			return d, true
		}
	}

	return MDData{}, false
}

// Primary is the parsed primary.xml package listing.
type Primary struct {
	XMLName  xml.Name  `xml:"metadata"`
	Packages []Package `xml:"package"`
}

// Package is one package record parsed from primary.xml.
type Package struct {
	Name     string         `xml:"name"`
	Location PackageLocation `xml:"location"`
	Size     PackageSize    `xml:"size"`
	Checksum PackageChecksum `xml:"checksum"`
}

// PackageLocation is a package's repo-relative download path.
type PackageLocation struct {
	Href string `xml:"href,attr"`
}

// PackageSize carries the package's on-disk byte size.
type PackageSize struct {
	Package int64 `xml:"package,attr"`
}

// PackageChecksum is a package's checksum record.
type PackageChecksum struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// Validator builds the validate.Check for this package: the size record
// when checksums is off, otherwise the checksum record (spec §4.5, §4.7).
// Unlike MDData.Validator there is no fallback between the two.
func (p Package) Validator(checksums bool) validate.Check {
	if !checksums {
		return validate.SizeCheck(p.Size.Package)
	}

	return validate.DigestCheck(p.Checksum.Type, p.Checksum.Value)
}

// ParsePrimary decodes a gzip-compressed primary.xml document and sorts
// the result by package name (spec §4.7 step 4).
func ParsePrimary(r io.Reader) ([]Package, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip: %w", err)
	}
	defer gz.Close()

	var prim Primary
	if err := xml.NewDecoder(gz).Decode(&prim); err != nil {
		return nil, fmt.Errorf("failed to parse primary.xml: %w", err)
	}

	sort.Slice(prim.Packages, func(i, j int) bool {
		return prim.Packages[i].Name < prim.Packages[j].Name
	})

	return prim.Packages, nil
}

// ReadLocalRepoMD reads and parses repomd.xml from disk, without network
// I/O, for use by clean()/diff() (spec §4.7 "read_metadata").
func ReadLocalRepoMD(fsys afero.Fs, path string) (*RepoMD, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open: %q (%w)", path, err)
	}
	defer f.Close()

	return ParseRepoMD(f)
}

// ReadLocalPrimary reads and parses a local primary.xml.gz from disk.
func ReadLocalPrimary(fsys afero.Fs, path string) ([]Package, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open: %q (%w)", path, err)
	}
	defer f.Close()

	return ParsePrimary(f)
}
