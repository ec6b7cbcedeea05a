package apt

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/djzort/repositorio/internal/validate"
)

// Package is one stanza of a Debian "Packages" index: the fields needed
// to locate, size-check, and digest-check the pool file it describes.
type Package struct {
	Name     string
	Filename string
	Size     int64
	MD5      string
	SHA1     string
	SHA256   string
}

// Validator builds the appropriate validate.Check for p, preferring
// SHA256 when checksums is set and the index carried one.
func (p Package) Validator(checksums bool) validate.Check {
	if checksums {
		switch {
		case p.SHA256 != "":
			return validate.DigestCheck("sha256", p.SHA256)
		case p.SHA1 != "":
			return validate.DigestCheck("sha1", p.SHA1)
		case p.MD5 != "":
			return validate.DigestCheck("md5", p.MD5)
		}
	}

	return validate.SizeCheck(p.Size)
}

// ParsePackages decodes a deb822-format "Packages" index: blank-line
// separated stanzas of "Key: value" fields, continuation lines indented
// with a leading space (used by multi-line fields this parser ignores).
func ParsePackages(r io.Reader) ([]Package, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pkgs []Package
	cur := Package{}
	has := false

	flush := func() {
		if has && cur.Filename != "" {
			pkgs = append(pkgs, cur)
		}
		cur = Package{}
		has = false
	}

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			flush()

			continue
		}

		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			continue
		}

		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		val = strings.TrimSpace(val)
		has = true

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "package":
			cur.Name = val
		case "filename":
			cur.Filename = val
		case "size":
			size, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid Size field: %q: %w", val, err)
			}
			cur.Size = size
		case "md5sum":
			cur.MD5 = val
		case "sha1":
			cur.SHA1 = val
		case "sha256":
			cur.SHA256 = val
		}
	}

	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed scanning packages index: %w", err)
	}

	return pkgs, nil
}

// ReadLocalPackages reads and parses a (possibly gzip-compressed) local
// Packages index.
func ReadLocalPackages(fsys afero.Fs, path string) ([]Package, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open: %q (%w)", path, err)
	}
	defer f.Close()

	var r io.Reader = f

	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip: %q (%w)", path, err)
		}
		defer gz.Close()

		r = gz
	}

	return ParsePackages(r)
}
