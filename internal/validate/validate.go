// Package validate checks a downloaded file's size or cryptographic
// digest against what upstream metadata promised, per spec §4.5.
package validate

import (
	"crypto/md5"  //nolint:gosec // repo metadata may only offer md5
	"crypto/sha1" //nolint:gosec // repo metadata may only offer sha1
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"
)

var ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

// Check is either a size check or a digest check; exactly one of the two
// constructors below should be used to build one.
type Check struct {
	isSize bool
	size   int64

	algorithm string
	hexValue  string
}

// SizeCheck builds a Check that compares a file's byte size.
func SizeCheck(size int64) Check {
	return Check{isSize: true, size: size}
}

// DigestCheck builds a Check that compares a file's hex-encoded digest
// under the named algorithm (sha256, sha1, md5, ...).
func DigestCheck(algorithm, hexValue string) Check {
	return Check{algorithm: strings.ToLower(algorithm), hexValue: strings.ToLower(hexValue)}
}

// IsSize reports whether check is a size check (vs. a digest check).
func (c Check) IsSize() bool { return c.isSize }

// Validate reports whether the file at path satisfies check. A missing
// file, a size mismatch, or a digest mismatch all report false with a
// nil error; only an unknown digest algorithm or an I/O failure unrelated
// to the file's absence returns an error.
func Validate(fsys afero.Fs, path string, check Check) (bool, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat: %q (%w)", path, err)
	}

	if check.isSize {
		return info.Size() == check.size, nil
	}

	h, err := newHash(check.algorithm)
	if err != nil {
		return false, err
	}

	f, err := fsys.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open: %q (%w)", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return false, fmt.Errorf("failed during digest io: %q (%w)", path, err)
	}

	actual := hex.EncodeToString(h.Sum(nil))

	return actual == check.hexValue, nil
}

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "sha256":
		return sha256.New(), nil
	case "sha1":
		return sha1.New(), nil //nolint:gosec
	case "md5":
		return md5.New(), nil //nolint:gosec
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}
