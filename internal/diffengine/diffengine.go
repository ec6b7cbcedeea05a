// Package diffengine renders a backend.DiffResult as a plain table, CSV,
// or JSON document, per spec §4.10/§6.
package diffengine

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/djzort/repositorio/internal/backend"
)

var ErrUnknownFormat = errors.New("unknown diff output format")

const (
	FormatDefault = "default"
	FormatCSV     = "csv"
	FormatJSON    = "json"
)

type jsonDiff struct {
	SrcTag     string   `json:"src_tag"`
	DestTag    string   `json:"dest_tag"`
	OnlyInSrc  []string `json:"only_in_src"`
	OnlyInDest []string `json:"only_in_dest"`
}

// Render writes result to w in the requested format. Basenames are
// reported in sorted order within each column.
func Render(result backend.DiffResult, format string, w io.Writer) error {
	src := sortedCopy(result.OnlyInSrc)
	dest := sortedCopy(result.OnlyInDest)

	switch format {
	case "", FormatDefault:
		return renderDefault(result.SrcTag, result.DestTag, src, dest, w)
	case FormatCSV:
		return renderCSV(result.SrcTag, result.DestTag, src, dest, w)
	case FormatJSON:
		enc := json.NewEncoder(w)

		return enc.Encode(jsonDiff{
			SrcTag:     result.SrcTag,
			DestTag:    result.DestTag,
			OnlyInSrc:  src,
			OnlyInDest: dest,
		})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func renderDefault(srcTag, destTag string, src, dest []string, w io.Writer) error {
	fmt.Fprintf(w, "%s|%s\n", srcTag, destTag)

	for i := 0; i < maxLen(src, dest); i++ {
		fmt.Fprintf(w, "%s|%s\n", at(src, i), at(dest, i))
	}

	return nil
}

func renderCSV(srcTag, destTag string, src, dest []string, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{srcTag, destTag}); err != nil {
		return err
	}

	for i := 0; i < maxLen(src, dest); i++ {
		if err := cw.Write([]string{at(src, i), at(dest, i)}); err != nil {
			return err
		}
	}

	return nil
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)

	return out
}

func maxLen(a, b []string) int {
	if len(a) > len(b) {
		return len(a)
	}

	return len(b)
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}

	return ""
}
