package yum

import (
	"bytes"
	"compress/gzip"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const repomdXML = `<?xml version="1.0"?>
<repomd xmlns="http://linux.duke.edu/metadata/repo">
  <data type="primary">
    <checksum type="sha256">abc123</checksum>
    <size>100</size>
    <location href="repodata/primary.xml.gz"/>
  </data>
</repomd>`

func gzipPrimary(t *testing.T, xmlDoc string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(xmlDoc))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	return buf.Bytes()
}

func TestParseRepoMD_Success(t *testing.T) {
	t.Parallel()

	md, err := ParseRepoMD(strings.NewReader(repomdXML))
	require.NoError(t, err)
	require.Len(t, md.Data, 1)

	d, ok := md.Find("primary")
	require.True(t, ok)
	require.Equal(t, "repodata/primary.xml.gz", d.Location.Href)
}

func TestMDData_Validator_PrefersSizeWhenNotCheckingChecksums(t *testing.T) {
	t.Parallel()

	size := int64(100)
	d := MDData{Checksum: MDChecksum{Type: "sha256", Value: "abc"}, Size: &size}

	check, err := d.Validator(false)
	require.NoError(t, err)
	require.True(t, check.IsSize())
}

func TestMDData_Validator_UsesChecksumWhenRequested(t *testing.T) {
	t.Parallel()

	size := int64(100)
	d := MDData{Checksum: MDChecksum{Type: "sha256", Value: "abc"}, Size: &size}

	check, err := d.Validator(true)
	require.NoError(t, err)
	require.False(t, check.IsSize())
}

func TestMDData_Validator_MissingBoth_Error(t *testing.T) {
	t.Parallel()

	d := MDData{Type: "primary"}

	_, err := d.Validator(false)
	require.ErrorIs(t, err, ErrMissingValidator)
}

func TestParsePrimary_SortsByName(t *testing.T) {
	t.Parallel()

	xmlDoc := `<?xml version="1.0"?>
<metadata xmlns="http://linux.duke.edu/metadata/common" packages="2">
  <package type="rpm">
    <name>zeta</name>
    <location href="Packages/zeta-1.rpm"/>
    <size package="10"/>
    <checksum type="sha256">z</checksum>
  </package>
  <package type="rpm">
    <name>alpha</name>
    <location href="Packages/alpha-1.rpm"/>
    <size package="20"/>
    <checksum type="sha256">a</checksum>
  </package>
</metadata>`

	pkgs, err := ParsePrimary(bytes.NewReader(gzipPrimary(t, xmlDoc)))
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	require.Equal(t, "alpha", pkgs[0].Name)
	require.Equal(t, "zeta", pkgs[1].Name)
}
