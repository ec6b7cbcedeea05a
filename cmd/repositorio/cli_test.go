package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newTestProgramArgs(configPath string, extra ...string) []string {
	args := []string{"repositorio", "--config=" + configPath, "--action=list"}

	return append(args, extra...)
}

func TestParseArgs_PopulatesRepeatedFlags(t *testing.T) {
	t.Parallel()

	prog := &program{opts: &programOptions{}, stderr: io.Discard}

	err := prog.parseArgs([]string{"repositorio",
		"--config=/catalog.yaml", "--action=add-file",
		"--arch=x86_64", "--arch=noarch",
		"--file=a.rpm", "--file=b.rpm",
	})
	require.NoError(t, err)
	require.Equal(t, "/catalog.yaml", prog.opts.ConfigPath)
	require.Equal(t, "add-file", prog.opts.Action)
	require.Equal(t, []string{"x86_64", "noarch"}, prog.opts.Arch)
	require.Equal(t, []string{"a.rpm", "b.rpm"}, prog.opts.File)
}

func TestValidateOpts_MissingConfig_Error(t *testing.T) {
	t.Parallel()

	prog := &program{opts: &programOptions{Action: "list"}, stderr: io.Discard}
	require.ErrorIs(t, prog.validateOpts(), errArgConfigMissing)
}

func TestValidateOpts_MissingAction_Error(t *testing.T) {
	t.Parallel()

	prog := &program{opts: &programOptions{ConfigPath: "/catalog.yaml"}, stderr: io.Discard}
	require.ErrorIs(t, prog.validateOpts(), errArgActionMissing)
}

func TestValidateOpts_InvalidAction_Error(t *testing.T) {
	t.Parallel()

	prog := &program{opts: &programOptions{ConfigPath: "/catalog.yaml", Action: "bogus"}, stderr: io.Discard}
	require.ErrorIs(t, prog.validateOpts(), errArgActionInvalid)
}

func TestValidateOpts_InvalidLogLevel_Error(t *testing.T) {
	t.Parallel()

	prog := &program{opts: &programOptions{ConfigPath: "/catalog.yaml", Action: "list", LogLevel: "loud"}, stderr: io.Discard}
	require.ErrorIs(t, prog.validateOpts(), errArgInvalidLogLevel)
}

func TestValidateOpts_Success(t *testing.T) {
	t.Parallel()

	prog := &program{opts: &programOptions{ConfigPath: "/catalog.yaml", Action: "mirror", LogLevel: "debug"}, stderr: io.Discard}
	require.NoError(t, prog.validateOpts())
}

const testCatalog = `data_dir: /data
repo:
  widgets:
    type: Plain
    local: widgets
    arch: noarch
`

func TestNewProgram_ListAction_RendersRepoList(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/data", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/catalog.yaml", []byte(testCatalog), 0o644))

	var stdout, stderr bytes.Buffer

	prog, err := newProgram(newTestProgramArgs("/catalog.yaml"), fsys, &stdout, &stderr)
	require.NoError(t, err)

	code, err := prog.run(context.Background())
	require.NoError(t, err)
	require.Equal(t, exitCodeSuccess, code)
	require.Contains(t, stdout.String(), "widgets")
}

func TestNewProgram_MissingConfigFile_Error(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()

	var stdout, stderr bytes.Buffer

	_, err := newProgram(newTestProgramArgs("/does-not-exist.yaml"), fsys, &stdout, &stderr)
	require.Error(t, err)
}
