package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/djzort/repositorio/internal/orchestrator"
)

var (
	errArgActionMissing  = errors.New("--action is required")
	errArgActionInvalid  = errors.New("--action is not a recognized action")
	errArgConfigMissing  = errors.New("--config is required")
	errArgInvalidLogLevel = errors.New("--log-level has a not recognized value")
)

// multiArg accumulates a flag passed multiple times into an ordered slice.
type multiArg []string

func (m *multiArg) String() string {
	if m == nil {
		return ""
	}

	return strings.Join(*m, ",")
}

func (m *multiArg) Set(v string) error {
	*m = append(*m, v)

	return nil
}

type programOptions struct {
	ConfigPath string
	Action     string
	LogLevel   string
	JSON       bool

	orchestrator.ActionOptions
}

func (prog *program) parseArgs(cliArgs []string) error {
	var arch, file multiArg

	prog.flags = flag.NewFlagSet("repositorio", flag.ContinueOnError)
	prog.flags.SetOutput(prog.stderr)
	prog.flags.Usage = func() {
		fmt.Fprintf(prog.stderr, "usage: %q --config=PATH --action=ACTION [flags]\n", cliArgs[0])
		fmt.Fprintf(prog.stderr, "\t[--repo=NAME] [--arch=A ...] [--file=F ...] [--tag=T] [--src-tag=T]\n")
		fmt.Fprintf(prog.stderr, "\t[--regex] [--symlink] [--format=FMT] [--force] [--checksums]\n")
		fmt.Fprintf(prog.stderr, "\t[--ignore-errors] [--log-level=debug|info|warn|error] [--json]\n\n")
		prog.flags.PrintDefaults()
	}

	prog.flags.StringVar(&prog.opts.ConfigPath, "config", "", "path to the YAML repository catalog; always required")
	prog.flags.StringVar(&prog.opts.Action, "action", "", "mirror, clean, init, add-file, del-file, tag, diff or list")
	prog.flags.StringVar(&prog.opts.Repo, "repo", "", "repo name, 'all', or (with --regex) a pattern matched against repo names")
	prog.flags.BoolVar(&prog.opts.Regex, "regex", false, "treat --repo as a regular expression")
	prog.flags.Var(&arch, "arch", "architecture to act on; can be repeated")
	prog.flags.Var(&file, "file", "package file basename to add or remove; can be repeated")
	prog.flags.StringVar(&prog.opts.Tag, "tag", "", "destination tag name, for tag/diff")
	prog.flags.StringVar(&prog.opts.SrcTag, "src-tag", "", "source tag name, for tag/diff (default: head)")
	prog.flags.BoolVar(&prog.opts.Symlink, "symlink", false, "create the tag as a symlink instead of a hardlink tree")
	prog.flags.StringVar(&prog.opts.Format, "format", "default", "diff/list output format: default, csv or json")
	prog.flags.BoolVar(&prog.opts.Force, "force", false, "overwrite an existing tag or added file, or rebuild init metadata from scratch")
	prog.flags.BoolVar(&prog.opts.Checksums, "checksums", false, "validate downloaded packages by digest instead of size alone")
	prog.flags.BoolVar(&prog.opts.IgnoreErrors, "ignore-errors", false, "continue past a failed repo in a multi-repo fan-out instead of aborting")
	prog.flags.StringVar(&prog.opts.LogLevel, "log-level", "info", "debug, info, warn or error")
	prog.flags.BoolVar(&prog.opts.JSON, "json", false, "emit logs as JSON instead of colorized text")

	if err := prog.flags.Parse(cliArgs[1:]); err != nil {
		return fmt.Errorf("failed parsing flags: %w", err)
	}

	prog.opts.Arch = []string(arch)
	prog.opts.File = []string(file)

	return nil
}

func (prog *program) validateOpts() error {
	if prog.opts.ConfigPath == "" {
		return errArgConfigMissing
	}

	if prog.opts.Action == "" {
		return errArgActionMissing
	}

	switch prog.opts.Action {
	case actionMirror, actionClean, actionInit, actionAddFile, actionDelFile,
		actionTag, actionDiff, actionList:
	default:
		return fmt.Errorf("%w: %q", errArgActionInvalid, prog.opts.Action)
	}

	if prog.opts.LogLevel != "" {
		if _, ok := parseLevelStrict(prog.opts.LogLevel); !ok {
			return fmt.Errorf("%w: %q", errArgInvalidLogLevel, prog.opts.LogLevel)
		}
	}

	return nil
}
