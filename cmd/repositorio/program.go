package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	"github.com/spf13/afero"

	"github.com/djzort/repositorio/internal/config"
	"github.com/djzort/repositorio/internal/lockmgr"
	"github.com/djzort/repositorio/internal/logging"
	"github.com/djzort/repositorio/internal/orchestrator"
)

type program struct {
	fsys   afero.Fs
	stdout io.Writer
	stderr io.Writer

	opts  *programOptions
	flags *flag.FlagSet

	log  *slog.Logger
	orch *orchestrator.Orchestrator
}

func newProgram(cliArgs []string, fsys afero.Fs, stdout, stderr io.Writer) (*program, error) {
	prog := &program{
		fsys:   fsys,
		stdout: stdout,
		stderr: stderr,
		opts:   &programOptions{},
	}

	if err := prog.parseArgs(cliArgs); err != nil {
		fmt.Fprintf(prog.stderr, "fatal: failed to parse arguments: %v\n\n", err)
		prog.flags.Usage()

		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := prog.validateOpts(); err != nil {
		fmt.Fprintf(prog.stderr, "fatal: invalid arguments: %v\n\n", err)
		prog.flags.Usage()

		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	level, _ := parseLevelStrict(prog.opts.LogLevel)
	prog.log = logging.New(prog.stderr, level, prog.opts.JSON)

	raw, err := config.Load(prog.fsys, prog.opts.ConfigPath)
	if err != nil {
		prog.log.Error("failed to load config", "path", prog.opts.ConfigPath, "error", err)

		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := config.Validate(prog.fsys, raw)
	if err != nil {
		prog.log.Error("invalid config", "path", prog.opts.ConfigPath, "error", err)

		return nil, fmt.Errorf("invalid config: %w", err)
	}

	prog.orch = orchestrator.New(cfg, prog.fsys, prog.log, &lockmgr.Locker{})

	return prog, nil
}

func (prog *program) run(ctx context.Context) (retExitCode int, retErr error) {
	defer func() {
		if r := recover(); r != nil {
			prog.log.Error("internal panic recovered", "action", prog.opts.Action, "error", r)
			debug.PrintStack()
			retExitCode = exitCodeFailure
		}
	}()

	prog.log.Info("starting action", "action", prog.opts.Action, "repo", prog.opts.Repo)

	code, err := prog.dispatch(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			prog.log.Error("action failed", "action", prog.opts.Action, "error", err)
		}

		return code, err
	}

	switch code {
	case exitCodePartialFailure:
		prog.log.Warn("action completed with partial failures", "action", prog.opts.Action)
	default:
		prog.log.Info("action completed", "action", prog.opts.Action)
	}

	return code, nil
}
