/*
repositorio mirrors upstream Yum, Apt, and plain-file package repositories
into local, tag-addressable snapshots that downstream package managers can
consume unchanged.

A single entry point dispatches one action -- mirror, clean, add-file,
del-file, init, list, tag, diff -- against a YAML catalog of named
repositories. The mirror action fetches upstream metadata, validates and
downloads package files by size or digest, and tolerates multi-URL
failover. The tag action promotes a mirrored "head" tag into a named,
immutable-by-convention snapshot using hardlinks or a symlink. Every
mutating action is serialized per repository by an OS-level advisory
lock, so two invocations against the same repo never race.

# USAGE

	repositorio --config=PATH --action=ACTION [flags]

# ACTIONS

	mirror   --repo NAME [--arch A]... [--checksums] [--force] [--ignore-errors] [--regex]
	clean    --repo NAME [--arch A]... [--regex] [--force]
	init     --repo NAME [--arch A]...
	add-file --repo NAME --arch A --file F... [--force]
	del-file --repo NAME --arch A --file F...
	tag      --repo NAME --tag T [--src-tag T] [--symlink] [--force]
	diff     --repo NAME --tag T --arch A [--src-tag T] [--format FMT]
	list     [--repo NAME] [--format FMT]

`--repo all` expands to every configured repo; `--regex` treats `--repo`
as a regular expression matched against configured repo names.

# RETURN CODES

  - 0: success
  - 1: failure
  - 2: partial failure (with --ignore-errors)
  - 5: invalid configuration or arguments
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

const exitTimeout = 30 * time.Second

func main() {
	var prog *program
	var exitCode int

	defer func() {
		os.Exit(exitCode)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	prog, err := newProgram(os.Args, afero.NewOsFs(), os.Stdout, os.Stderr)
	if prog == nil || err != nil {
		exitCode = exitCodeConfigFailure

		return
	}

	doneChan := make(chan int, 1)

	go func() {
		code, _ := prog.run(ctx)
		doneChan <- code
	}()

	select {
	case code := <-doneChan:
		exitCode = code

		return

	case <-sigChan:
		prog.log.Warn("received interrupt signal; shutting down...", "action", prog.opts.Action)
		cancel()

		select {
		case code := <-doneChan:
			exitCode = code

			return

		case <-time.After(exitTimeout):
			prog.log.Error("timed out waiting for program exit; killing...", "action", prog.opts.Action)
			exitCode = exitCodeFailure

			return
		}
	}
}
