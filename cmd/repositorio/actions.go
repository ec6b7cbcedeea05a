package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/djzort/repositorio/internal/logging"
	"github.com/djzort/repositorio/internal/orchestrator"
)

const (
	actionMirror  = "mirror"
	actionClean   = "clean"
	actionInit    = "init"
	actionAddFile = "add-file"
	actionDelFile = "del-file"
	actionTag     = "tag"
	actionDiff    = "diff"
	actionList    = "list"
)

const (
	exitCodeSuccess        = 0
	exitCodeFailure        = 1
	exitCodePartialFailure = 2
	exitCodeConfigFailure  = 5
)

func parseLevelStrict(s string) (slog.Level, bool) {
	return logging.ParseLevel(strings.ToLower(s))
}

// dispatch runs the configured action and returns the process exit code.
func (prog *program) dispatch(ctx context.Context) (int, error) {
	opts := prog.opts.ActionOptions

	switch prog.opts.Action {
	case actionMirror:
		if err := prog.orch.Mirror(ctx, opts); err != nil {
			return exitCodeFailure, err
		}
	case actionClean:
		if err := prog.orch.Clean(ctx, opts); err != nil {
			return exitCodeFailure, err
		}
	case actionInit:
		if err := prog.orch.Init(ctx, opts); err != nil {
			return exitCodeFailure, err
		}
	case actionAddFile:
		if err := prog.orch.AddFile(ctx, opts); err != nil {
			return exitCodeFailure, err
		}
	case actionDelFile:
		if err := prog.orch.DelFile(ctx, opts); err != nil {
			return exitCodeFailure, err
		}
	case actionTag:
		if err := prog.orch.Tag(ctx, opts); err != nil {
			return exitCodeFailure, err
		}
	case actionDiff:
		if err := prog.orch.Diff(ctx, opts, prog.stdout); err != nil {
			return exitCodeFailure, err
		}
	case actionList:
		result, err := prog.orch.List(ctx, opts)
		if err != nil {
			return exitCodeFailure, err
		}
		if err := renderList(prog, result, opts.Format); err != nil {
			return exitCodeFailure, err
		}
	}

	if prog.orch.State.HasPartialFailures {
		return exitCodePartialFailure, nil
	}

	return exitCodeSuccess, nil
}

// renderList writes a list action's result in the requested format,
// switching shape depending on whether it is a repo listing or a single
// repo's tag listing (spec §6 "List output formats").
func renderList(prog *program, result orchestrator.ListResult, format string) error {
	if format == "json" {
		enc := json.NewEncoder(prog.stdout)

		return enc.Encode(result)
	}

	if result.Repo == "" {
		return renderRepoList(prog, result, format)
	}

	return renderTagList(prog, result, format)
}

func renderRepoList(prog *program, result orchestrator.ListResult, format string) error {
	if format == "csv" {
		cw := csv.NewWriter(prog.stdout)
		defer cw.Flush()

		if err := cw.Write([]string{"name", "type", "mirrored"}); err != nil {
			return err
		}

		for _, r := range result.Repos {
			if err := cw.Write([]string{r.Name, r.Type, fmt.Sprintf("%t", r.Mirrored)}); err != nil {
				return err
			}
		}

		return nil
	}

	for _, r := range result.Repos {
		fmt.Fprintf(prog.stdout, "%s\t%s\tmirrored=%t\n", r.Name, r.Type, r.Mirrored)
	}

	return nil
}

func renderTagList(prog *program, result orchestrator.ListResult, format string) error {
	if format == "csv" {
		cw := csv.NewWriter(prog.stdout)
		defer cw.Flush()

		if err := cw.Write([]string{"tag", "soft_tags"}); err != nil {
			return err
		}

		for _, t := range result.Tags {
			if err := cw.Write([]string{t.Tag, strings.Join(t.SoftTag, ";")}); err != nil {
				return err
			}
		}

		return nil
	}

	for _, t := range result.Tags {
		if len(t.SoftTag) == 0 {
			fmt.Fprintf(prog.stdout, "%s\n", t.Tag)

			continue
		}

		fmt.Fprintf(prog.stdout, "%s\t(soft: %s)\n", t.Tag, strings.Join(t.SoftTag, ", "))
	}

	return nil
}
