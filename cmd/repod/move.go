package main

import (
	"context"
	"flag"
	"log"

	"github.com/archlinux/repod/internal/engine"
)

const moveHelp = `repod move [-flags] <pkgbase>...

Move package-bases between stability layers of a repository. The pool is
untouched; only descriptors, symlinks and sync databases change.

Example:
  % repod move -repo core -from testing -to stable foo
`

func cmdmove(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("move", flag.ExitOnError)
	var (
		repoName = fset.String("repo", "", "target repository name")
		arch     = fset.String("arch", "", "target repository architecture (defaults to the sole match)")
		from     = fset.String("from", "testing", "source stability layer")
		to       = fset.String("to", "stable", "target stability layer")
	)
	fset.Usage = usage(fset, moveHelp)
	fset.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := cfg.FindRepository(*repoName, *arch)
	if err != nil {
		return err
	}
	e, err := engine.New(cfg, repo)
	if err != nil {
		return err
	}

	if err := e.Move(ctx, *from, *to, fset.Args()); err != nil {
		return err
	}
	log.Printf("moved %d pkgbase(s) from %s to %s in %s/%s", len(fset.Args()), *from, *to, repo.Name, repo.Architecture)
	return nil
}
