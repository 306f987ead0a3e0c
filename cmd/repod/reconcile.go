package main

import (
	"context"
	"flag"
	"log"

	"github.com/archlinux/repod/internal/engine"
)

const reconcileHelp = `repod reconcile [-flags]

Repair repository state after a crash: the descriptor documents are
authoritative, so missing layer symlinks are recreated, orphan symlinks
removed, and the sync databases regenerated.

Example:
  % repod reconcile -repo core -gc
`

func cmdreconcile(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("reconcile", flag.ExitOnError)
	var (
		repoName = fset.String("repo", "", "target repository name")
		arch     = fset.String("arch", "", "target repository architecture (defaults to the sole match)")
		gc       = fset.Bool("gc", false, "also collect unreferenced pool entries")
	)
	fset.Usage = usage(fset, reconcileHelp)
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

	if err := e.Reconcile(ctx, *gc); err != nil {
		return err
	}
	log.Printf("reconciled %s/%s", repo.Name, repo.Architecture)
	return nil
}
