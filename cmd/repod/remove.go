package main

import (
	"context"
	"flag"
	"log"

	"github.com/archlinux/repod/internal/engine"
)

const removeHelp = `repod remove [-flags] <pkgbase>...

Remove package-bases from a repository layer. Absent package-bases are
ignored.

Example:
  % repod remove -repo core -layer testing foo
`

func cmdremove(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("remove", flag.ExitOnError)
	var (
		repoName = fset.String("repo", "", "target repository name")
		arch     = fset.String("arch", "", "target repository architecture (defaults to the sole match)")
		layer    = fset.String("layer", "stable", "stability layer to remove from")
		gc       = fset.Bool("gc", false, "collect unreferenced pool entries afterwards")
	)
	fset.Usage = usage(fset, removeHelp)
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

	if err := e.Remove(ctx, *layer, fset.Args(), *gc); err != nil {
		return err
	}
	log.Printf("removed %d pkgbase(s) from %s/%s %s", len(fset.Args()), repo.Name, repo.Architecture, *layer)
	return nil
}
