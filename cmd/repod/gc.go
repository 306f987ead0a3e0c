package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/archlinux/repod/internal/engine"
)

const gcHelp = `repod gc [-flags]

Collect pool entries no descriptor references any more.

Example:
  % repod gc -repo core -dry_run
`

func cmdgc(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("gc", flag.ExitOnError)
	var (
		repoName = fset.String("repo", "", "target repository name")
		arch     = fset.String("arch", "", "target repository architecture (defaults to the sole match)")
		dryRun   = fset.Bool("dry_run", false, "only print pool entries which would otherwise be deleted")
	)
	fset.Usage = usage(fset, gcHelp)
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

	if *dryRun {
		orphans, err := e.Orphans(ctx)
		if err != nil {
			return err
		}
		for _, basename := range orphans {
			fmt.Printf("would delete %s\n", basename)
		}
		return nil
	}
	removed, err := e.Collect(ctx)
	if err != nil {
		return err
	}
	log.Printf("collected %d pool entr(ies) in %s/%s", len(removed), repo.Name, repo.Architecture)
	return nil
}
