package main

import (
	"context"
	"flag"
	"log"

	"github.com/archlinux/repod/internal/engine"
)

const addHelp = `repod add [-flags] <archive>...

Add built package archives (and their detached signatures, if present
next to them) to a repository layer. The batch is validated as a whole;
nothing is placed unless everything passes.

Example:
  % repod add -repo core -layer testing foo-1.0-1-x86_64.pkg.tar.zst
`

func cmdadd(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("add", flag.ExitOnError)
	var (
		repoName = fset.String("repo", "", "target repository name")
		arch     = fset.String("arch", "", "target repository architecture (defaults to the sole match)")
		layer    = fset.String("layer", "stable", "target stability layer (stable, testing, staging or a configured directory name)")
		force    = fset.Bool("force", false, "skip version monotonicity checks")
	)
	fset.Usage = usage(fset, addHelp)
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
	e.Force = *force

	if err := e.Add(ctx, *layer, fset.Args()); err != nil {
		return err
	}
	log.Printf("added %d archive(s) to %s/%s %s", len(fset.Args()), repo.Name, repo.Architecture, *layer)
	return nil
}
