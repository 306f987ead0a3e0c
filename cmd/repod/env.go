package main

import (
	"context"
	"flag"
	"fmt"
)

const envHelp = `repod env

Print the resolved directories of every configured repository.
`

func printenv(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("env", flag.ExitOnError)
	fset.Usage = usage(fset, envHelp)
	fset.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Printf("management=%s\n", cfg.ManagementRepo.Directory)
	fmt.Printf("data=%s\n", cfg.DataRoot)
	for i := range cfg.Repositories {
		repo := &cfg.Repositories[i]
		fmt.Printf("repo %s/%s:\n", repo.Name, repo.Architecture)
		fmt.Printf("  package_pool=%s\n", cfg.PoolDir(repo))
		fmt.Printf("  source_pool=%s\n", repo.SourcePool)
		if repo.Archiving != "" {
			fmt.Printf("  archiving=%s\n", repo.Archiving)
		}
		for _, layer := range repo.LayerNames() {
			fmt.Printf("  layer %s: %s (descriptors: %s)\n", layer, cfg.LayerDir(repo, layer), cfg.ManagementDir(repo, layer))
		}
	}
	return nil
}
