package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"

	"github.com/archlinux/repod"
	"github.com/archlinux/repod/internal/config"
	"github.com/archlinux/repod/internal/descriptor"
	"github.com/archlinux/repod/internal/engine"
	"github.com/archlinux/repod/internal/inspect"
	"github.com/archlinux/repod/internal/pkgmeta"
	"github.com/archlinux/repod/internal/sigverify"
	"github.com/archlinux/repod/internal/syncdb"
)

// Exit codes.
const (
	exitSuccess    = 0
	exitValidation = 1
	exitIO         = 2
	exitConfig     = 3
	exitSignature  = 4
)

var (
	configPath = flag.String("config", "repod.toml", "path to the repod configuration file")
	quiet      = flag.Bool("quiet", false, "suppress progress output")
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(*configPath)
	if err != nil {
		return nil, err
	}
	cfg.Resolve(filepath.Dir(abs))
	return cfg, nil
}

func funcmain() int {
	flag.Parse()

	if *quiet {
		log.SetOutput(io.Discard)
	} else if !isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(0) // no timestamps when logs go to a pipe or journal
	}

	type cmd struct {
		fn func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"add":       {cmdadd},
		"remove":    {cmdremove},
		"move":      {cmdmove},
		"gc":        {cmdgc},
		"reconcile": {cmdreconcile},
		"env":       {printenv},
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "repod [-flags] <command> [-flags] <args>\n")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintf(os.Stderr, "Repository commands:\n")
		fmt.Fprintf(os.Stderr, "\tadd       - add package archives to a repository layer\n")
		fmt.Fprintf(os.Stderr, "\tremove    - remove package-bases from a repository layer\n")
		fmt.Fprintf(os.Stderr, "\tmove      - move package-bases between stability layers\n")
		fmt.Fprintf(os.Stderr, "\tgc        - collect unreferenced pool entries\n")
		fmt.Fprintf(os.Stderr, "\treconcile - repair repository state after a crash\n")
		fmt.Fprintf(os.Stderr, "\tenv       - print resolved repository directories\n")
		return exitValidation
	}
	verb, args := args[0], args[1:]
	if verb == "help" && len(args) == 1 {
		verb, args = args[0], []string{"-help"}
	}
	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: repod <command> [options]\n")
		return exitValidation
	}

	ctx, canc := repod.InterruptibleContext()
	defer canc()
	fnErr := v.fn(ctx, args)
	atExitErr := repod.RunAtExit()
	if fnErr != nil {
		fmt.Fprintf(os.Stderr, "repod %s: %v\n", verb, fnErr)
		return exitCode(fnErr)
	}
	if err := atExitErr; err != nil {
		fmt.Fprintf(os.Stderr, "repod: %v\n", err)
		return exitIO
	}
	return exitSuccess
}

// exitCode maps the error taxonomy to the documented exit codes.
func exitCode(err error) int {
	var (
		configErr     *config.Error
		sigMissing    *sigverify.MissingError
		sigInvalid    *sigverify.InvalidError
		formatErr     *inspect.FormatError
		metaErr       *inspect.MissingMetadataError
		decodeErr     *pkgmeta.DecodeError
		schemaErr     *pkgmeta.SchemaViolationError
		schemaUnknown *pkgmeta.SchemaUnknownError
		versionErr    *repod.InvalidVersionError
		constraintErr *repod.InvalidConstraintError
		malformed     *syncdb.MalformedError
		inconsistent  *descriptor.InconsistentError
		regression    *engine.VersionRegressionError
		conflict      *engine.NameConflictError
		buildReq      *engine.MissingBuildRequirementError
		lockTimeout   *engine.LockTimeoutError
	)
	switch {
	case errors.As(err, &configErr):
		return exitConfig
	case errors.As(err, &sigMissing), errors.As(err, &sigInvalid):
		return exitSignature
	case errors.As(err, &formatErr), errors.As(err, &metaErr),
		errors.As(err, &decodeErr), errors.As(err, &schemaErr),
		errors.As(err, &schemaUnknown), errors.As(err, &versionErr),
		errors.As(err, &constraintErr), errors.As(err, &malformed),
		errors.As(err, &inconsistent), errors.As(err, &regression),
		errors.As(err, &conflict), errors.As(err, &buildReq):
		return exitValidation
	case errors.As(err, &lockTimeout):
		return exitIO
	}
	return exitIO
}

func main() {
	os.Exit(funcmain())
}
