package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/aristath/seqflow/internal/config"
)

func initConfigCmd(ctx context.Context, env Env, args []string) error {
	var overwrite bool
	fs := newFlagSet("init-config", env)
	fs.BoolVar(&overwrite, "overwrite", false, "replace an existing file")
	if err := parse(fs, args); err != nil {
		return err
	}

	path := fs.Arg(0)
	if path == "" {
		_, project, err := config.DefaultPaths()
		if err != nil {
			return err
		}
		path = project
	}
	if _, err := os.Stat(path); err == nil && !overwrite {
		return &ExitError{Code: ExitConstruction, Err: fmt.Errorf("%s already exists (use -overwrite)", path)}
	}

	paired := true
	cfg := config.DefaultConfig()
	cfg.Manifest = "samples.tsv"
	cfg.Params.PairedEnd = &paired
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "wrote %s; set params.genome_dir and params.annotation before running\n", path)
	return nil
}
