package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"gitvault/pkg/app"
	"gitvault/pkg/types"

	"github.com/spf13/cobra"
)

func newInitCmd(e *env) *cobra.Command {
	var hashAlgo string

	cmd := &cobra.Command{
		Use:         "init [directory]",
		Short:       "Create an empty gitvault repository",
		Long:        `Create an empty gitvault repository or reinitialize an existing one. HEAD points at refs/heads/main.`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{noRepoAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := e.cfg
			if len(args) > 0 {
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				cfg.Repo.Path = abs
			}

			_, statErr := os.Stat(cfg.GvDir())
			existed := statErr == nil

			if cmd.Flags().Changed("hash") {
				algo, err := types.ParseHashAlgo(hashAlgo)
				if err != nil {
					return err
				}
				if existed && cfg.Hash.Algorithm != algo.String() {
					return fmt.Errorf("repository already uses %s; the hash algorithm cannot be changed", cfg.Hash.Algorithm)
				}
				cfg.Hash.Algorithm = algo.String()
			}

			a, err := app.Init(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			e.GV = a

			if existed {
				fmt.Fprintf(out(cmd), "Reinitialized existing gitvault repository in %s\n", cfg.GvDir())
			} else {
				fmt.Fprintf(out(cmd), "Initialized empty gitvault repository (%s) in %s\n", a.Objects.Algo(), cfg.GvDir())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&hashAlgo, "hash", "sha256", "object hash algorithm: sha1|sha256")
	return cmd
}
