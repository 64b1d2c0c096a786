package commands

import (
	"fmt"

	"gitvault/pkg/gitimport"

	"github.com/spf13/cobra"
)

func newImportGitCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import-git <git-repo-path>",
		Short: "Import branches, tags and their history from a git repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := gitimport.OpenPath(args[0])
			if err != nil {
				return err
			}
			im := gitimport.New(e.GV.Objects, e.GV.Refs, gitimport.WithLogger(e.GV.Log.Named("gitimport")))
			res, err := im.Import(ctx, repo)
			if err != nil {
				return err
			}
			for _, u := range res.Refs {
				e.GV.IndexCommits(ctx, u.New)
				fmt.Fprintf(out(cmd), "%s -> %s\n", u.Name, u.New.Short())
			}
			fmt.Fprintf(out(cmd), "Imported %d objects, %d refs\n", len(res.Mapping), len(res.Refs))
			return nil
		},
	}
}
