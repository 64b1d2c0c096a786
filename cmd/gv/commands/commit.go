package commands

import (
	"errors"
	"fmt"
	"time"

	"gitvault/pkg/app"
	"gitvault/pkg/ignore"
	"gitvault/pkg/ingester"
	"gitvault/pkg/refs"
	"gitvault/pkg/treebuilder"

	"github.com/spf13/cobra"
)

func newCommitCmd(e *env) *cobra.Command {
	var msg string

	cmd := &cobra.Command{
		Use:   "commit -m <message>",
		Short: "Record the index as a new commit on HEAD",
		Long:  `Create a new commit containing the current contents of the index and the given log message describing the changes.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if msg == "" {
				return fmt.Errorf("commit message cannot be empty (use -m)")
			}
			start := time.Now()

			res, err := e.GV.Commit(cmd.Context(), msg)
			if errors.Is(err, app.ErrNothingToCommit) {
				fmt.Fprintln(out(cmd), "nothing to commit")
				return nil
			}
			if err != nil {
				return err
			}

			label := refs.BranchName(res.Branch)
			if len(res.Parents) == 0 {
				label += " (root-commit)"
			}
			fmt.Fprintf(out(cmd), "[%s %s] %s\n", label, res.ID.Short(), firstLine(msg))
			fmt.Fprintf(out(cmd), " tree %s, %s\n", res.Tree.Short(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVarP(&msg, "message", "m", "", "commit message")
	return cmd
}

func newWriteTreeCmd(e *env) *cobra.Command {
	var fromDir bool

	cmd := &cobra.Command{
		Use:   "write-tree",
		Short: "Write the index (or the working directory) as a tree object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b := treebuilder.NewBuilder(e.GV.Objects)

			if fromDir {
				matcher, err := ignore.NewMatcher(e.cfg.Repo.Path)
				if err != nil {
					return err
				}
				id, err := b.BuildDir(ctx, e.cfg.Repo.Path, matcher, ingester.NewIngester(e.GV.Objects))
				if err != nil {
					return err
				}
				fmt.Fprintln(out(cmd), id)
				return nil
			}

			id, err := b.Build(ctx, e.GV.Index.Snapshot())
			if err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromDir, "dir", false, "snapshot the working directory instead of the index")
	return cmd
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
