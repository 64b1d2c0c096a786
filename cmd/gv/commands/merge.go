package commands

import (
	"errors"
	"fmt"

	"gitvault/pkg/merge"
	"gitvault/pkg/refs"
	"gitvault/pkg/types"

	"github.com/spf13/cobra"
)

func newMergeBaseCmd(e *env) *cobra.Command {
	var (
		all        bool
		isAncestor bool
	)

	cmd := &cobra.Command{
		Use:   "merge-base <a> <b>",
		Short: "Find the best common ancestor(s) of two commits",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, err := e.GV.ResolveCommit(ctx, args[0])
			if err != nil {
				return err
			}
			b, _, err := e.GV.ResolveCommit(ctx, args[1])
			if err != nil {
				return err
			}

			if isAncestor {
				ok, err := e.GV.Graph.IsAncestor(ctx, a, b)
				if err != nil {
					return err
				}
				if !ok {
					return &ExitError{Code: 1}
				}
				return nil
			}

			var bases []types.Hash
			if all {
				bases, err = e.GV.Graph.MergeBases(ctx, a, b)
				if err != nil {
					return err
				}
			} else {
				base, ok, err := e.GV.Graph.MergeBase(ctx, a, b)
				if err != nil {
					return err
				}
				if ok {
					bases = []types.Hash{base}
				}
			}
			if len(bases) == 0 {
				return &ExitError{Code: 1}
			}
			for _, id := range bases {
				fmt.Fprintln(out(cmd), id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "print all best common ancestors")
	cmd.Flags().BoolVar(&isAncestor, "is-ancestor", false, "exit 0 if <a> is an ancestor of <b>, 1 otherwise")
	return cmd
}

func newMergeCmd(e *env) *cobra.Command {
	var (
		msg      string
		noFF     bool
		noCommit bool
	)

	cmd := &cobra.Command{
		Use:   "merge <revision>",
		Short: "Merge another history into the current branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ours, _, err := e.GV.ResolveCommit(ctx, refs.HEAD)
			if err != nil {
				return fmt.Errorf("cannot merge without a current commit: %w", err)
			}
			theirs, _, err := e.GV.ResolveCommit(ctx, args[0])
			if err != nil {
				return err
			}

			if ok, err := e.GV.Graph.IsAncestor(ctx, theirs, ours); err != nil {
				return err
			} else if ok {
				fmt.Fprintln(out(cmd), "Already up to date.")
				return nil
			}

			// ORIG_HEAD 记录合并前的位置
			if err := forceUpdate(cmd, e, "ORIG_HEAD", ours, "merge: save ORIG_HEAD"); err != nil {
				return err
			}

			ff, err := e.GV.Graph.IsAncestor(ctx, ours, theirs)
			if err != nil {
				return err
			}
			if ff && !noFF {
				if err := e.GV.Refs.Update(ctx, refs.HEAD, ours, theirs, "merge "+args[0]+": Fast-forward"); err != nil {
					return err
				}
				if err := readCommitTree(e, cmd, theirs); err != nil {
					return err
				}
				e.GV.IndexCommits(ctx, theirs)
				fmt.Fprintf(out(cmd), "Updating %s..%s\nFast-forward\n", ours.Short(), theirs.Short())
				return nil
			}

			res, err := e.GV.Merger.Merge(ctx, ours, theirs)
			if err != nil {
				return err
			}
			if !res.Clean() {
				for _, c := range res.Conflicts {
					fmt.Fprintf(out(cmd), "CONFLICT (%s): %s\n", c.Kind, c.Path)
				}
				fmt.Fprintln(out(cmd), "Automatic merge failed; nothing was written.")
				return &ExitError{Code: 1}
			}
			if noCommit {
				fmt.Fprintf(out(cmd), "Automatic merge went well; merged tree %s\n", res.Tree)
				return nil
			}

			if msg == "" {
				msg = fmt.Sprintf("Merge %s\n", args[0])
			}
			sig := e.GV.Signature()
			id, err := e.GV.Merger.Finalize(ctx, res, merge.FinalizeOptions{Author: sig, Committer: sig, Message: msg})
			if err != nil {
				return err
			}
			if err := e.GV.Refs.Update(ctx, refs.HEAD, ours, id, "merge "+args[0]); err != nil {
				return err
			}
			if err := e.GV.ReadTree(ctx, res.Tree); err != nil {
				return err
			}
			e.GV.IndexCommits(ctx, id)
			fmt.Fprintf(out(cmd), "Merge made by the three-way strategy: %s\n", id.Short())
			return nil
		},
	}
	cmd.Flags().StringVarP(&msg, "message", "m", "", "merge commit message")
	cmd.Flags().BoolVar(&noFF, "no-ff", false, "always create a merge commit")
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "merge the trees but do not commit")
	return cmd
}

// forceUpdate 以当前值为期望值更新，相当于无条件覆盖但仍经过 CAS
func forceUpdate(cmd *cobra.Command, e *env, name string, id types.Hash, msg string) error {
	ctx := cmd.Context()
	cur, err := e.GV.Refs.Resolve(ctx, name)
	if err != nil && !errors.Is(err, refs.ErrNotFound) {
		return err
	}
	return e.GV.Refs.Update(ctx, name, cur, id, msg)
}

// readCommitTree 让暂存区跟上新的 HEAD
func readCommitTree(e *env, cmd *cobra.Command, id types.Hash) error {
	c, err := e.GV.Objects.ReadCommit(cmd.Context(), id)
	if err != nil {
		return err
	}
	return e.GV.ReadTree(cmd.Context(), c.Tree)
}
