package commands

import (
	"fmt"
	"strings"

	"gitvault/pkg/types"

	"github.com/spf13/cobra"
)

func newUpdateRefCmd(e *env) *cobra.Command {
	var (
		del bool
		msg string
	)

	cmd := &cobra.Command{
		Use:   "update-ref <ref> <new> [<old>] | -d <ref> [<old>]",
		Short: "Update a reference safely (compare-and-swap)",
		Long: `Point <ref> at <new>. When <old> is given the update only happens if the
reference currently has that value; an all-zero <old> means the reference must not exist.`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			if del {
				if len(args) > 2 {
					return fmt.Errorf("usage: gv update-ref -d <ref> [<old>]")
				}
				var old types.Hash
				if len(args) == 2 {
					old = types.Hash(args[1])
				}
				return e.GV.Refs.Delete(ctx, name, old)
			}

			if len(args) < 2 {
				return fmt.Errorf("usage: gv update-ref <ref> <new> [<old>]")
			}
			newID, err := e.GV.ResolveRevision(ctx, args[1])
			if err != nil {
				return err
			}

			old := types.Hash("")
			if len(args) == 3 {
				old = types.Hash(args[2])
			} else {
				// 没给 old: 以当前值为期望值
				cur, err := e.GV.Refs.Resolve(ctx, name)
				if err == nil {
					old = cur
				}
			}
			if msg == "" {
				msg = "update-ref"
			}
			return e.GV.Refs.Update(ctx, name, old, newID, msg)
		},
	}
	cmd.Flags().BoolVarP(&del, "delete", "d", false, "delete the reference")
	cmd.Flags().StringVarP(&msg, "message", "m", "", "reflog message")
	return cmd
}

func newSymbolicRefCmd(e *env) *cobra.Command {
	var (
		msg   string
		short bool
	)

	cmd := &cobra.Command{
		Use:   "symbolic-ref <name> [<target>]",
		Short: "Read or set a symbolic reference",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 2 {
				if msg == "" {
					msg = "symbolic-ref: " + args[1]
				}
				return e.GV.Refs.CreateSymbolic(ctx, args[0], args[1], msg)
			}

			ref, err := e.GV.Refs.Read(ctx, args[0])
			if err != nil {
				return err
			}
			if !ref.IsSymbolic() {
				return fmt.Errorf("ref %s is not a symbolic ref", args[0])
			}
			target := ref.Symref
			if short {
				target = strings.TrimPrefix(strings.TrimPrefix(target, "refs/heads/"), "refs/tags/")
			}
			fmt.Fprintln(out(cmd), target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&msg, "message", "m", "", "reflog message")
	cmd.Flags().BoolVar(&short, "short", false, "shorten the printed target")
	return cmd
}

func newReflogCmd(e *env) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reflog [ref]",
		Short: "Show the history of a reference, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "HEAD"
			if len(args) == 1 {
				name = args[0]
			}
			entries, err := e.GV.Refs.Reflog(cmd.Context(), name, limit)
			if err != nil {
				return err
			}
			for i, en := range entries {
				fmt.Fprintf(out(cmd), "%s %s@{%d}: %s\n", en.New.Short(), name, i, en.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "limit the number of entries")
	return cmd
}
