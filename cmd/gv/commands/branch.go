package commands

import (
	"fmt"

	"gitvault/pkg/refs"

	"github.com/spf13/cobra"
)

func newBranchCmd(e *env) *cobra.Command {
	var (
		del    bool
		rename bool
	)

	cmd := &cobra.Command{
		Use:   "branch [name [start]]",
		Short: "List, create, delete or rename branches",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m := e.GV.Refs

			switch {
			case del:
				if len(args) != 1 {
					return fmt.Errorf("usage: gv branch -d <name>")
				}
				if err := m.Delete(ctx, refs.BranchPrefix+args[0], ""); err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "Deleted branch %s\n", args[0])
				return nil

			case rename:
				if len(args) != 2 {
					return fmt.Errorf("usage: gv branch -m <old> <new>")
				}
				return m.Rename(ctx, refs.BranchPrefix+args[0], refs.BranchPrefix+args[1],
					fmt.Sprintf("branch: renamed %s to %s", args[0], args[1]))

			case len(args) == 0:
				current := ""
				if head, err := m.Read(ctx, refs.HEAD); err == nil && head.IsSymbolic() {
					current = head.Symref
				}
				list, err := m.ListBranches(ctx)
				if err != nil {
					return err
				}
				for _, r := range list {
					mark := " "
					if r.Name == current {
						mark = "*"
					}
					fmt.Fprintf(out(cmd), "%s %s\t%s\n", mark, refs.BranchName(r.Name), r.Target.Short())
				}
				return nil
			}

			start := refs.HEAD
			if len(args) == 2 {
				start = args[1]
			}
			id, _, err := e.GV.ResolveCommit(ctx, start)
			if err != nil {
				return err
			}
			return m.Update(ctx, refs.BranchPrefix+args[0], "", id, "branch: Created from "+start)
		},
	}
	cmd.Flags().BoolVarP(&del, "delete", "d", false, "delete a branch")
	cmd.Flags().BoolVarP(&rename, "move", "m", false, "rename a branch")
	return cmd
}

func newTagCmd(e *env) *cobra.Command {
	var (
		del       bool
		annotated bool
		msg       string
	)

	cmd := &cobra.Command{
		Use:   "tag [name [revision]]",
		Short: "List, create or delete tags",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m := e.GV.Refs

			if del {
				if len(args) != 1 {
					return fmt.Errorf("usage: gv tag -d <name>")
				}
				if err := m.DeleteTag(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "Deleted tag '%s'\n", args[0])
				return nil
			}

			if len(args) == 0 {
				list, err := m.ListTags(ctx)
				if err != nil {
					return err
				}
				for _, r := range list {
					fmt.Fprintln(out(cmd), r.Name[len(refs.TagPrefix):])
				}
				return nil
			}

			rev := refs.HEAD
			if len(args) == 2 {
				rev = args[1]
			}
			target, err := e.GV.ResolveRevision(ctx, rev)
			if err != nil {
				return err
			}

			if !annotated && msg == "" {
				return m.CreateTag(ctx, args[0], target)
			}
			obj, err := e.GV.Objects.Get(ctx, target)
			if err != nil {
				return err
			}
			if msg == "" {
				msg = args[0]
			}
			_, err = m.CreateAnnotatedTag(ctx, e.GV.Objects, args[0], target, obj.Type(), e.GV.Signature(), ensureNewline(msg))
			return err
		},
	}
	cmd.Flags().BoolVarP(&del, "delete", "d", false, "delete a tag")
	cmd.Flags().BoolVarP(&annotated, "annotate", "a", false, "create an annotated tag object")
	cmd.Flags().StringVarP(&msg, "message", "m", "", "tag message (implies -a)")
	return cmd
}

func ensureNewline(s string) string {
	if s == "" || s[len(s)-1] == '\n' {
		return s
	}
	return s + "\n"
}

