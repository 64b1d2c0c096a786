package commands

import (
	"fmt"

	"gitvault/pkg/core"
	"gitvault/pkg/exporter"
	"gitvault/pkg/types"

	"github.com/spf13/cobra"
)

func newExportCmd(e *env) *cobra.Command {
	var (
		verbose     bool
		updateIndex bool
	)

	cmd := &cobra.Command{
		Use:   "export <revision> <directory>",
		Short: "Materialize the tree of a commit (or a tree id) into a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := e.GV.ResolveRevision(ctx, args[0])
			if err != nil {
				return err
			}
			peeled, obj, err := e.GV.Objects.Peel(ctx, id)
			if err != nil {
				return err
			}

			var tree types.Hash
			switch o := obj.(type) {
			case *core.Commit:
				tree = o.Tree
			case *core.Tree:
				tree = peeled
			default:
				return fmt.Errorf("%s is a %s, not a commit or tree", args[0], obj.Type())
			}

			files := 0
			var total int64
			err = exporter.NewExporter(e.GV.Objects).ExportTree(ctx, tree, args[1], func(p string, entry core.TreeEntry, size int64) {
				files++
				total += size
				if verbose {
					fmt.Fprintf(out(cmd), "%s %s\n", entry.Mode, p)
				}
			})
			if err != nil {
				return err
			}
			if updateIndex {
				if err := e.GV.ReadTree(ctx, tree); err != nil {
					return err
				}
			}
			fmt.Fprintf(out(cmd), "Exported %d files (%d bytes) to %s\n", files, total, args[1])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every restored path")
	cmd.Flags().BoolVar(&updateIndex, "index", false, "also replace the index with the exported tree")
	return cmd
}
