package commands

import (
	"fmt"

	"gitvault/pkg/core"
	"gitvault/pkg/exporter"

	"github.com/spf13/cobra"
)

func newCatCmd(e *env) *cobra.Command {
	var (
		raw      bool
		showType bool
		showSize bool
	)

	cmd := &cobra.Command{
		Use:   "cat <revision|id>",
		Short: "Show an object (pretty-printed by default)",
		Long:  `Show any object by revision or (abbreviated) id. With -p a blob is dumped byte for byte, so the output can be redirected to a file.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := e.GV.ResolveRevision(ctx, args[0])
			if err != nil {
				return err
			}
			exp := exporter.NewExporter(e.GV.Objects)

			if !showType && !showSize {
				if raw {
					if obj, err := e.GV.Objects.Get(ctx, id); err == nil && obj.Type() == core.TypeBlob {
						return exp.ExportBlob(ctx, id, out(cmd))
					}
				}
				return exp.PrintObject(ctx, id, out(cmd))
			}

			obj, err := e.GV.Objects.Get(ctx, id)
			if err != nil {
				return err
			}
			if showType {
				fmt.Fprintln(out(cmd), obj.Type())
			}
			if showSize {
				data, err := e.GV.Objects.ReadRaw(ctx, id)
				if err != nil {
					return err
				}
				size := len(data)
				if b, ok := obj.(*core.Blob); ok {
					size = b.Size()
				}
				fmt.Fprintln(out(cmd), size)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&raw, "pretty", "p", false, "dump blob content as-is")
	cmd.Flags().BoolVarP(&showType, "type", "t", false, "show the object type")
	cmd.Flags().BoolVarP(&showSize, "size", "s", false, "show the object size")
	return cmd
}

func newRevParseCmd(e *env) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "rev-parse <revision>...",
		Short: "Resolve revisions (refs, short names, id prefixes) to full ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, rev := range args {
				id, err := e.GV.ResolveRevision(cmd.Context(), rev)
				if err != nil {
					return err
				}
				if short {
					fmt.Fprintln(out(cmd), id.Short())
					continue
				}
				fmt.Fprintln(out(cmd), id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print abbreviated ids")
	return cmd
}
