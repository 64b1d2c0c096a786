package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"gitvault/pkg/pack"
	"gitvault/pkg/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPackCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Export or import object packs",
	}
	cmd.AddCommand(newPackExportCmd(e), newPackImportCmd(e))
	return cmd
}

func newPackExportCmd(e *env) *cobra.Command {
	var (
		output string
		not    []string
	)

	cmd := &cobra.Command{
		Use:   "export <revision>...",
		Short: "Write every object reachable from the revisions into a pack",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			roots, err := resolveAll(cmd, e, args)
			if err != nil {
				return err
			}
			haves, err := resolveAll(cmd, e, not)
			if err != nil {
				return err
			}

			var w io.Writer = out(cmd)
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			bw := bufio.NewWriterSize(w, 1<<20)
			stats, err := pack.Build(ctx, e.GV.Graph, e.GV.Objects, roots, haves, bw,
				pack.WithLogger(e.GV.Log.Named("pack")))
			if err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d objects (%d bytes) to %s\n", stats.Objects, stats.Bytes, output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "pack file (default stdout)")
	cmd.Flags().StringSliceVar(&not, "not", nil, "exclude objects reachable from these revisions")
	return cmd
}

func newPackImportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file|-]",
		Short: "Verify a pack and write its objects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			ids, err := pack.Unpack(cmd.Context(), r, e.GV.Objects)
			if err != nil {
				return err
			}
			e.GV.Log.Info("pack imported", zap.Int("objects", len(ids)))
			fmt.Fprintf(out(cmd), "Imported %d objects\n", len(ids))
			return nil
		},
	}
}

func resolveAll(cmd *cobra.Command, e *env, revs []string) ([]types.Hash, error) {
	out := make([]types.Hash, 0, len(revs))
	for _, rev := range revs {
		id, err := e.GV.ResolveRevision(cmd.Context(), rev)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
