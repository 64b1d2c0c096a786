package commands

import (
	"fmt"
	"io"
	"os"

	"gitvault/pkg/core"

	"github.com/spf13/cobra"
)

func newHashObjectCmd(e *env) *cobra.Command {
	var (
		write bool
		stdin bool
	)

	cmd := &cobra.Command{
		Use:   "hash-object [-w] [--stdin] [file...]",
		Short: "Compute the blob id of files, optionally writing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			hashOne := func(r io.Reader) error {
				if write {
					id, err := e.GV.Objects.PutBlob(ctx, r)
					if err != nil {
						return err
					}
					fmt.Fprintln(out(cmd), id)
					return nil
				}
				data, err := io.ReadAll(r)
				if err != nil {
					return err
				}
				id, _, err := core.CalculateHash(e.GV.Objects.Algo(), core.NewBlob(data))
				if err != nil {
					return err
				}
				fmt.Fprintln(out(cmd), id)
				return nil
			}

			if stdin {
				if err := hashOne(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			for _, p := range args {
				f, err := os.Open(p)
				if err != nil {
					return err
				}
				err = hashOne(f)
				f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
			}
			if !stdin && len(args) == 0 {
				return fmt.Errorf("nothing to hash (give files or --stdin)")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the blob into the object store")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "read the object from standard input")
	return cmd
}
