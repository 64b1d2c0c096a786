package commands

import (
	"errors"
	"fmt"
	"io"

	"gitvault/pkg/client"
	"gitvault/pkg/pack"
	"gitvault/pkg/refs"
	"gitvault/pkg/types"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// dialRemote 连接 --server 指定的服务端，默认取配置里的 server.addr
func dialRemote(e *env, addr string) (*client.GVClient, error) {
	if addr == "" {
		addr = e.cfg.Server.Addr
	}
	return client.NewGVClient(addr)
}

// branchRef 当前分支，或者把短名补全成 refs/heads/<name>
func branchRef(cmd *cobra.Command, e *env, args []string) (string, error) {
	if len(args) == 1 {
		if refs.ValidateName(args[0]) == nil {
			return args[0], nil
		}
		return refs.BranchPrefix + args[0], nil
	}
	head, err := e.GV.Refs.Read(cmd.Context(), refs.HEAD)
	if err != nil {
		return "", err
	}
	if !head.IsSymbolic() {
		return "", fmt.Errorf("HEAD is detached; name the branch to use")
	}
	return head.Symref, nil
}

func newPushCmd(e *env) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "push [branch]",
		Short: "Send a branch and its missing objects to a gitvault server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name, err := branchRef(cmd, e, args)
			if err != nil {
				return err
			}
			local, err := e.GV.Refs.Resolve(ctx, name)
			if err != nil {
				return err
			}

			cli, err := dialRemote(e, addr)
			if err != nil {
				return err
			}
			defer cli.Close()

			remote, _, err := cli.Resolve(ctx, name)
			if err != nil && status.Code(err) != codes.NotFound {
				return err
			}
			if remote == local {
				fmt.Fprintln(out(cmd), "Everything up-to-date")
				return nil
			}

			var haves []types.Hash
			if remote != "" && e.GV.Objects.Exists(ctx, remote) {
				if ok, err := e.GV.Graph.IsAncestor(ctx, remote, local); err != nil {
					return err
				} else if !ok {
					return fmt.Errorf("rejected: %s is not an ancestor of %s (fetch first)", remote.Short(), local.Short())
				}
				haves = append(haves, remote)
			}

			// 一边打包一边上传
			pr, pw := io.Pipe()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				_, err := pack.Build(gctx, e.GV.Graph, e.GV.Objects, []types.Hash{local}, haves, pw)
				pw.CloseWithError(err)
				return err
			})
			var sent []types.Hash
			g.Go(func() error {
				var err error
				sent, err = cli.PushPack(gctx, pr)
				pr.CloseWithError(err)
				return err
			})
			if err := g.Wait(); err != nil {
				return fmt.Errorf("push pack: %w", err)
			}

			if err := cli.Update(ctx, name, remote, local, "push"); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s..%s  %s (%d objects)\n", remote.Short(), local.Short(), refs.BranchName(name), len(sent))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "server", "", "server address (default server.addr)")
	return cmd
}

func newFetchCmd(e *env) *cobra.Command {
	var (
		addr   string
		remote string
	)

	cmd := &cobra.Command{
		Use:   "fetch [branch]",
		Short: "Download a branch from a gitvault server into refs/remotes/<remote>/",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name, err := branchRef(cmd, e, args)
			if err != nil {
				return err
			}
			tracking := "refs/remotes/" + remote + "/" + refs.BranchName(name)

			cli, err := dialRemote(e, addr)
			if err != nil {
				return err
			}
			defer cli.Close()

			theirs, _, err := cli.Resolve(ctx, name)
			if err != nil {
				return err
			}

			old, err := e.GV.Refs.Resolve(ctx, tracking)
			if err != nil && !errors.Is(err, refs.ErrNotFound) {
				return err
			}
			if old == theirs {
				fmt.Fprintln(out(cmd), "Already up to date.")
				return nil
			}

			if !e.GV.Objects.Exists(ctx, theirs) {
				// 本地已有的提交作为 haves，服务端会忽略它不认识的
				var haves []types.Hash
				for _, ref := range []string{tracking, name} {
					if id, err := e.GV.Refs.Resolve(ctx, ref); err == nil {
						haves = append(haves, id)
					}
				}
				pr, pw := io.Pipe()
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					err := cli.FetchPack(gctx, []types.Hash{theirs}, haves, pw)
					pw.CloseWithError(err)
					return err
				})
				g.Go(func() error {
					_, err := pack.Unpack(gctx, pr, e.GV.Objects)
					pr.CloseWithError(err)
					return err
				})
				if err := g.Wait(); err != nil {
					return fmt.Errorf("fetch pack: %w", err)
				}
			}

			if err := e.GV.Refs.Update(ctx, tracking, old, theirs, "fetch: "+name); err != nil {
				return err
			}
			e.GV.IndexCommits(ctx, theirs)
			fmt.Fprintf(out(cmd), "%s..%s  %s -> %s\n", old.Short(), theirs.Short(), refs.BranchName(name), tracking)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "server", "", "server address (default server.addr)")
	cmd.Flags().StringVar(&remote, "remote", "origin", "name used under refs/remotes/")
	return cmd
}
