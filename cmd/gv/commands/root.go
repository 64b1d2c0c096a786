package commands

import (
	"context"
	"fmt"
	"io"

	"gitvault/pkg/app"
	"gitvault/pkg/config"

	"github.com/spf13/cobra"
)

// noRepoAnnotation 标在不需要打开仓库的命令上 (init)
const noRepoAnnotation = "gv/no-repo"

// ExitError 只携带退出码，不打印错误信息 (merge-base --is-ancestor 之类)
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// env 一次命令执行的运行时状态
type env struct {
	cfgFile string
	loader  *config.Loader
	cfg     *config.Config
	// GV 由 PersistentPreRunE 打开，供子命令使用
	GV *app.App
}

func (e *env) close() error {
	if e.GV == nil {
		return nil
	}
	err := e.GV.Close()
	e.GV = nil
	return err
}

// Execute 是入口
func Execute(ctx context.Context) error {
	root, e := newRootCmd()
	defer e.close()
	return root.ExecuteContext(ctx)
}

func newRootCmd() (*cobra.Command, *env) {
	e := &env{loader: config.NewLoader()}

	root := &cobra.Command{
		Use:           "gv",
		Short:         "gitvault: content-addressed version control",
		SilenceUsage:  true,
		SilenceErrors: true,
		// PersistentPreRunE 会在所有子命令执行前运行
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.loader.Load(e.cfgFile)
			if err != nil {
				return err
			}
			e.cfg = cfg

			// init 自己负责创建仓库
			if cmd.Annotations[noRepoAnnotation] == "true" {
				return nil
			}
			e.GV, err = app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to open repository: %w", err)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&e.cfgFile, "config", "", "config file (default is <repo>/.gv/config.yaml)")
	// 这些参数既可以写在 yaml 里，也可以用命令行覆盖
	pf.StringP("repo", "C", ".", "repository root")
	pf.String("log-level", "warn", "log level: debug|info|warn|error")
	pf.String("refs-backend", "files", "reference backend: files|sql")
	for key, flag := range map[string]string{
		"repo.path":    "repo",
		"log.level":    "log-level",
		"refs.backend": "refs-backend",
	} {
		// 只有 flag 为 nil 时才会失败，属于编程错误
		cobra.CheckErr(e.loader.BindFlag(key, pf.Lookup(flag)))
	}

	root.AddCommand(
		newInitCmd(e),
		newHashObjectCmd(e),
		newAddCmd(e),
		newRmCmd(e),
		newCommitCmd(e),
		newWriteTreeCmd(e),
		newCatCmd(e),
		newRevParseCmd(e),
		newLogCmd(e),
		newMergeBaseCmd(e),
		newMergeCmd(e),
		newBranchCmd(e),
		newTagCmd(e),
		newUpdateRefCmd(e),
		newSymbolicRefCmd(e),
		newReflogCmd(e),
		newPackCmd(e),
		newImportGitCmd(e),
		newExportCmd(e),
		newPushCmd(e),
		newFetchCmd(e),
	)
	return root, e
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
