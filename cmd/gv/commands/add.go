package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gitvault/pkg/ignore"
	"gitvault/pkg/ingester"

	"github.com/spf13/cobra"
)

func newAddCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>...",
		Short: "Add file contents to the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root := e.cfg.Repo.Path
			start := time.Now()

			matcher, err := ignore.NewMatcher(root)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", ignore.FileName, err)
			}
			ing := ingester.NewIngester(e.GV.Objects)

			added := 0
			var total int64
			for _, arg := range args {
				rel, err := repoRelative(root, arg)
				if err != nil {
					return err
				}
				// 路径是相对于仓库根目录的，忽略规则也按根目录匹配
				err = ing.IngestSubdir(ctx, root, rel, matcher, func(p string, r ingester.Result) error {
					e.GV.Index.Add(p, r.ID, r.Mode, r.Size)
					added++
					total += r.Size
					return nil
				})
				if err != nil {
					return fmt.Errorf("failed to add %s: %w", arg, err)
				}
			}

			if added == 0 {
				fmt.Fprintln(out(cmd), "No files added.")
				return nil
			}
			// 批量落盘
			if err := e.GV.Index.Save(); err != nil {
				return fmt.Errorf("failed to save index: %w", err)
			}
			fmt.Fprintf(out(cmd), "Added %d files (%d bytes) in %s\n", added, total, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func newRmCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>...",
		Short: "Remove paths from the index (files on disk are kept)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed := 0
			for _, arg := range args {
				rel, err := repoRelative(e.cfg.Repo.Path, arg)
				if err != nil {
					return err
				}
				// 目录: 删掉其下所有条目
				for _, p := range e.GV.Index.Paths() {
					if p == rel || rel == "." || strings.HasPrefix(p, rel+"/") {
						e.GV.Index.Remove(p)
						fmt.Fprintf(out(cmd), "rm '%s'\n", p)
						removed++
					}
				}
			}
			if removed == 0 {
				return fmt.Errorf("pathspec %v did not match any indexed files", args)
			}
			return e.GV.Index.Save()
		},
	}
}

// repoRelative 把命令行路径转成相对仓库根目录、以 / 分隔的路径
func repoRelative(root, p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%s is outside repository %s", p, root)
	}
	return filepath.ToSlash(rel), nil
}
