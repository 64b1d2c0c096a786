package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gitvault/pkg/core"
	"gitvault/pkg/graph"
	"gitvault/pkg/refs"
	"gitvault/pkg/types"

	"github.com/spf13/cobra"
)

func newLogCmd(e *env) *cobra.Command {
	var (
		limit       int
		firstParent bool
		topo        bool
		reverse     bool
		oneline     bool
		author      string
		not         []string
	)

	cmd := &cobra.Command{
		Use:   "log [revision...]",
		Short: "Show commit logs",
		Long:  `Display the commit history starting from the given revisions (or HEAD), newest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			// --author 走元数据库，只在 sql 后端可用
			if author != "" {
				if e.GV.Meta == nil {
					return fmt.Errorf("--author needs refs.backend=sql")
				}
				n := limit
				if n <= 0 {
					n = 100
				}
				rows, err := e.GV.Meta.FindCommitsByAuthor(ctx, author, n)
				if err != nil {
					return err
				}
				for _, r := range rows {
					fmt.Fprintf(out(cmd), "%s %s %s\n", types.Hash(r.Hash).Short(),
						time.Unix(r.Timestamp, 0).Format("2006-01-02"), firstLine(r.Message))
				}
				return nil
			}

			if len(args) == 0 {
				args = []string{refs.HEAD}
			}
			var starts []types.Hash
			for _, rev := range args {
				id, _, err := e.GV.ResolveCommit(ctx, rev)
				if rev == refs.HEAD && errors.Is(err, refs.ErrNotFound) {
					fmt.Fprintln(out(cmd), "No commits yet.")
					return nil
				}
				if err != nil {
					return err
				}
				starts = append(starts, id)
			}
			opts := graph.WalkOptions{FirstParentOnly: firstParent, Limit: limit, Sort: graph.SortTime}
			if topo {
				opts.Sort = graph.SortTopological
			}
			if reverse {
				opts.Sort |= graph.SortReverse
			}
			for _, rev := range not {
				id, _, err := e.GV.ResolveCommit(ctx, rev)
				if err != nil {
					return err
				}
				opts.Hide = append(opts.Hide, id)
			}

			w, err := e.GV.Graph.Walk(ctx, starts, opts)
			if err != nil {
				return err
			}
			return w.ForEach(ctx, func(id types.Hash, c *core.Commit) error {
				if oneline {
					fmt.Fprintf(out(cmd), "%s %s\n", id.Short(), firstLine(c.Message))
					return nil
				}
				printCommitLog(out(cmd), id, c)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.IntVarP(&limit, "max-count", "n", 0, "limit the number of commits")
	f.BoolVar(&firstParent, "first-parent", false, "follow only the first parent of merges")
	f.BoolVar(&topo, "topo-order", false, "never show a commit before its descendants")
	f.BoolVar(&reverse, "reverse", false, "output oldest first")
	f.BoolVar(&oneline, "oneline", false, "one line per commit")
	f.StringVar(&author, "author", "", "list commits by author from the metadata index")
	f.StringSliceVar(&not, "not", nil, "hide commits reachable from these revisions")
	return cmd
}

// printCommitLog 格式化输出 (仿 Git 格式)
func printCommitLog(w io.Writer, id types.Hash, c *core.Commit) {
	fmt.Fprintf(w, "commit %s\n", id)
	if c.IsMerge() {
		parents := make([]string, 0, len(c.Parents))
		for _, p := range c.Parents {
			parents = append(parents, p.Short())
		}
		fmt.Fprintf(w, "Merge: %s\n", strings.Join(parents, " "))
	}
	fmt.Fprintf(w, "Author: %s <%s>\n", c.Author.Name, c.Author.Email)
	fmt.Fprintf(w, "Date:   %s\n\n", c.Author.When.Format(time.RFC1123Z))
	for _, line := range strings.Split(strings.TrimRight(c.Message, "\n"), "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
	fmt.Fprintln(w)
}
