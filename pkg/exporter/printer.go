package exporter

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"gitvault/pkg/core"
	"gitvault/pkg/types"
)

// previewLimit blob 预览的最大字节数
const previewLimit = 4096

// PrintObject 以人类可读的方式打印任意对象 (gv cat)
func (e *Exporter) PrintObject(ctx context.Context, id types.Hash, w io.Writer) error {
	obj, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}

	switch o := obj.(type) {
	case *core.Commit:
		printCommit(o, w)
	case *core.Tree:
		printTree(o, w)
	case *core.Tag:
		printTag(o, w)
	case *core.Blob:
		printBlob(o, w)
	default:
		return fmt.Errorf("unknown object type: %T", obj)
	}
	return nil
}

// --- 辅助打印函数 ---

func printCommit(c *core.Commit, w io.Writer) {
	fmt.Fprintf(w, "Type:      commit\n")
	fmt.Fprintf(w, "Tree:      %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(w, "Parent:    %s\n", p)
	}
	fmt.Fprintf(w, "Author:    %s <%s>\n", c.Author.Name, c.Author.Email)
	fmt.Fprintf(w, "Date:      %s\n", c.Author.When.Format(time.RFC3339))
	fmt.Fprintf(w, "Committer: %s <%s>\n", c.Committer.Name, c.Committer.Email)
	fmt.Fprintf(w, "\n%s\n", c.Message)
}

func printTree(t *core.Tree, w io.Writer) {
	fmt.Fprintf(w, "Type: tree\n\n")

	// 对齐输出，格式同 git ls-tree
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	for _, entry := range t.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", entry.Mode, entry.Kind(), entry.ID, entry.Name)
	}
	tw.Flush()
}

func printTag(t *core.Tag, w io.Writer) {
	fmt.Fprintf(w, "Type:   tag\n")
	fmt.Fprintf(w, "Object: %s\n", t.Target)
	fmt.Fprintf(w, "Kind:   %s\n", t.TargetType)
	fmt.Fprintf(w, "Tag:    %s\n", t.Name)
	fmt.Fprintf(w, "Tagger: %s\n", t.Tagger)
	fmt.Fprintf(w, "\n%s\n", t.Message)
}

func printBlob(b *core.Blob, w io.Writer) {
	fmt.Fprintf(w, "Type: blob\nSize: %d bytes\n\n", len(b.Data))

	preview := b.Data
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}
	if !utf8.Valid(preview) {
		// 防止终端乱码
		fmt.Fprintf(w, "(binary data not shown, use 'gv cat -p' to dump)\n")
		return
	}
	w.Write(preview)
	if len(preview) < len(b.Data) {
		fmt.Fprintf(w, "\n... (%d more bytes)\n", len(b.Data)-len(preview))
	}
}
