package files

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gitvault/pkg/core"
	"gitvault/pkg/refs"
	"gitvault/pkg/types"
)

// 每行: <old> <new> <name> <<email>> <unix> <+hhmm>\t<message>
func formatReflog(e refs.ReflogEntry) string {
	msg := strings.ReplaceAll(e.Message, "\n", " ")
	return fmt.Sprintf("%s %s %s\t%s\n", e.Old, e.New, e.Committer, msg)
}

func parseReflog(line string) (refs.ReflogEntry, error) {
	head, msg, _ := strings.Cut(line, "\t")
	parts := strings.SplitN(head, " ", 3)
	if len(parts) != 3 {
		return refs.ReflogEntry{}, fmt.Errorf("malformed reflog line %q", line)
	}
	sig, err := core.ParseSignature(parts[2])
	if err != nil {
		return refs.ReflogEntry{}, err
	}
	return refs.ReflogEntry{
		Old:       types.Hash(parts[0]),
		New:       types.Hash(parts[1]),
		Committer: sig,
		Message:   msg,
	}, nil
}

func (b *Backend) AppendReflog(_ context.Context, name string, e refs.ReflogEntry) error {
	path := b.logPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reflog mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog open: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatReflog(e)); err != nil {
		return fmt.Errorf("reflog write: %w", err)
	}
	return nil
}

// ReadReflog 从旧到新；损坏的行跳过
func (b *Backend) ReadReflog(_ context.Context, name string) ([]refs.ReflogEntry, error) {
	f, err := os.Open(b.logPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	defer f.Close()

	var entries []refs.ReflogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, err := parseReflog(line)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan reflog: %w", err)
	}
	return entries, nil
}
