package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gv 在 repo 目录下执行一条命令，返回标准输出
func gv(t *testing.T, repo string, args ...string) (string, error) {
	t.Helper()
	root, e := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"-C", repo}, args...))
	err := root.ExecuteContext(context.Background())
	require.NoError(t, e.close())
	return stdout.String(), err
}

func mustGV(t *testing.T, repo string, args ...string) string {
	t.Helper()
	out, err := gv(t, repo, args...)
	require.NoError(t, err, "gv %s", strings.Join(args, " "))
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newRepo 隔离 HOME，避免读到开发机上的 ~/.gv/config.yaml
func newRepo(t *testing.T, extra ...string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GV_USER_NAME", "Tester")
	t.Setenv("GV_USER_EMAIL", "tester@example.com")
	repo := t.TempDir()
	out := mustGV(t, repo, append([]string{"init"}, extra...)...)
	require.Contains(t, out, "Initialized empty gitvault repository")
	return repo
}

func TestInit_Reinit(t *testing.T) {
	repo := newRepo(t, "--hash", "sha1")
	assert.FileExists(t, filepath.Join(repo, ".gv", "config.yaml"))

	out := mustGV(t, repo, "init")
	assert.Contains(t, out, "Reinitialized")

	// 算法不能改
	_, err := gv(t, repo, "init", "--hash", "sha256")
	assert.Error(t, err)

	out = mustGV(t, repo, "symbolic-ref", "HEAD")
	assert.Equal(t, "refs/heads/main\n", out)
}

func TestCommands_NotRepository(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := gv(t, t.TempDir(), "log")
	assert.ErrorContains(t, err, "not a gitvault repository")
}

func TestIntegration_CommitBranchMerge(t *testing.T) {
	repo := newRepo(t)

	writeFile(t, filepath.Join(repo, "a.txt"), "alpha\n")
	writeFile(t, filepath.Join(repo, "dir", "b.txt"), "beta\n")
	writeFile(t, filepath.Join(repo, "debug.log"), "noise\n")
	writeFile(t, filepath.Join(repo, ".gvignore"), "*.log\n")

	out := mustGV(t, repo, "add", repo)
	assert.Contains(t, out, "Added 3 files")

	out = mustGV(t, repo, "commit", "-m", "first")
	assert.Contains(t, out, "[main (root-commit)")

	// 没有变化
	out = mustGV(t, repo, "commit", "-m", "again")
	assert.Contains(t, out, "nothing to commit")

	first := strings.TrimSpace(mustGV(t, repo, "rev-parse", "HEAD"))
	assert.Len(t, first, 64)
	assert.Equal(t, "commit\n", mustGV(t, repo, "cat", "-t", "main"))

	blob := strings.TrimSpace(mustGV(t, repo, "hash-object", filepath.Join(repo, "a.txt")))
	assert.Equal(t, "alpha\n", mustGV(t, repo, "cat", "-p", blob[:10]))

	// feature 分支改 dir/b.txt
	mustGV(t, repo, "branch", "feature")
	mustGV(t, repo, "symbolic-ref", "HEAD", "refs/heads/feature")
	writeFile(t, filepath.Join(repo, "dir", "b.txt"), "beta on feature\n")
	mustGV(t, repo, "add", filepath.Join(repo, "dir"))
	mustGV(t, repo, "commit", "-m", "feature change")

	// main 改 a.txt
	mustGV(t, repo, "symbolic-ref", "HEAD", "refs/heads/main")
	mustGV(t, repo, "export", "--index", "main", repo)
	assert.Equal(t, "beta\n", readFile(t, filepath.Join(repo, "dir", "b.txt")))
	writeFile(t, filepath.Join(repo, "a.txt"), "alpha on main\n")
	mustGV(t, repo, "add", filepath.Join(repo, "a.txt"))
	mustGV(t, repo, "commit", "-m", "main change")

	base := strings.TrimSpace(mustGV(t, repo, "merge-base", "main", "feature"))
	assert.Equal(t, first, base)

	_, err := gv(t, repo, "merge-base", "--is-ancestor", "main", "feature")
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.Code)
	mustGV(t, repo, "merge-base", "--is-ancestor", first, "feature")

	out = mustGV(t, repo, "merge", "feature")
	assert.Contains(t, out, "Merge made by the three-way strategy")

	out = mustGV(t, repo, "log", "--oneline", "--topo-order")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Merge feature")
	assert.Contains(t, lines[3], "first")

	out = mustGV(t, repo, "log", "--first-parent", "--oneline")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)

	out = mustGV(t, repo, "log", "-n", "1")
	assert.Contains(t, out, "Merge: ")
	assert.Contains(t, out, "Author: Tester <tester@example.com>")

	// 合并结果同时包含两边的修改
	outDir := t.TempDir()
	mustGV(t, repo, "export", "main", outDir)
	assert.Equal(t, "alpha on main\n", readFile(t, filepath.Join(outDir, "a.txt")))
	assert.Equal(t, "beta on feature\n", readFile(t, filepath.Join(outDir, "dir", "b.txt")))
	assert.NoFileExists(t, filepath.Join(outDir, "debug.log"))

	// 再合并一次什么都不做
	out = mustGV(t, repo, "merge", "feature")
	assert.Contains(t, out, "Already up to date.")

	out = mustGV(t, repo, "branch")
	assert.Contains(t, out, "* main")
	assert.Contains(t, out, "  feature")

	out = mustGV(t, repo, "reflog", "main")
	assert.Contains(t, out, "main@{0}: merge feature")
	assert.Contains(t, out, "commit (initial): first")
}

func TestIntegration_RefsAndTags(t *testing.T) {
	repo := newRepo(t)
	writeFile(t, filepath.Join(repo, "f"), "1")
	mustGV(t, repo, "add", filepath.Join(repo, "f"))
	mustGV(t, repo, "commit", "-m", "one")
	id := strings.TrimSpace(mustGV(t, repo, "rev-parse", "main"))

	// update-ref 带 old 值的 CAS
	mustGV(t, repo, "update-ref", "refs/heads/copy", id, strings.Repeat("0", 64))
	_, err := gv(t, repo, "update-ref", "refs/heads/copy", id, strings.Repeat("0", 64))
	assert.ErrorContains(t, err, "changed concurrently")

	mustGV(t, repo, "tag", "light")
	mustGV(t, repo, "tag", "-m", "release one", "v1")
	assert.Equal(t, "light\nv1\n", mustGV(t, repo, "tag"))

	tagID := strings.TrimSpace(mustGV(t, repo, "rev-parse", "v1"))
	assert.NotEqual(t, id, tagID)
	assert.Equal(t, "tag\n", mustGV(t, repo, "cat", "-t", "v1"))
	assert.Contains(t, mustGV(t, repo, "cat", "v1"), "release one")
	assert.Equal(t, id+"\n", mustGV(t, repo, "rev-parse", "light"))

	mustGV(t, repo, "branch", "-m", "copy", "renamed")
	out := mustGV(t, repo, "branch")
	assert.Contains(t, out, "renamed")
	assert.NotContains(t, out, "copy")

	mustGV(t, repo, "branch", "-d", "renamed")
	mustGV(t, repo, "tag", "-d", "light")
	assert.Equal(t, "v1\n", mustGV(t, repo, "tag"))

	mustGV(t, repo, "update-ref", "-d", "refs/heads/main", id)
	out = mustGV(t, repo, "log")
	assert.Contains(t, out, "No commits yet.")
}

func TestIntegration_PackRoundTrip(t *testing.T) {
	src := newRepo(t)
	writeFile(t, filepath.Join(src, "data", "x.bin"), strings.Repeat("x", 10_000))
	mustGV(t, src, "add", src)
	mustGV(t, src, "commit", "-m", "data")
	id := strings.TrimSpace(mustGV(t, src, "rev-parse", "HEAD"))

	packFile := filepath.Join(t.TempDir(), "out.gvpk")
	mustGV(t, src, "pack", "export", "-o", packFile, "main")

	dst := t.TempDir()
	mustGV(t, dst, "init")
	out := mustGV(t, dst, "pack", "import", packFile)
	assert.Contains(t, out, "Imported 4 objects")

	mustGV(t, dst, "update-ref", "refs/heads/main", id)
	out = mustGV(t, dst, "log", "--oneline")
	assert.Contains(t, out, "data")
}

func TestIntegration_ImportGit(t *testing.T) {
	gitDir := t.TempDir()
	r, err := git.PlainInit(gitDir, false)
	require.NoError(t, err)
	wt, err := r.Worktree()
	require.NoError(t, err)
	writeFile(t, filepath.Join(gitDir, "hello.txt"), "from git\n")
	_, err = wt.Add("hello.txt")
	require.NoError(t, err)
	_, err = wt.Commit("imported\n", &git.CommitOptions{
		Author: &object.Signature{Name: "Git User", Email: "git@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(t, err)

	repo := newRepo(t)
	out := mustGV(t, repo, "import-git", gitDir)
	assert.Contains(t, out, "refs/heads/master")

	out = mustGV(t, repo, "log", "--oneline", "master")
	assert.Contains(t, out, "imported")
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
