// pkg/index/index.go
package index

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gitvault/pkg/core"
	"gitvault/pkg/types"
)

// Entry 代表暂存区中的一条记录
type Entry struct {
	Path       string        `json:"path"`        // 相对路径 (如 "data/model.bin")
	ID         types.Hash    `json:"id"`          // blob ID
	Mode       core.FileMode `json:"mode"`        // 文件模式
	Size       int64         `json:"size"`        // 文件大小
	ModifiedAt time.Time     `json:"modified_at"` // 暂存时间
}

// Index 管理暂存区状态，gv add 写入，gv commit / write-tree 读取
type Index struct {
	path    string           // 物理文件路径 (.gv/index)
	Entries map[string]Entry `json:"entries"`
	mu      sync.RWMutex
}

// NewIndex 加载或创建一个新的 Index
func NewIndex(indexPath string) (*Index, error) {
	idx := &Index{
		path:    indexPath,
		Entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(indexPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, idx); err != nil {
			return nil, fmt.Errorf("corrupted index file: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	return idx, nil
}

// Add 更新一条记录
func (i *Index) Add(path string, id types.Hash, mode core.FileMode, size int64) {
	key := CleanPath(path)
	if mode == 0 {
		mode = core.ModeFile
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	i.Entries[key] = Entry{
		Path:       key,
		ID:         id,
		Mode:       mode,
		Size:       size,
		ModifiedAt: time.Now(),
	}
}

// Save 将暂存区持久化到磁盘 (先写临时文件再 rename)
func (i *Index) Save() error {
	i.mu.RLock()
	data, err := json.MarshalIndent(i, "", "  ")
	i.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp := i.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, i.path)
}

// Snapshot 返回当前 Entry 的副本，用于并发安全的读取
func (i *Index) Snapshot() map[string]Entry {
	i.mu.RLock()
	defer i.mu.RUnlock()

	snap := make(map[string]Entry, len(i.Entries))
	maps.Copy(snap, i.Entries)
	return snap
}

// Paths 排好序的路径
func (i *Index) Paths() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return slices.Sorted(maps.Keys(i.Entries))
}

func (i *Index) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Entries = make(map[string]Entry)
}

// IsEmpty 检查暂存区是否有内容
func (i *Index) IsEmpty() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.Entries) == 0
}

func CleanPath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

func (i *Index) Remove(path string) {
	key := CleanPath(path)
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.Entries, key)
}
