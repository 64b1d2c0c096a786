package ignore

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 仓库根目录下的忽略规则文件
const FileName = ".gvignore"

// Matcher 封装了忽略逻辑
// 它负责判断一个路径在快照工作目录时是否应该被跳过
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// defaultRules 系统级默认规则，总是生效
var defaultRules = []string{
	// 仓库元数据目录，快照时绝不能递归进去
	".gv",
	".git",

	// 常见垃圾文件
	".DS_Store",
	"Thumbs.db",
}

// NewMatcher 初始化忽略匹配器
// rootPath: 仓库根目录（用于查找 .gvignore 文件）
func NewMatcher(rootPath string) (*Matcher, error) {
	ignoreFilePath := filepath.Join(rootPath, FileName)

	if _, err := os.Stat(ignoreFilePath); err != nil {
		// 用户没定义 .gvignore，仅编译默认规则
		return &Matcher{ignorer: gitignore.CompileIgnoreLines(defaultRules...)}, nil
	}

	// 文件内容和默认规则合并编译
	ignorer, err := gitignore.CompileIgnoreFileAndLines(ignoreFilePath, defaultRules...)
	if err != nil {
		return nil, err
	}
	return &Matcher{ignorer: ignorer}, nil
}

// FromLines 直接从规则行构建 (导出、测试用)，默认规则同样生效
func FromLines(lines ...string) *Matcher {
	return &Matcher{ignorer: gitignore.CompileIgnoreLines(append(append([]string(nil), defaultRules...), lines...)...)}
}

// Matches 检查给定的路径是否匹配忽略规则
// path: 相对于仓库根目录的路径，使用 / 分隔 (例如 "data/model.bin")
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(filepath.ToSlash(path))
}

// MatchesDir 目录版本；"build/" 这类只针对目录的规则需要带尾部斜杠才能匹配
func (m *Matcher) MatchesDir(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	p := strings.TrimSuffix(filepath.ToSlash(path), "/")
	return m.ignorer.MatchesPath(p) || m.ignorer.MatchesPath(p+"/")
}
