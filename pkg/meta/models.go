package meta

import (
	"time"

	"gorm.io/datatypes"
)

// RefModel 存储引用 (例如 "refs/heads/main" 或符号引用 "HEAD")
// 对应 files 后端的 refs/* 文件
type RefModel struct {
	// Name 是主键，例如 "HEAD" 或 "refs/heads/main"
	Name string `gorm:"primaryKey;type:varchar(255)"`

	// Target 直接引用指向的对象 ID，符号引用时为空
	Target string `gorm:"type:varchar(64)"`
	// Symref 符号引用的目标名，直接引用时为空
	Symref string `gorm:"type:varchar(255)"`

	// Version 用于乐观锁并发控制 (CAS)
	// 每次更新时 +1，防止并发覆盖
	Version int64 `gorm:"default:1"`

	UpdatedAt time.Time
}

func (RefModel) TableName() string {
	return "refs"
}

// ReflogModel 一条引用日志
type ReflogModel struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	Name    string `gorm:"index;type:varchar(255);not null"`
	OldID   string `gorm:"type:varchar(64)"`
	NewID   string `gorm:"type:varchar(64)"`
	Who     string `gorm:"type:varchar(255)"`
	Email   string `gorm:"type:varchar(255)"`
	Unix    int64
	Offset  int // 分钟
	Message string `gorm:"type:text"`
}

func (ReflogModel) TableName() string {
	return "reflogs"
}

// CommitModel 是 core.Commit 在关系型数据库中的投影 (索引)
// 用于快速查询历史，支持按作者、时间搜索
// 注意：为了避免跟 core.Commit 混淆，我们叫它 CommitModel
type CommitModel struct {
	// Hash 是主键
	Hash string `gorm:"primaryKey;type:varchar(64)"`

	// 基础元数据 (B-Tree 索引，适合排序和精确查找)
	Author      string `gorm:"index;type:varchar(100)"`
	AuthorEmail string `gorm:"type:varchar(255)"`
	Message     string `gorm:"type:text"`
	Timestamp   int64  `gorm:"index"` // 提交者时间，方便范围查询

	TreeHash string `gorm:"type:varchar(64)"`

	// Parents: ["hash1", "hash2"]，有序
	Parents datatypes.JSON

	// Generation 世代号，0 表示尚未计算
	Generation uint64 `gorm:"index"`

	CreatedAt time.Time
}

// TableName 强制指定表名
func (CommitModel) TableName() string {
	return "commits"
}

// allModels AutoMigrate 用
func allModels() []any {
	return []any{&RefModel{}, &ReflogModel{}, &CommitModel{}}
}
