// Package config 加载 gitvault 的配置
// 优先级: 命令行 flag > 环境变量 (GV_*) > 配置文件 > 默认值
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"gitvault/pkg/logging"
	"gitvault/pkg/meta"
	"gitvault/pkg/storage/cache"
	"gitvault/pkg/storage/s3"
	"gitvault/pkg/types"
)

// DirName 仓库元数据目录
const DirName = ".gv"

type Config struct {
	Repo     RepoConfig     `mapstructure:"repo"`
	Hash     HashConfig     `mapstructure:"hash"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Refs     RefsConfig     `mapstructure:"refs"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	User     UserConfig     `mapstructure:"user"`
	Server   ServerConfig   `mapstructure:"server"`
	Merge    MergeConfig    `mapstructure:"merge"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

type RepoConfig struct {
	Path string `mapstructure:"path"` // 工作目录，.gv 位于其下
}

type HashConfig struct {
	Algorithm string `mapstructure:"algorithm"` // sha256 | sha1
}

type StorageConfig struct {
	Type  string      `mapstructure:"type"` // disk | s3 | memory
	Path  string      `mapstructure:"path"` // 空则为 .gv/objects
	S3    S3Config    `mapstructure:"s3"`
	Cache CacheConfig `mapstructure:"cache"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url"` // 空表示不启用
	TTL      time.Duration `mapstructure:"ttl"`
}

type RefsConfig struct {
	Backend  string        `mapstructure:"backend"` // files | sql
	LockWait time.Duration `mapstructure:"lock_wait"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres | sqlite
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Debug    bool   `mapstructure:"debug"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type UserConfig struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type MergeConfig struct {
	TextMerge bool `mapstructure:"text_merge"` // false 时任何双边修改都算冲突
}

type LimitsConfig struct {
	MaxBlobBytes int64 `mapstructure:"max_blob_bytes"`
}

// GvDir 仓库元数据目录的绝对路径
func (c *Config) GvDir() string {
	return filepath.Join(c.Repo.Path, DirName)
}

// ObjectsPath disk 后端的对象目录
func (c *Config) ObjectsPath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.GvDir(), "objects")
}

func (c *Config) IndexPath() string {
	return filepath.Join(c.GvDir(), "index")
}

func (c *Config) HashAlgo() (types.HashAlgo, error) {
	return types.ParseHashAlgo(c.Hash.Algorithm)
}

func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

func (c *Config) S3Config() s3.Config {
	return s3.Config{
		Endpoint:        c.Storage.S3.Endpoint,
		Region:          c.Storage.S3.Region,
		Bucket:          c.Storage.S3.Bucket,
		Prefix:          c.Storage.S3.Prefix,
		AccessKeyID:     c.Storage.S3.AccessKeyID,
		SecretAccessKey: c.Storage.S3.SecretAccessKey,
	}
}

func (c *Config) CacheConfig() cache.Config {
	return cache.Config{RedisURL: c.Storage.Cache.RedisURL, TTL: c.Storage.Cache.TTL}
}

// MetaConfig sqlite 未指定 dsn 时落在 .gv/meta.db
func (c *Config) MetaConfig() meta.Config {
	d := c.Database
	dsn := d.DSN
	if d.Driver == "sqlite" && dsn == "" {
		dsn = filepath.Join(c.GvDir(), "meta.db")
	}
	return meta.Config{
		Driver:   d.Driver,
		DSN:      dsn,
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		DBName:   d.DBName,
		SSLMode:  d.SSLMode,
		Debug:    d.Debug,
	}
}

// Validate 只检查组合是否合法，不触碰外部资源
func (c *Config) Validate() error {
	if _, err := c.HashAlgo(); err != nil {
		return err
	}
	switch c.Storage.Type {
	case "disk", "memory":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	switch c.Refs.Backend {
	case "files":
	case "sql":
		if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
			return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported refs backend: %s", c.Refs.Backend)
	}
	if c.Limits.MaxBlobBytes < 0 {
		return fmt.Errorf("limits.max_blob_bytes must not be negative")
	}
	return nil
}
