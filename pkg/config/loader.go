package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix GV_STORAGE_TYPE -> storage.type
const EnvPrefix = "GV"

// Loader 持有私有的 viper 实例，不使用全局单例
type Loader struct {
	v *viper.Viper
}

func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// BindFlag 把 cobra flag 绑到某个配置键上
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("flag for %s is nil", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Set 覆盖一个键 (测试和 init 用)
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Load 读取配置
// cfgFile: 可选，用户显式指定的配置文件路径
func (l *Loader) Load(cfgFile string) (*Config, error) {
	v := l.v

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// 搜索顺序：
		// 1. <repo>/.gv
		// 2. 用户主目录下的 .gv
		v.AddConfigPath(filepath.Join(v.GetString("repo.path"), DirName))
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, DirName))
		}
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		// 没找到配置文件不算错，默认值和环境变量照样生效
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return nil, fmt.Errorf("fatal error config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	abs, err := filepath.Abs(cfg.Repo.Path)
	if err != nil {
		return nil, err
	}
	cfg.Repo.Path = abs

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFileUsed 为空表示没读到文件
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("repo.path", ".")
	v.SetDefault("hash.algorithm", "sha256")

	// 存储默认值
	v.SetDefault("storage.type", "disk")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.prefix", "objects/")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.cache.redis_url", "")
	v.SetDefault("storage.cache.ttl", 24*time.Hour)

	v.SetDefault("refs.backend", "files")
	v.SetDefault("refs.lock_wait", 2*time.Second)

	// 数据库默认值
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "gitvault")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.debug", false)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")

	v.SetDefault("user.name", "")
	v.SetDefault("user.email", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("merge.text_merge", true)
	v.SetDefault("limits.max_blob_bytes", 0)
}

// WriteRepoConfig 为新仓库写 .gv/config.yaml，只落盘仓库级的固定项
// 哈希算法在仓库创建后不能再改
func WriteRepoConfig(gvDir string, c *Config) error {
	v := viper.New()
	v.Set("hash.algorithm", orDefault(c.Hash.Algorithm, "sha256"))
	v.Set("refs.backend", orDefault(c.Refs.Backend, "files"))
	v.Set("storage.type", orDefault(c.Storage.Type, "disk"))
	return v.WriteConfigAs(filepath.Join(gvDir, "config.yaml"))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
