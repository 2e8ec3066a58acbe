package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"pdssp-crawler/internal/ingest"
)

type Data struct {
	SourceDir string `yaml:"source_dir"`
	StacDir   string `yaml:"stac_dir"`
}

type Store struct {
	// Backend 取值 file 或 postgres。
	Backend      string `yaml:"backend"`
	Path         string `yaml:"path"`
	PostgresDSN  string `yaml:"postgres_dsn"`
	SnapshotName string `yaml:"snapshot_name"`
}

type Registry struct {
	URL      string `yaml:"url"`
	LocalDir string `yaml:"local_dir"`
}

type Retry struct {
	Attempts       int `yaml:"attempts"`
	BackoffSeconds int `yaml:"backoff_seconds"`
}

type Source struct {
	TimeoutSecond int   `yaml:"timeout_second"`
	QueryLimit    int   `yaml:"query_limit"`
	ExtractLimit  int   `yaml:"extract_limit"`
	Retry         Retry `yaml:"retry"`
}

type Destination struct {
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	TokenEnv      string `yaml:"token_env"`
	TimeoutSecond int    `yaml:"timeout_second"`
	SplitGeometry bool   `yaml:"split_geometry"`
	Strategy      string `yaml:"strategy"`
}

type HTTP struct {
	Listen string `yaml:"listen"`
}

type Job struct {
	Enabled   bool   `yaml:"enabled"`
	Cron      string `yaml:"cron"`
	Overwrite bool   `yaml:"overwrite"`
	// Target 只处理指定目标天体的集合，为空表示全部。
	Target string `yaml:"target"`
}

type Neo4j struct {
	Enabled              bool   `yaml:"enabled"`
	URI                  string `yaml:"uri"`
	Username             string `yaml:"username"`
	Password             string `yaml:"password"`
	Database             string `yaml:"database"`
	MaxConnectionPool    int    `yaml:"max_connections"`
	ConnectTimeoutSecond int    `yaml:"connect_timeout_second"`
	BatchSize            int    `yaml:"batch_size"`
}

type Config struct {
	LogLevel    string      `yaml:"log_level"`
	Data        Data        `yaml:"data"`
	Store       Store       `yaml:"store"`
	Registry    Registry    `yaml:"registry"`
	Source      Source      `yaml:"source"`
	Destination Destination `yaml:"destination"`
	HTTP        HTTP        `yaml:"http"`
	Job         Job         `yaml:"job"`
	Neo4j       Neo4j       `yaml:"neo4j"`
}

// LoadConfig 从文件加载配置并补齐默认值。
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("读取配置失败: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyDefaults 为未配置的字段填充默认值。
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Data.SourceDir == "" {
		c.Data.SourceDir = "data/extract"
	}
	if c.Data.StacDir == "" {
		c.Data.StacDir = "data/stac"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/collections_index.json"
	}
	if c.Store.SnapshotName == "" {
		c.Store.SnapshotName = "default"
	}
	if c.Source.TimeoutSecond <= 0 {
		c.Source.TimeoutSecond = 30
	}
	if c.Source.QueryLimit <= 0 {
		c.Source.QueryLimit = 100
	}
	if c.Source.Retry.Attempts <= 0 {
		c.Source.Retry.Attempts = 3
	}
	if c.Source.Retry.BackoffSeconds <= 0 {
		c.Source.Retry.BackoffSeconds = 2
	}
	if c.Destination.TokenEnv == "" {
		c.Destination.TokenEnv = ingest.DefaultTokenEnv
	}
	if c.Destination.TimeoutSecond <= 0 {
		c.Destination.TimeoutSecond = 60
	}
	if c.Destination.Strategy == "" {
		c.Destination.Strategy = string(ingest.StrategyBoth)
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8080"
	}
	if c.Job.Cron == "" {
		c.Job.Cron = "0 7 * * *"
	}
	if c.Neo4j.BatchSize <= 0 {
		c.Neo4j.BatchSize = 100
	}
}

// Validate 检查取值范围。
func (c Config) Validate() error {
	switch c.Store.Backend {
	case "file":
	case "postgres":
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return fmt.Errorf("store.postgres_dsn is required for postgres backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	if _, err := ingest.ParseStrategy(c.Destination.Strategy); err != nil {
		return fmt.Errorf("destination.strategy: %w", err)
	}
	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		return fmt.Errorf("neo4j.uri is required when neo4j is enabled")
	}
	return nil
}

// DestinationToken 优先使用配置中的 token，否则读取 token_env 指定的环境变量。
func (c Config) DestinationToken() string {
	if t := strings.TrimSpace(c.Destination.Token); t != "" {
		return t
	}
	return strings.TrimSpace(os.Getenv(c.Destination.TokenEnv))
}
