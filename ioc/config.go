package ioc

import (
	"os"

	"pdssp-crawler/internal/app"
)

const defaultConfigPath = "configs/config.yaml"

// ConfigEnv 指定配置文件路径的环境变量。
const ConfigEnv = "CRAWLER_CONFIG"

// InitConfig 读取应用配置。
func InitConfig() (app.Config, error) {
	path := defaultConfigPath
	if p := os.Getenv(ConfigEnv); p != "" {
		path = p
	}
	return app.LoadConfig(path)
}
