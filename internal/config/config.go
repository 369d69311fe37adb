package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Directory DirectoryConfig
	Storage   StorageConfig
}

// fileConfig is the optional YAML file named by APP_CONFIG_FILE. Environment
// variables override every field.
type fileConfig struct {
	Port      string `yaml:"port"`
	Directory struct {
		BaseURL string `yaml:"baseURL"`
		Page    int    `yaml:"page"`
		APIKey  string `yaml:"apiKey"`
		Timeout int    `yaml:"timeoutSeconds"`
	} `yaml:"directory"`
	Storage struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		Key    string `yaml:"key"`
	} `yaml:"storage"`
}

// Load 从环境变量加载配置，APP_CONFIG_FILE 指定的 YAML 文件提供默认值。
func Load() (*Config, error) {
	file, err := loadFile(strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")))
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig(file)
	if err != nil {
		return nil, err
	}

	directory, err := loadDirectoryConfig(file)
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig(file)
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Directory: directory, Storage: storage}, nil
}

func loadFile(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(file fileConfig) (ServerConfig, error) {
	port := getEnvOrDefault("PORT", strings.TrimSpace(file.Port))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// DirectoryConfig 描述远端用户目录服务。
type DirectoryConfig struct {
	BaseURL string
	Page    int
	APIKey  string
	Timeout time.Duration
}

func loadDirectoryConfig(file fileConfig) (DirectoryConfig, error) {
	page := 2
	if file.Directory.Page != 0 {
		page = file.Directory.Page
	}
	if override, err := parseOptionalIntEnv("DIRECTORY_PAGE"); err != nil {
		return DirectoryConfig{}, err
	} else if override != nil {
		page = *override
	}
	if page < 1 {
		return DirectoryConfig{}, fmt.Errorf("invalid DIRECTORY_PAGE value %d: must be >= 1", page)
	}

	timeoutSeconds := 15 // 默认15秒
	if file.Directory.Timeout != 0 {
		timeoutSeconds = file.Directory.Timeout
	}
	if override, err := parseOptionalIntEnv("DIRECTORY_TIMEOUT"); err != nil {
		return DirectoryConfig{}, err
	} else if override != nil {
		timeoutSeconds = *override
	}
	if timeoutSeconds < 1 {
		return DirectoryConfig{}, fmt.Errorf("invalid DIRECTORY_TIMEOUT value %d: must be >= 1", timeoutSeconds)
	}

	baseURL := file.Directory.BaseURL
	if baseURL == "" {
		baseURL = "https://reqres.in/api"
	}

	return DirectoryConfig{
		BaseURL: getEnvOrDefault("DIRECTORY_BASE_URL", baseURL),
		Page:    page,
		APIKey:  getEnvOrDefault("DIRECTORY_API_KEY", file.Directory.APIKey),
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// StorageConfig 描述收藏列表的本地持久化。
type StorageConfig struct {
	Driver string
	Path   string
	Key    string
}

func loadStorageConfig(file fileConfig) (StorageConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", orDefault(file.Storage.Driver, "sqlite")))
	if driver != "sqlite" && driver != "memory" {
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_DRIVER value %q: want sqlite or memory", driver)
	}

	return StorageConfig{
		Driver: driver,
		Path:   getEnvOrDefault("STORAGE_PATH", orDefault(file.Storage.Path, "favorites.db")),
		Key:    getEnvOrDefault("FAVORITES_KEY", orDefault(file.Storage.Key, "favorites")),
	}, nil
}

func orDefault(value, defaultValue string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
