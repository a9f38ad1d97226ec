package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Notify   NotifyConfig
	Relay    RelayConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Database: loadDatabaseConfig(),
		Notify:   loadNotifyConfig(),
		Relay:    relay,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
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

// DatabaseConfig 描述通话记录持久化配置。
type DatabaseConfig struct {
	URL string
}

// Enabled 表示是否配置了数据库连接串。
func (c DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}
}

// NotifyConfig 描述通话转写邮件通知配置。
type NotifyConfig struct {
	APIKey string
	From   string
	To     string
}

// Enabled 表示是否提供了必需的密钥和收件人。
func (c NotifyConfig) Enabled() bool {
	return c.APIKey != "" && c.To != ""
}

func loadNotifyConfig() NotifyConfig {
	return NotifyConfig{
		APIKey: strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		From:   getEnvOrDefault("NOTIFY_FROM", "WebGlow Support <onboarding@resend.dev>"),
		To:     strings.TrimSpace(os.Getenv("NOTIFY_TO")),
	}
}

// RelayConfig 描述通话会话中继的心跳与清理参数。
type RelayConfig struct {
	KeepAliveInterval time.Duration
	SessionTimeout    time.Duration
	ReconnectGrace    time.Duration
}

func loadRelayConfig() (RelayConfig, error) {
	keepAlive, err := parseDurationSecondsEnv("RELAY_KEEP_ALIVE_INTERVAL", 20*time.Second)
	if err != nil {
		return RelayConfig{}, err
	}

	timeout, err := parseDurationSecondsEnv("RELAY_SESSION_TIMEOUT", 60*time.Second)
	if err != nil {
		return RelayConfig{}, err
	}

	grace, err := parseDurationSecondsEnv("RELAY_RECONNECT_GRACE", 30*time.Second)
	if err != nil {
		return RelayConfig{}, err
	}

	return RelayConfig{
		KeepAliveInterval: keepAlive,
		SessionTimeout:    timeout,
		ReconnectGrace:    grace,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseDurationSecondsEnv 以秒为单位解析时间类配置。
func parseDurationSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if seconds < 1 {
		return 0, fmt.Errorf("invalid %s value %q: must be at least 1 second", key, raw)
	}
	return time.Duration(seconds) * time.Second, nil
}
