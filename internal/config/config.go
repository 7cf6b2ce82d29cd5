// Package config 提供了 DNS 编排平台的配置管理功能。
// 该包负责从 YAML 配置文件加载配置，并支持通过环境变量覆盖敏感配置项（如密码和密钥）。
// 配置在进程启动时构造一次，以显式引用传入各组件的构造函数，不存在进程级可变全局。
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是应用程序的主配置结构体，包含所有子系统的配置。
// 该结构体通过 YAML 标签与配置文件进行映射。
type Config struct {
	// Server HTTP 服务器配置
	Server ServerConfig `yaml:"server"`
	// Storage 存储配置，包括 PostgreSQL 和 Redis 连接信息
	Storage StorageConfig `yaml:"storage"`
	// Queue 任务队列配置（NATS JetStream）
	Queue QueueConfig `yaml:"queue"`
	// Worker 开通工作进程配置
	Worker WorkerConfig `yaml:"worker"`
	// Reconciler 滞留请求巡检配置
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	// Provisioner 开通动作配置
	Provisioner ProvisionerConfig `yaml:"provisioner"`
	// Bridge 消息接入桥配置
	Bridge BridgeConfig `yaml:"bridge"`
	// Auth 认证配置
	Auth AuthConfig `yaml:"auth"`
	// Logging 日志配置
	Logging LoggingConfig `yaml:"logging"`
	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics"`
	// Telemetry 分布式追踪配置
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig HTTP 服务器配置结构体。
type ServerConfig struct {
	// HTTPPort 主服务端口
	// 默认值：8080
	HTTPPort int `yaml:"http_port"`
	// MetricsPort 指标端口；与主端口不同时单独起一个指标服务器
	// 默认值：9090
	MetricsPort int `yaml:"metrics_port"`
	// ShutdownTimeout 优雅关闭的等待时间
	// 默认值：15 秒
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig 存储配置结构体。
type StorageConfig struct {
	// Postgres PostgreSQL 数据库配置
	Postgres PostgresConfig `yaml:"postgres"`
	// Redis Redis 配置
	Redis RedisConfig `yaml:"redis"`
}

// PostgresConfig PostgreSQL 数据库配置结构体。
type PostgresConfig struct {
	// Host 数据库主机地址
	Host string `yaml:"host"`
	// Port 数据库端口号
	Port int `yaml:"port"`
	// Database 数据库名称
	Database string `yaml:"database"`
	// User 数据库用户名
	User string `yaml:"user"`
	// Password 数据库密码，可通过环境变量 DNSFLOW_POSTGRES_PASSWORD 或
	// DNSFLOW_POSTGRES_PASSWORD_FILE（文件路径）覆盖
	Password string `yaml:"password"`
	// SSLMode TLS 模式（disable/require/verify-full）
	SSLMode string `yaml:"ssl_mode"`
	// MaxConnections 最大连接数
	MaxConnections int `yaml:"max_connections"`
}

// RedisConfig Redis 配置结构体。
type RedisConfig struct {
	// Address Redis 服务器地址，格式为 "host:port"
	Address string `yaml:"address"`
	// Password Redis 密码，可通过环境变量 DNSFLOW_REDIS_PASSWORD 或
	// DNSFLOW_REDIS_PASSWORD_FILE（文件路径）覆盖
	Password string `yaml:"password"`
	// DB Redis 数据库编号（0-15）
	DB int `yaml:"db"`
	// StatusCacheTTL 终态请求状态缓存的保留时间
	// 默认值：10 分钟
	StatusCacheTTL time.Duration `yaml:"status_cache_ttl"`
}

// QueueConfig 任务队列配置结构体。
type QueueConfig struct {
	// NatsURL NATS 消息服务器 URL，如 "nats://localhost:4222"
	NatsURL string `yaml:"nats_url"`
}

// WorkerConfig 开通工作进程配置结构体。
type WorkerConfig struct {
	// Workers 并发消费协程数，与 API 并发度独立配置
	// 默认值：4
	Workers int `yaml:"workers"`
	// ProvisionTimeout 单次开通动作的超时时间，超时按失败处理
	// 默认值：60 秒
	ProvisionTimeout time.Duration `yaml:"provision_timeout"`
	// CommitRetries 终态提交失败后的状态/日志补写重试次数
	// 默认值：3
	CommitRetries int `yaml:"commit_retries"`
	// CommitBackoff 补写重试间隔
	// 默认值：500 毫秒
	CommitBackoff time.Duration `yaml:"commit_backoff"`
	// MetricsPort 工作进程的指标端口
	// 默认值：9091
	MetricsPort int `yaml:"metrics_port"`
}

// ReconcilerConfig 滞留请求巡检配置结构体。
// 巡检周期性扫描长期停留在 PENDING 的请求并重新入队，
// 兜底投递丢失的任务；幂等保护保证重复投递无副作用。
type ReconcilerConfig struct {
	// Enabled 是否启用巡检
	Enabled bool `yaml:"enabled"`
	// Interval 巡检周期
	// 默认值：1 分钟
	Interval time.Duration `yaml:"interval"`
	// PendingAge PENDING 超过该时长的请求才会被重新入队
	// 默认值：5 分钟
	PendingAge time.Duration `yaml:"pending_age"`
	// BatchSize 单次巡检最多重新入队的请求数
	// 默认值：100
	BatchSize int `yaml:"batch_size"`
	// LeaseTTL 多副本间互斥的 Redis 租约时长
	// 默认值：2 分钟
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// ProvisionerConfig 开通动作配置结构体。
// Command 指定实际执行开通的外部命令（如 ansible-playbook 的封装脚本）；
// 为空时使用模拟模式，等待 SimulateDelay 后返回成功。
type ProvisionerConfig struct {
	// Command 外部开通命令
	Command string `yaml:"command"`
	// Args 传给命令的固定参数
	Args []string `yaml:"args"`
	// SimulateDelay 模拟模式下的执行耗时
	// 默认值：2 秒
	SimulateDelay time.Duration `yaml:"simulate_delay"`
}

// BridgeConfig 消息接入桥配置结构体。
type BridgeConfig struct {
	// GatewayURL 提交接口所在网关的基础地址
	// 默认值：http://localhost:8080
	GatewayURL string `yaml:"gateway_url"`
	// DefaultAccountID 消息缺少 account_id 时使用的兜底账户
	// 默认值：default_account
	DefaultAccountID string `yaml:"default_account_id"`
}

// AuthConfig 认证配置结构体。
type AuthConfig struct {
	// Enabled 是否在 API 上启用 Bearer Token 校验
	Enabled bool `yaml:"enabled"`
	// JWTSecret HMAC 签名密钥，可通过环境变量 DNSFLOW_AUTH_JWT_SECRET 或
	// DNSFLOW_AUTH_JWT_SECRET_FILE（文件路径）覆盖
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig 日志配置结构体。
type LoggingConfig struct {
	// Level 日志级别，可选值：debug、info、warn、error
	Level string `yaml:"level"`
	// Format 日志格式，可选值：json、text
	Format string `yaml:"format"`
}

// MetricsConfig 指标配置结构体。
type MetricsConfig struct {
	// Enabled 是否启用指标收集
	Enabled bool `yaml:"enabled"`
	// Namespace 指标命名空间前缀
	// 默认值：dnsflow
	Namespace string `yaml:"namespace"`
}

// TelemetryConfig 遥测配置结构体，支持 OpenTelemetry 协议。
type TelemetryConfig struct {
	// Enabled 是否启用遥测
	Enabled bool `yaml:"enabled"`
	// Endpoint OTLP gRPC 端点地址（如 "tempo:4317"）
	Endpoint string `yaml:"endpoint"`
	// ServiceName 服务名称，用于标识追踪数据来源
	ServiceName string `yaml:"service_name"`
	// SampleRate 采样率（0.0-1.0）
	SampleRate float64 `yaml:"sample_rate"`
	// Environment 环境标识（dev/staging/prod）
	Environment string `yaml:"environment"`
}

// Load 从指定路径加载 YAML 配置文件。
// 加载后依次应用默认值和环境变量覆盖。
//
// 参数：
//   - path: 配置文件的路径
//
// 返回值：
//   - *Config: 加载并处理后的配置对象
//   - error: 如果读取或解析失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides 应用环境变量覆盖。
// 敏感配置项支持两种方式：
//  1. 直接设置环境变量（如 DNSFLOW_POSTGRES_PASSWORD）
//  2. 通过 _FILE 后缀指定包含密钥的文件路径（如 DNSFLOW_POSTGRES_PASSWORD_FILE）
//
// _FILE 方式优先级更高，适用于 Docker Secrets 等场景。
func (c *Config) applyEnvOverrides() {
	if v := readEnvOrFile("DNSFLOW_POSTGRES_PASSWORD", "DNSFLOW_POSTGRES_PASSWORD_FILE"); v != "" {
		c.Storage.Postgres.Password = v
	}
	if v := readEnvOrFile("DNSFLOW_REDIS_PASSWORD", "DNSFLOW_REDIS_PASSWORD_FILE"); v != "" {
		c.Storage.Redis.Password = v
	}
	if v := readEnvOrFile("DNSFLOW_AUTH_JWT_SECRET", "DNSFLOW_AUTH_JWT_SECRET_FILE"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("DNSFLOW_NATS_URL")); v != "" {
		c.Queue.NatsURL = v
	}
}

// readEnvOrFile 从环境变量或文件读取配置值。
// 优先从 fileKey 指定的文件路径读取；文件不存在或读取失败时，
// 回退到 envKey 指定的环境变量。
func readEnvOrFile(envKey, fileKey string) string {
	if filePath := strings.TrimSpace(os.Getenv(fileKey)); filePath != "" {
		if b, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return strings.TrimSpace(os.Getenv(envKey))
}

// applyDefaults 应用默认配置值。
// 该方法为未设置的配置项填充合理的默认值，确保应用可以正常运行。
func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	if c.Storage.Postgres.Host == "" {
		c.Storage.Postgres.Host = "localhost"
	}
	if c.Storage.Postgres.Port == 0 {
		c.Storage.Postgres.Port = 5432
	}
	if c.Storage.Postgres.Database == "" {
		c.Storage.Postgres.Database = "dnsflow"
	}
	if c.Storage.Postgres.User == "" {
		c.Storage.Postgres.User = "dnsflow"
	}
	if c.Storage.Postgres.SSLMode == "" {
		c.Storage.Postgres.SSLMode = "disable"
	}
	if c.Storage.Postgres.MaxConnections == 0 {
		c.Storage.Postgres.MaxConnections = 20
	}

	if c.Storage.Redis.Address == "" {
		c.Storage.Redis.Address = "localhost:6379"
	}
	if c.Storage.Redis.StatusCacheTTL == 0 {
		c.Storage.Redis.StatusCacheTTL = 10 * time.Minute
	}

	if c.Queue.NatsURL == "" {
		c.Queue.NatsURL = "nats://localhost:4222"
	}

	if c.Worker.Workers == 0 {
		c.Worker.Workers = 4
	}
	if c.Worker.ProvisionTimeout == 0 {
		c.Worker.ProvisionTimeout = 60 * time.Second
	}
	if c.Worker.CommitRetries == 0 {
		c.Worker.CommitRetries = 3
	}
	if c.Worker.CommitBackoff == 0 {
		c.Worker.CommitBackoff = 500 * time.Millisecond
	}
	if c.Worker.MetricsPort == 0 {
		c.Worker.MetricsPort = 9091
	}

	if c.Reconciler.Interval == 0 {
		c.Reconciler.Interval = time.Minute
	}
	if c.Reconciler.PendingAge == 0 {
		c.Reconciler.PendingAge = 5 * time.Minute
	}
	if c.Reconciler.BatchSize == 0 {
		c.Reconciler.BatchSize = 100
	}
	if c.Reconciler.LeaseTTL == 0 {
		c.Reconciler.LeaseTTL = 2 * time.Minute
	}

	if c.Provisioner.SimulateDelay == 0 {
		c.Provisioner.SimulateDelay = 2 * time.Second
	}

	if c.Bridge.GatewayURL == "" {
		c.Bridge.GatewayURL = "http://localhost:8080"
	}
	if c.Bridge.DefaultAccountID == "" {
		c.Bridge.DefaultAccountID = "default_account"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "dnsflow"
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "dnsflow"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 0.1
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = "dev"
	}
}
