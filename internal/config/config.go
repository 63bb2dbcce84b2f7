package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config 描述了 marketd / marketctl 在启动阶段需要加载的全部配置。
type Config struct {
	Server       ServerConfig       `json:"server"`
	Metrics      MetricsConfig      `json:"metrics"`
	Logging      LoggingConfig      `json:"logging"`
	Web3         Web3Config         `json:"web3"`
	Deployment   DeploymentConfig   `json:"deployment"`
	Signer       SignerConfig       `json:"signer"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Breaker      BreakerConfig      `json:"breaker"`
	JobStore     JobStoreConfig     `json:"job_store"`
	JobQueue     JobQueueConfig     `json:"job_queue"`
	Alerting     AlertingConfig     `json:"alerting"`
}

// ServerConfig 控制 API 服务的监听地址与访问令牌。
// 令牌支持 ${ENV} 展开；没有令牌时服务拒绝启动，除非显式开启 AllowAnonymous。
type ServerConfig struct {
	Address        string   `json:"address"`
	APITokens      []string `json:"api_tokens"`
	AllowAnonymous bool     `json:"allow_anonymous"`
}

// MetricsConfig 控制 Prometheus 指标端口，地址为空时不启动。
type MetricsConfig struct {
	Address string `json:"address"`
}

// LoggingConfig 对应 pkg/logger 的配置项。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志的落盘与轮转。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// Web3Config 包含访问区块链节点所需的 RPC 地址。
type Web3Config struct {
	RPCURL       string `json:"rpc_url"`
	ChainConfig  string `json:"chain_config"`
	DefaultChain string `json:"default_chain"`
}

// DeploymentConfig 指向 {chainId}-deployment.json 所在目录。
type DeploymentConfig struct {
	Dir       string `json:"dir"`
	Multicall string `json:"multicall"`
}

// SignerConfig 描述运营账户私钥的来源。私钥本身从不写入配置文件。
type SignerConfig struct {
	PrivateKeyEnv string `json:"private_key_env"`
}

// OrchestratorConfig 控制跨链批量提交的默认参数。
type OrchestratorConfig struct {
	ConfirmTimeoutSeconds int    `json:"confirm_timeout_seconds"`
	CallbackGasLimit      uint64 `json:"callback_gas_limit"`
	FailureStrategy       string `json:"failure_strategy"`
	RoleTTLHours          int    `json:"role_ttl_hours"`
	Strategy              string `json:"strategy"`
	// GroupIDSource 取值 listing（默认，市场合约 getListGroupId）、
	// name（市场合约 getGroupId）或 local（本地推导）。
	GroupIDSource string `json:"group_id_source"`
}

// ConfirmTimeout 返回等待一次确认的超时时间。
func (o OrchestratorConfig) ConfirmTimeout() time.Duration {
	return time.Duration(o.ConfirmTimeoutSeconds) * time.Second
}

// RoleTTL 返回授予角色的有效期。
func (o OrchestratorConfig) RoleTTL() time.Duration {
	return time.Duration(o.RoleTTLHours) * time.Hour
}

// BreakerConfig 控制链上只读调用的熔断参数。
type BreakerConfig struct {
	MaxFailures     uint32 `json:"max_failures"`
	IntervalSeconds int    `json:"interval_seconds"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

// JobStoreConfig 选择任务状态的存储后端。
type JobStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxRetries             int    `json:"max_retries"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// JobQueueConfig 选择任务队列实现。
type JobQueueConfig struct {
	Driver   string              `json:"driver"`
	Workers  int                 `json:"workers"`
	Redis    RedisQueueConfig    `json:"redis"`
	RabbitMQ RabbitMQQueueConfig `json:"rabbitmq"`
}

// RedisQueueConfig 描述 Redis list 队列。
type RedisQueueConfig struct {
	Address       string `json:"address"`
	Password      string `json:"password"`
	DB            int    `json:"db"`
	Queue         string `json:"queue"`
	BlockWait     int    `json:"block_wait_seconds"`
	DeadLetter    string `json:"dead_letter_queue"`
	MaxDeliveries int    `json:"max_deliveries"`
}

// RabbitMQQueueConfig 描述 RabbitMQ 队列。
type RabbitMQQueueConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// AlertingConfig 描述终态失败时的告警出口。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = "127.0.0.1:8080"
	}
	tokens := c.Server.APITokens[:0]
	for _, token := range c.Server.APITokens {
		if token = strings.TrimSpace(os.ExpandEnv(token)); token != "" {
			tokens = append(tokens, token)
		}
	}
	c.Server.APITokens = tokens

	c.Web3.ChainConfig = resolvePath(baseDir, c.Web3.ChainConfig)

	if c.Deployment.Dir == "" {
		c.Deployment.Dir = filepath.Join(baseDir, "deployment")
	} else {
		c.Deployment.Dir = resolvePath(baseDir, c.Deployment.Dir)
	}

	if c.Signer.PrivateKeyEnv == "" {
		c.Signer.PrivateKeyEnv = "MARKET_OPERATOR_KEY"
	}

	if c.Orchestrator.ConfirmTimeoutSeconds <= 0 {
		c.Orchestrator.ConfirmTimeoutSeconds = 120
	}
	if c.Orchestrator.CallbackGasLimit == 0 {
		c.Orchestrator.CallbackGasLimit = 500_000
	}
	if c.Orchestrator.FailureStrategy == "" {
		c.Orchestrator.FailureStrategy = "skip_on_fail"
	}
	if c.Orchestrator.RoleTTLHours <= 0 {
		c.Orchestrator.RoleTTLHours = 365 * 24
	}
	if c.Orchestrator.Strategy == "" {
		c.Orchestrator.Strategy = "relay"
	}
	if c.Orchestrator.GroupIDSource == "" {
		c.Orchestrator.GroupIDSource = "listing"
	}

	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 5
	}
	if c.Breaker.IntervalSeconds <= 0 {
		c.Breaker.IntervalSeconds = 30
	}
	if c.Breaker.TimeoutSeconds <= 0 {
		c.Breaker.TimeoutSeconds = 15
	}

	if c.JobStore.Driver == "" {
		c.JobStore.Driver = "memory"
	}
	if c.JobStore.MaxRetries <= 0 {
		c.JobStore.MaxRetries = 3
	}

	if c.JobQueue.Driver == "" {
		c.JobQueue.Driver = "memory"
	}
	if c.JobQueue.Workers <= 0 {
		c.JobQueue.Workers = 1
	}

	if c.Logging.Audit.Enabled {
		if c.Logging.Audit.Path == "" {
			c.Logging.Audit.Path = filepath.Join(baseDir, "logs", "audit.log")
		} else {
			c.Logging.Audit.Path = resolvePath(baseDir, c.Logging.Audit.Path)
		}
	}
}

func (c *Config) validate() error {
	switch c.Orchestrator.Strategy {
	case "relay", "aggregate":
	default:
		return fmt.Errorf("未知的提交策略: %s", c.Orchestrator.Strategy)
	}
	switch c.Orchestrator.GroupIDSource {
	case "listing", "name", "local":
	default:
		return fmt.Errorf("未知的分组 ID 来源: %s", c.Orchestrator.GroupIDSource)
	}
	switch strings.ToLower(c.JobStore.Driver) {
	case "memory", "mysql":
	default:
		return fmt.Errorf("未知的任务存储驱动: %s", c.JobStore.Driver)
	}
	switch strings.ToLower(c.JobQueue.Driver) {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.JobQueue.Driver)
	}
	return nil
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
