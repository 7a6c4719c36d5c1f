// =============================================================================
// 📦 CortexFlow 配置
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/cortexflow/types"
)

// Config 是 CortexFlow 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Memory    MemoryConfig    `yaml:"memory"`
	Engine    EngineConfig    `yaml:"engine"`
	Gating    GatingConfig    `yaml:"gating"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	MetricsPort     int           `yaml:"metrics_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLMConfig 大语言模型网关配置
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // gemini | ollama | mock
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	RPM         int           `yaml:"rpm"` // 0 = unlimited
}

// EmbeddingConfig 嵌入配置
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // gemini | hash
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// MemoryConfig 记忆子系统配置
type MemoryConfig struct {
	Enabled               bool          `yaml:"enabled"`
	Path                  string        `yaml:"path"`
	MaxEntries            int           `yaml:"max_entries"`
	TopK                  int           `yaml:"top_k"`
	ChunkTokens           int           `yaml:"chunk_tokens"`
	NoveltyFloor          float64       `yaml:"novelty_floor"`
	TombstoneRebuildRatio float64       `yaml:"tombstone_rebuild_ratio"`
	ConsolidationWindow   time.Duration `yaml:"consolidation_window"`
	ConsolidationMinBatch int           `yaml:"consolidation_min_batch"`
	PruneMaxAge           time.Duration `yaml:"prune_max_age"`
	PruneMaxImportance    float64       `yaml:"prune_max_importance"`
	MaintenanceSchedule   string        `yaml:"maintenance_schedule"` // cron spec
}

// EngineConfig 编排器配置
type EngineConfig struct {
	MaxIterations         int        `yaml:"max_iterations"`
	DefaultMode           types.Mode `yaml:"default_mode"`
	EnableReflection      bool       `yaml:"enable_reflection"`
	CoherenceThreshold    float64    `yaml:"coherence_threshold"`
	CriticMaxAllowedIssues *int      `yaml:"critic_max_allowed_issues,omitempty"`
	MaxConcurrentAgents   int        `yaml:"max_concurrent_agents"`
	CoherentOnly          bool       `yaml:"coherent_only"`
}

// GatingConfig 门控配置
type GatingConfig struct {
	MinConfidenceThreshold float64 `yaml:"min_confidence_threshold"`
	MaxSpeculativeRatio    float64 `yaml:"max_speculative_ratio"`
	PriorityBoostFactor    float64 `yaml:"priority_boost_factor"`
	Adaptive               bool    `yaml:"adaptive"`
	MaxBudget              float64 `yaml:"max_budget"`
	BudgetDecayRate        float64 `yaml:"budget_decay_rate"`
}

// WorkspaceConfig 全局工作区与工作记忆配置
type WorkspaceConfig struct {
	MaxItems        int           `yaml:"max_items"`
	ItemTTL         time.Duration `yaml:"item_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	WMSlots         int           `yaml:"wm_slots"`
	WMDecayRate     float64       `yaml:"wm_decay_rate"`
}

// CacheConfig LLM 响应缓存配置
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
	File   string `yaml:"file"`
	Debug  bool   `yaml:"debug"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute, // streaming responses
			ShutdownTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "mock",
			Model:       "gemini-2.0-flash",
			Temperature: 0.7,
			MaxTokens:   2048,
			Timeout:     60 * time.Second,
			Retries:     5,
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Dimensions: types.EmbeddingDim,
		},
		Memory: MemoryConfig{
			Enabled:               true,
			Path:                  "memory",
			MaxEntries:            1000,
			TopK:                  5,
			ChunkTokens:           256,
			NoveltyFloor:          0.05,
			TombstoneRebuildRatio: 0.3,
			ConsolidationWindow:   24 * time.Hour,
			ConsolidationMinBatch: 3,
			PruneMaxAge:           30 * 24 * time.Hour,
			PruneMaxImportance:    0.3,
			MaintenanceSchedule:   "@hourly",
		},
		Engine: EngineConfig{
			MaxIterations:       5,
			DefaultMode:         types.ModeConcise,
			EnableReflection:    true,
			CoherenceThreshold:  0.85,
			MaxConcurrentAgents: 4,
		},
		Gating: GatingConfig{
			MinConfidenceThreshold: 0.3,
			MaxSpeculativeRatio:    0.5,
			PriorityBoostFactor:    1.2,
			MaxBudget:              100.0,
			BudgetDecayRate:        0.1,
		},
		Workspace: WorkspaceConfig{
			MaxItems:        1000,
			ItemTTL:         time.Hour,
			CleanupInterval: 5 * time.Minute,
			WMSlots:         7,
			WMDecayRate:     0.1,
		},
		Cache: CacheConfig{
			TTL: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load 加载配置: 默认值 → 可选 YAML → 环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, types.NewError(types.ErrConfig, fmt.Sprintf("read config file %s", path)).WithCause(err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, types.NewError(types.ErrConfig, "parse config file").WithCause(err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 应用环境变量覆盖（规范中列出的变量名）
func (c *Config) applyEnv() {
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setFloat(&c.LLM.Temperature, "LLM_TEMPERATURE")
	setInt(&c.LLM.MaxTokens, "LLM_MAX_TOKENS")
	setSeconds(&c.LLM.Timeout, "LLM_TIMEOUT_S")
	setInt(&c.LLM.Retries, "LLM_RETRIES")

	setString(&c.Embedding.APIKey, "EMBEDDING_API_KEY")
	setString(&c.Embedding.Provider, "EMBEDDING_PROVIDER")

	setBool(&c.Memory.Enabled, "MEMORY_ENABLED")
	setString(&c.Memory.Path, "MEMORY_PATH")
	setInt(&c.Memory.MaxEntries, "MAX_MEMORY_ENTRIES")

	setInt(&c.Engine.MaxIterations, "MAX_ITERATIONS")
	if v := os.Getenv("DEFAULT_MODE"); v != "" {
		c.Engine.DefaultMode = types.Mode(strings.ToLower(v))
	}
	setBool(&c.Engine.EnableReflection, "ENABLE_REFLECTION")
	setFloat(&c.Engine.CoherenceThreshold, "COHERENCE_THRESHOLD")
	if v := os.Getenv("CRITIC_MAX_ALLOWED_ISSUES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.CriticMaxAllowedIssues = &n
		}
	}
	setInt(&c.Engine.MaxConcurrentAgents, "MAX_CONCURRENT_AGENTS")

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.File, "LOG_FILE")
	setBool(&c.Log.Debug, "DEBUG")

	setString(&c.Cache.RedisAddr, "REDIS_ADDR")
}

// Validate 校验必需项。mock provider 允许离线运行。
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "mock", "ollama":
		// no credentials required
	case "gemini":
		if c.LLM.APIKey == "" {
			return types.NewError(types.ErrConfig,
				"no API key configured: set LLM_API_KEY or use LLM_PROVIDER=mock")
		}
	default:
		return types.NewError(types.ErrConfig,
			fmt.Sprintf("unknown LLM provider %q (want gemini|ollama|mock)", c.LLM.Provider))
	}

	if !types.ValidMode(c.Engine.DefaultMode) {
		return types.NewError(types.ErrConfig,
			fmt.Sprintf("invalid default mode %q", c.Engine.DefaultMode))
	}
	if c.Engine.MaxIterations < 1 {
		return types.NewError(types.ErrConfig, "max_iterations must be >= 1")
	}
	if c.Workspace.WMSlots < 1 {
		return types.NewError(types.ErrConfig, "wm_slots must be >= 1")
	}
	return nil
}

// IsConfigured 检查是否具备调用真实 LLM 的条件
func (c *Config) IsConfigured() bool {
	return c.LLM.Provider == "mock" || c.LLM.Provider == "ollama" || c.LLM.APIKey != ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setSeconds(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}
