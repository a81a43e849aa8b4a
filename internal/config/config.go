package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	arkembedding "github.com/cloudwego/eino-ext/components/embedding/ark"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Graph  GraphConfig
	Agent  AgentConfig
}

// Load 从环境变量加载配置。凭证缺失属于初始化期的致命错误，由 Validate 报告。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	agent, err := loadAgentConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		AI:     ai,
		Graph:  loadGraphConfig(),
		Agent:  agent,
	}, nil
}

// Validate 检查必需的外部凭证。失败时服务不应启动。
func (c *Config) Validate() error {
	var missing []string
	if !c.AI.Enabled() {
		missing = append(missing, "ARK_API_KEY(或 AK/SK)+ARK_MODEL")
	}
	if c.Graph.URI == "" || c.Graph.Password == "" {
		missing = append(missing, "NEO4J_URI+NEO4J_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型与向量化相关配置。
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	EmbeddingModel string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled 表示是否提供了必需的模型凭证。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个聊天模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// NewEmbedder 使用配置创建向量化模型实例，用于情景记忆检索。
func (c AIConfig) NewEmbedder(ctx context.Context) (embedding.Embedder, error) {
	if c.EmbeddingModel == "" {
		return nil, fmt.Errorf("ARK_EMBEDDING_MODEL 未配置")
	}

	return arkembedding.NewEmbedder(ctx, &arkembedding.EmbeddingConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.EmbeddingModel,
	})
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("ARK_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("ARK_MODEL")),
		EmbeddingModel: strings.TrimSpace(os.Getenv("ARK_EMBEDDING_MODEL")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}

// GraphConfig 描述 Neo4j 连接配置。
type GraphConfig struct {
	URI      string
	Username string
	Password string
}

func loadGraphConfig() GraphConfig {
	return GraphConfig{
		URI:      strings.TrimSpace(os.Getenv("NEO4J_URI")),
		Username: getEnvOrDefault("NEO4J_USER", "neo4j"),
		Password: strings.TrimSpace(os.Getenv("NEO4J_PASSWORD")),
	}
}

// AgentConfig 控制回合流水线与性格进化的参数。
type AgentConfig struct {
	EvolutionRate   float64 // 单次更新每维的最大变化量
	MaxDrift        float64 // 相对基础人设允许的最大偏移
	HistoryLimit    int     // 构建模型上下文时保留的最近消息数
	RetrievalK      int     // 向量检索条数
	GraphLimit      int     // 图谱子图检索条数
	EvolverLLM      bool    // 是否启用 LLM 性格分析（失败仍回退规则）
	PreferenceLimit int
}

func loadAgentConfig() (AgentConfig, error) {
	cfg := AgentConfig{
		EvolutionRate:   0.05,
		MaxDrift:        0.2,
		HistoryLimit:    20,
		RetrievalK:      3,
		GraphLimit:      10,
		PreferenceLimit: 5,
	}

	if v, err := parseOptionalFloatEnv("AGENT_EVOLUTION_RATE"); err != nil {
		return AgentConfig{}, err
	} else if v != nil {
		cfg.EvolutionRate = *v
	}

	if v, err := parseOptionalFloatEnv("AGENT_MAX_DRIFT"); err != nil {
		return AgentConfig{}, err
	} else if v != nil {
		cfg.MaxDrift = *v
	}

	if v, err := parseOptionalIntEnv("AGENT_HISTORY_LIMIT"); err != nil {
		return AgentConfig{}, err
	} else if v != nil && *v > 0 {
		cfg.HistoryLimit = *v
	}

	if v, err := parseOptionalIntEnv("AGENT_RETRIEVAL_K"); err != nil {
		return AgentConfig{}, err
	} else if v != nil && *v > 0 {
		cfg.RetrievalK = *v
	}

	if v, err := parseOptionalIntEnv("AGENT_GRAPH_LIMIT"); err != nil {
		return AgentConfig{}, err
	} else if v != nil && *v > 0 {
		cfg.GraphLimit = *v
	}

	evolverLLM, err := parseBoolEnv("AGENT_EVOLVER_LLM", true)
	if err != nil {
		return AgentConfig{}, err
	}
	cfg.EvolverLLM = evolverLLM

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
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
