package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/cortexflow/types"
)

// GeminiConfig 配置 Gemini 嵌入提供者.
type GeminiConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GeminiProvider 使用 Google Gemini API 执行嵌入.
// 注: Gemini 使用端点格式 /models/{model}:embedContent
type GeminiProvider struct {
	cfg    GeminiConfig
	client *http.Client
}

// NewGeminiProvider 创建新的 Gemini 嵌入提供者.
func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = types.EmbeddingDim
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &GeminiProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *GeminiProvider) Name() string    { return "gemini-embedding" }
func (p *GeminiProvider) Dimensions() int { return p.cfg.Dimensions }

type embedRequest struct {
	Model   string `json:"model"`
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
	OutputDimensionality int `json:"outputDimensionality,omitempty"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Embed 生成单条文本的嵌入
func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var req embedRequest
	req.Model = "models/" + p.cfg.Model
	req.Content.Parts = []struct {
		Text string `json:"text"`
	}{{Text: text}}
	req.OutputDimensionality = p.cfg.Dimensions

	payload, _ := json.Marshal(req)
	endpoint := fmt.Sprintf("%s/models/%s:embedContent", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "build embed request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "embed request failed").WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "read embed response").WithRetryable(true).WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("embed status %d", resp.StatusCode)).WithHTTPStatus(resp.StatusCode).WithRetryable(retryable)
	}

	var parsed embedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode embed response").WithCause(err)
	}
	if len(parsed.Embedding.Values) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "empty embedding")
	}

	// 维度对齐：截断或右侧补零
	values := parsed.Embedding.Values
	if len(values) > p.cfg.Dimensions {
		values = values[:p.cfg.Dimensions]
	}
	for len(values) < p.cfg.Dimensions {
		values = append(values, 0)
	}
	return values, nil
}
