package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/llm"
	"github.com/BaSui01/cortexflow/types"
)

var classificationTypes = []string{"Emotional", "Logical", "Strategic", "Creative", "Factual", "Reflective"}

// Classifier assigns a primary query type, secondary labels with
// confidences and a reasoning depth through a strict-JSON LLM prompt.
type Classifier struct {
	gateway      *llm.Gateway
	preprocessor *Preprocessor
	logger       *zap.Logger
}

// NewClassifier creates a query classifier.
func NewClassifier(gateway *llm.Gateway, preprocessor *Preprocessor, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		gateway:      gateway,
		preprocessor: preprocessor,
		logger:       logger.With(zap.String("component", "classifier")),
	}
}

type classifierReply struct {
	Intent           string             `json:"intent"`
	QueryType        string             `json:"query_type"`
	Labels           []string           `json:"labels"`
	LabelConfidences map[string]float64 `json:"label_confidences"`
	Content          string             `json:"content"`
	Metadata         map[string]any     `json:"metadata"`
	Confidence       any                `json:"confidence"` // models sometimes quote the number
	ReasoningDepth   string             `json:"reasoning_depth"`
}

// Classify runs the strict-JSON classification. On JSON failure the
// result degrades to intent="parse_error" with the raw response kept in
// metadata; on LLM failure to intent="error". Downstream components
// then apply their defaults (logical type, auto depth).
func (c *Classifier) Classify(ctx context.Context, text, memoryContext, userID string) types.StructuredQuery {
	pre := c.preprocessor.Preprocess(ctx, userID, text)
	preJSON, _ := json.Marshal(pre)

	if memoryContext == "" {
		memoryContext = "No recent memory context available."
	}

	prompt := fmt.Sprintf(`You are an advanced AI query classifier. Your task is to analyze user input, integrate relevant memory context, and classify the query. Support multi-label routing: a query may map to multiple of: %s.

Additionally, you must extract the core intent, the main content, and any relevant metadata. Assign: (a) an overall confidence (0.0-1.0), (b) per-label confidences, and (c) a suggested reasoning_depth of "shallow" or "deep".

Memory Context:
%s

Pre-Context (user, time, recent memory, environment):
%s

User Query: %s

Please provide your response in a JSON format with the following keys:
{
    "intent": "main intent of the query (e.g., 'get_information', 'solve_problem', 'express_emotion')",
    "query_type": "primary type (one of %s)",
    "labels": ["zero or more secondary labels, subset of the same types"],
    "label_confidences": {"Logical": 0.85, "Emotional": 0.65},
    "content": "the core content or subject of the query",
    "metadata": {
        "source": "user_input",
        "context_summary": "brief summary of memory context if relevant"
    },
    "confidence": "a float between 0.0 and 1.0 representing overall classification confidence",
    "reasoning_depth": "one of shallow | deep | auto"
}
`, strings.Join(classificationTypes, ", "), memoryContext, preJSON, text, strings.Join(classificationTypes, ", "))

	response, err := c.gateway.Complete(ctx, prompt)
	if err != nil {
		c.logger.Warn("classifier LLM error", zap.Error(err))
		return types.StructuredQuery{
			Intent:         "error",
			Content:        text,
			Metadata:       map[string]any{"error": err.Error()},
			Confidence:     0.0,
			ReasoningDepth: types.DepthAuto,
		}
	}

	payload := extractJSONObject(response)
	var reply classifierReply
	if payload == "" || json.Unmarshal([]byte(payload), &reply) != nil {
		c.logger.Warn("classifier returned non-JSON response",
			zap.String("response_head", truncate(response, 120)))
		return types.StructuredQuery{
			Intent:         "parse_error",
			Content:        text,
			Metadata:       map[string]any{"raw_response": response},
			Confidence:     0.0,
			ReasoningDepth: types.DepthAuto,
		}
	}

	labels := make([]string, 0, len(reply.Labels))
	for _, label := range reply.Labels {
		labels = append(labels, strings.ToLower(strings.TrimSpace(label)))
	}
	labelConfidences := map[string]float64{}
	for label, conf := range reply.LabelConfidences {
		labelConfidences[strings.ToLower(strings.TrimSpace(label))] = conf
	}

	depth := types.ReasoningDepth(strings.ToLower(reply.ReasoningDepth))
	switch depth {
	case types.DepthShallow, types.DepthDeep, types.DepthAuto:
	default:
		depth = types.DepthAuto
	}

	content := reply.Content
	if content == "" {
		content = text
	}
	intent := reply.Intent
	if intent == "" {
		intent = "unknown"
	}

	return types.StructuredQuery{
		Intent:           intent,
		QueryType:        types.QueryType(strings.ToLower(strings.TrimSpace(reply.QueryType))),
		Content:          content,
		Metadata:         reply.Metadata,
		Confidence:       parseConfidence(reply.Confidence),
		Labels:           labels,
		LabelConfidences: labelConfidences,
		ReasoningDepth:   depth,
	}
}

func parseConfidence(v any) float64 {
	switch c := v.(type) {
	case float64:
		return clamp01(c)
	case string:
		var f float64
		if _, err := fmt.Sscanf(c, "%f", &f); err == nil {
			return clamp01(f)
		}
	}
	return 0.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
