package perception

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/cortexflow/types"
)

func TestDetectModalityPriority(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  types.ModalityType
	}{
		{"plain text", "What is the capital of France?", types.ModalityText},
		{"fenced code", "Review this:\n```\nx = 1\n```", types.ModalityCode},
		{"python keyword", "def handler(request): pass", types.ModalityCode},
		{"image extension", "look at diagram.png for details", types.ModalityImage},
		{"audio extension", "transcribe meeting.mp3 for me", types.ModalityAudio},
		// code wins over image when both appear
		{"code beats image", "```py\nopen('x.png')\n```", types.ModalityCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectModality(tt.input))
		})
	}
}

func TestProcessBuildsPercept(t *testing.T) {
	adapter := NewAdapter(nil, nil)
	percept, err := adapter.Process(context.Background(), "Hello, world!", map[string]any{
		"user_id":    "u1",
		"session_id": "s1",
	})
	require.NoError(t, err)

	assert.Equal(t, types.ModalityText, percept.Modality)
	assert.Len(t, percept.Embedding, types.EmbeddingDim)
	assert.Equal(t, "u1", percept.UserID)
	assert.Equal(t, "s1", percept.SessionID)
	assert.NotEmpty(t, percept.Tokens)
	assert.NotNil(t, percept.Features)
}

func TestHashEmbeddingDeterministic(t *testing.T) {
	adapter := NewAdapter(nil, nil)
	a, err := adapter.Process(context.Background(), "same input", nil)
	require.NoError(t, err)
	b, err := adapter.Process(context.Background(), "same input", nil)
	require.NoError(t, err)
	assert.Equal(t, a.Embedding, b.Embedding)

	c, err := adapter.Process(context.Background(), "different input", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Embedding, c.Embedding)

	for _, v := range a.Embedding {
		assert.GreaterOrEqual(t, v, float32(0.0))
		assert.LessOrEqual(t, v, float32(1.0))
	}
}

func TestExtractIntentFeatures(t *testing.T) {
	adapter := NewAdapter(nil, nil)
	percept, err := adapter.Process(context.Background(),
		"Please help me understand this algorithm urgently?", nil)
	require.NoError(t, err)

	features := ExtractIntentFeatures(percept)
	assert.True(t, features.HasQuestion)
	assert.True(t, features.HasImperative)
	assert.True(t, features.HasTechnicalTerms)
	assert.Equal(t, 1, features.SentimentIndicators.Urgent)
	assert.GreaterOrEqual(t, features.ComplexityScore, 0.0)
	assert.LessOrEqual(t, features.ComplexityScore, 1.0)
}

func TestEncodeTextFeatures(t *testing.T) {
	adapter := NewAdapter(nil, nil)
	percept, err := adapter.Process(context.Background(),
		"I definitely love this great software design. What do you think?", nil)
	require.NoError(t, err)

	features := percept.Features
	assert.Equal(t, "text", features["modality"])

	contextual := features["contextual_features"].(map[string]any)
	assert.Equal(t, "positive", contextual["emotional_tone"])
	assert.Equal(t, 1, contextual["confidence_score"])

	syntactic := features["syntactic_features"].(map[string]any)
	assert.Equal(t, true, syntactic["is_question"])
}

func TestEncodeCodeFeatures(t *testing.T) {
	code := "def add(a, b):\n    # sum two values\n    if a > 0:\n        return a + b\n    return b\n"
	adapter := NewAdapter(nil, nil)
	percept, err := adapter.Process(context.Background(), code, nil)
	require.NoError(t, err)
	require.Equal(t, types.ModalityCode, percept.Modality)

	lang := percept.Features["language_features"].(map[string]any)
	assert.Equal(t, "python", lang["detected_language"])

	structure := percept.Features["structure_features"].(map[string]any)
	assert.Equal(t, 1, structure["comment_lines"])
	assert.Greater(t, structure["max_indentation"].(int), 0)
}

func TestTokenizeLowercasesText(t *testing.T) {
	tokens := Tokenize("Hello World!", types.ModalityText)
	assert.Equal(t, []string{"hello", "world", "!"}, tokens)

	codeTokens := Tokenize("FooBar()", types.ModalityCode)
	assert.Contains(t, codeTokens, "FooBar")
}
