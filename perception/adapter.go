// Package perception normalizes raw input into Percepts: modality
// detection, tokenization, embedding and per-modality feature bundles.
package perception

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/llm/embedding"
	"github.com/BaSui01/cortexflow/types"
)

// Modality detection patterns, checked in priority order:
// code > image > audio > text.
var (
	codePatterns = []*regexp.Regexp{
		regexp.MustCompile("(?s)```.*?```"),
		regexp.MustCompile("`[^`]+`"),
		regexp.MustCompile(`(?i)def\s+\w+`),
		regexp.MustCompile(`(?i)function\s+\w+`),
		regexp.MustCompile(`(?i)class\s+\w+`),
		regexp.MustCompile(`(?i)import\s+\w+`),
		regexp.MustCompile(`#include\s*<`),
		regexp.MustCompile(`func\s+\w+\(`),
	}
	imagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|bmp|svg|webp)\b`),
		regexp.MustCompile(`(?i)\b(image|picture|photo|screenshot)\b`),
		regexp.MustCompile(`(?i)<img\s+src=`),
	}
	audioPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\.(mp3|wav|flac|aac|ogg|m4a)\b`),
		regexp.MustCompile(`(?i)\b(audio|sound|music|voice|speech)\b`),
		regexp.MustCompile(`(?i)\b(record|recording|listen)\b`),
	}

	tokenRE = regexp.MustCompile(`\w+|[^\w\s]`)
)

// Adapter turns raw input into immutable Percepts.
type Adapter struct {
	embedder embedding.Provider
	fallback *embedding.HashProvider
	logger   *zap.Logger
}

// NewAdapter creates a perception adapter. The embedder may be nil, in
// which case the deterministic hash fallback is used for every input.
func NewAdapter(embedder embedding.Provider, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		embedder: embedder,
		fallback: embedding.NewHashProvider(types.EmbeddingDim),
		logger:   logger.With(zap.String("component", "perception")),
	}
}

// Process creates a Percept from raw input and request metadata.
func (a *Adapter) Process(ctx context.Context, rawInput string, meta map[string]any) (*types.Percept, error) {
	if meta == nil {
		meta = map[string]any{}
	}

	modality := DetectModality(rawInput)
	tokens := Tokenize(rawInput, modality)

	vec := a.embed(ctx, rawInput)

	percept := &types.Percept{
		Modality:  modality,
		Embedding: vec,
		Tokens:    tokens,
		RawText:   rawInput,
		Meta:      meta,
		CreatedAt: time.Now(),
	}
	if s, ok := meta["session_id"].(string); ok {
		percept.SessionID = s
	}
	if u, ok := meta["user_id"].(string); ok {
		percept.UserID = u
	}
	if pf, ok := meta["privacy_flags"].(map[string]bool); ok {
		percept.PrivacyFlags = pf
	}

	percept.Features = EncodeFeatures(percept)
	return percept, nil
}

func (a *Adapter) embed(ctx context.Context, text string) []float32 {
	if a.embedder != nil {
		vec, err := a.embedder.Embed(ctx, text)
		if err == nil {
			return vec
		}
		a.logger.Warn("embedder failed, falling back to content hash", zap.Error(err))
	}
	vec, _ := a.fallback.Embed(ctx, text)
	return vec
}

// DetectModality chooses the primary modality in priority order.
func DetectModality(text string) types.ModalityType {
	if matchesAny(text, codePatterns) {
		return types.ModalityCode
	}
	if matchesAny(text, imagePatterns) {
		return types.ModalityImage
	}
	if matchesAny(text, audioPatterns) {
		return types.ModalityAudio
	}
	return types.ModalityText
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Tokenize splits input into word and punctuation tokens. Code keeps
// original casing; natural language is lowercased.
func Tokenize(text string, modality types.ModalityType) []string {
	if modality != types.ModalityCode {
		text = strings.ToLower(text)
	}
	return tokenRE.FindAllString(text, -1)
}

// SentimentIndicators counts basic sentiment cues.
type SentimentIndicators struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Urgent   int `json:"urgent"`
}

// IntentFeatures are the auxiliary features used by intent analysis.
type IntentFeatures struct {
	Length              int                 `json:"length"`
	TokenCount          int                 `json:"token_count"`
	Modality            types.ModalityType  `json:"modality"`
	HasQuestion         bool                `json:"has_question"`
	HasImperative       bool                `json:"has_imperative"`
	HasTechnicalTerms   bool                `json:"has_technical_terms"`
	SentimentIndicators SentimentIndicators `json:"sentiment_indicators"`
	ComplexityScore     float64             `json:"complexity_score"`
}

var (
	imperativeWords = []string{"please", "can you", "help", "do", "make"}
	technicalWords  = []string{"algorithm", "function", "code", "data", "model"}
	positiveWords   = []string{"good", "great", "excellent", "amazing", "wonderful", "love", "like"}
	negativeWords   = []string{"bad", "terrible", "awful", "hate", "dislike", "wrong", "error"}
	urgentWords     = []string{"urgent", "asap", "immediately", "critical", "important"}
)

// ExtractIntentFeatures computes the intent feature set for a percept.
func ExtractIntentFeatures(p *types.Percept) IntentFeatures {
	lower := strings.ToLower(p.RawText)
	return IntentFeatures{
		Length:            len(p.RawText),
		TokenCount:        len(p.Tokens),
		Modality:          p.Modality,
		HasQuestion:       strings.Contains(p.RawText, "?"),
		HasImperative:     containsAnyWord(lower, imperativeWords),
		HasTechnicalTerms: containsAnyWord(lower, technicalWords),
		SentimentIndicators: SentimentIndicators{
			Positive: countContained(lower, positiveWords),
			Negative: countContained(lower, negativeWords),
			Urgent:   countContained(lower, urgentWords),
		},
		ComplexityScore: complexityScore(p.RawText),
	}
}

func containsAnyWord(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func countContained(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

// complexityScore combines average sentence length with the share of
// long words, capped at 1.0.
func complexityScore(text string) float64 {
	sentences := strings.Split(text, ".")
	totalWords := 0
	for _, s := range sentences {
		totalWords += len(strings.Fields(s))
	}
	avgSentenceLength := float64(totalWords) / float64(max(1, len(sentences)))

	words := strings.Fields(text)
	complexWords := 0
	for _, w := range words {
		if len(w) > 6 {
			complexWords++
		}
	}
	complexRatio := float64(complexWords) / float64(max(1, len(words)))

	score := avgSentenceLength/20.0 + complexRatio
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
