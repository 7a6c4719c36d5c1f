package perception

import (
	"strings"

	"github.com/BaSui01/cortexflow/types"
)

// EncodeFeatures builds the per-modality feature bundle attached to a
// percept. Image and audio inputs carry text descriptions here, so they
// run through the text encoder; code gets structural metrics; the
// multimodal encoder adds a cross-modal section on top.
func EncodeFeatures(p *types.Percept) map[string]any {
	switch p.Modality {
	case types.ModalityCode:
		return encodeCode(p)
	case types.ModalityMultimodal:
		return encodeMultimodal(p)
	default:
		return encodeText(p)
	}
}

// ---------- text ----------

var topicIndicators = map[string][]string{
	"technology": {"code", "programming", "software", "algorithm", "data", "ai", "machine learning"},
	"science":    {"research", "experiment", "hypothesis", "theory", "analysis", "study"},
	"business":   {"strategy", "marketing", "sales", "revenue", "profit", "management"},
	"personal":   {"feel", "think", "believe", "experience", "personal", "myself"},
	"creative":   {"design", "art", "creative", "imagine", "inspire", "beautiful"},
}

var (
	abstractWords      = []string{"concept", "idea", "theory", "principle", "philosophy", "abstract", "general"}
	concreteWords      = []string{"table", "chair", "car", "house", "book", "computer", "specific"}
	questionWords      = []string{"what", "how", "why", "when", "where", "who", "which"}
	imperativeMarkers  = []string{"please", "can you", "help me", "do this", "make"}
	politenessMarkers  = []string{"please", "thank you", "thanks", "appreciate", "sorry", "excuse me"}
	uncertaintyMarkers = []string{"maybe", "perhaps", "might", "could", "possibly", "unclear", "not sure"}
	confidenceMarkers  = []string{"definitely", "certainly", "sure", "absolutely", "clearly", "obviously"}
	tonePositive       = []string{"good", "great", "excellent", "amazing", "wonderful", "love", "like", "happy"}
	toneNegative       = []string{"bad", "terrible", "awful", "hate", "dislike", "sad", "angry", "frustrated"}
	toneNeutral        = []string{"okay", "fine", "normal", "average", "standard"}
	technicalTerms     = []string{"algorithm", "function", "variable", "parameter", "method", "class", "object"}
)

func encodeText(p *types.Percept) map[string]any {
	lower := strings.ToLower(p.RawText)

	topicScores := map[string]float64{}
	for topic, keywords := range topicIndicators {
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		topicScores["topic_"+topic] = float64(hits) / float64(len(keywords))
	}
	abstractness := abstractnessScore(lower)

	sentences := strings.Split(p.RawText, ".")
	totalWords := 0
	for _, s := range sentences {
		totalWords += len(strings.Fields(s))
	}
	words := strings.Fields(p.RawText)
	unique := map[string]struct{}{}
	wordLen := 0
	for _, w := range words {
		unique[strings.ToLower(w)] = struct{}{}
		wordLen += len(w)
	}

	return map[string]any{
		"modality": "text",
		"semantic_features": map[string]any{
			"topic_scores": topicScores,
			"abstractness": abstractness,
			"concreteness": 1.0 - abstractness,
		},
		"syntactic_features": map[string]any{
			"avg_sentence_length": float64(totalWords) / float64(max(1, len(sentences))),
			"is_question":         strings.Contains(p.RawText, "?"),
			"question_word_count": countContained(lower, questionWords),
			"is_imperative":       containsAnyWord(lower, imperativeMarkers),
			"sentence_count":      len(sentences),
		},
		"linguistic_features": map[string]any{
			"vocabulary_richness":  float64(len(unique)) / float64(max(1, len(words))),
			"avg_word_length":      float64(wordLen) / float64(max(1, len(words))),
			"technical_term_count": countContained(lower, technicalTerms),
			"total_words":          len(words),
			"unique_words":         len(unique),
		},
		"contextual_features": map[string]any{
			"politeness_score":  countContained(lower, politenessMarkers),
			"uncertainty_score": countContained(lower, uncertaintyMarkers),
			"confidence_score":  countContained(lower, confidenceMarkers),
			"emotional_tone":    emotionalTone(lower),
		},
	}
}

func abstractnessScore(lower string) float64 {
	abstract := countContained(lower, abstractWords)
	concrete := countContained(lower, concreteWords)
	total := abstract + concrete
	if total == 0 {
		return 0.0
	}
	return float64(abstract) / float64(total)
}

func emotionalTone(lower string) string {
	pos := countContained(lower, tonePositive)
	neg := countContained(lower, toneNegative)
	neu := countContained(lower, toneNeutral)
	switch {
	case pos > neg && pos > neu:
		return "positive"
	case neg > pos && neg > neu:
		return "negative"
	default:
		return "neutral"
	}
}

// ---------- code ----------

var languageIndicators = map[string][]string{
	"python":     {"def ", "import ", "class ", "if __name__", "print(", "lambda "},
	"javascript": {"function ", "const ", "let ", "var ", "=>", "console.log"},
	"java":       {"public class", "public static void", "System.out.println", "private "},
	"cpp":        {"#include", "int main()", "std::", "namespace ", "class "},
	"go":         {"func ", "package ", ":= ", "go func", "chan ", "defer "},
	"sql":        {"SELECT ", "FROM ", "WHERE ", "INSERT ", "UPDATE ", "DELETE "},
}

var controlFlowKeywords = []string{"if", "elif", "else", "for", "while", "try", "except", "case", "switch"}

func encodeCode(p *types.Percept) map[string]any {
	text := p.RawText
	lines := strings.Split(text, "\n")

	// Language detection: winner over rule-based indicator score tables.
	languageScores := map[string]float64{}
	bestLang, bestScore := "unknown", 0.0
	for lang, indicators := range languageIndicators {
		hits := 0
		for _, ind := range indicators {
			if strings.Contains(text, ind) {
				hits++
			}
		}
		score := float64(hits) / float64(len(indicators))
		languageScores[lang] = score
		if score > bestScore {
			bestLang, bestScore = lang, score
		}
	}

	nonEmpty, commentLines := 0, 0
	indentSum, indentMax, indented := 0, 0, 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonEmpty++
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			commentLines++
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		indentSum += indent
		indented++
		if indent > indentMax {
			indentMax = indent
		}
	}

	controlFlow := 0
	for _, kw := range controlFlowKeywords {
		controlFlow += strings.Count(text, kw)
	}
	functionCount := 0
	for _, pat := range []string{"def ", "function ", "func ", "public ", "private ", "protected "} {
		functionCount += strings.Count(text, pat)
	}
	variableCount := 0
	for _, pat := range []string{"=", "let ", "const ", "var ", "int ", "string ", "float "} {
		variableCount += strings.Count(text, pat)
	}

	return map[string]any{
		"modality": "code",
		"language_features": map[string]any{
			"detected_language": bestLang,
			"language_scores":   languageScores,
			"confidence":        bestScore,
		},
		"structure_features": map[string]any{
			"total_lines":     len(lines),
			"non_empty_lines": nonEmpty,
			"comment_lines":   commentLines,
			"comment_ratio":   float64(commentLines) / float64(max(1, nonEmpty)),
			"avg_indentation": float64(indentSum) / float64(max(1, indented)),
			"max_indentation": indentMax,
		},
		"complexity_features": map[string]any{
			"control_flow_count": controlFlow,
			"function_count":     functionCount,
			"variable_count":     variableCount,
			"complexity_score":   float64(controlFlow+functionCount) / float64(max(1, len(lines))),
		},
	}
}

// ---------- multimodal ----------

func encodeMultimodal(p *types.Percept) map[string]any {
	var features map[string]any
	if strings.Contains(p.RawText, "```") {
		features = encodeCode(p)
	} else {
		features = encodeText(p)
	}
	features["modality"] = "multimodal"

	hasCode := strings.Contains(p.RawText, "```") || strings.Contains(p.RawText, "`")
	hasText := len(strings.Fields(p.RawText)) > 10
	features["cross_modal_features"] = map[string]any{
		"has_code":         hasCode,
		"has_text":         hasText,
		"is_mixed_content": hasCode && hasText,
		"content_balance":  contentBalance(p.RawText),
	}
	return features
}

func contentBalance(text string) float64 {
	codeBlocks := strings.Count(text, "```")
	inlineCode := strings.Count(text, "`") - codeBlocks*2
	textContent := len(strings.Fields(text))
	if textContent == 0 {
		return 0.0
	}
	ratio := float64(codeBlocks+inlineCode) / float64(textContent)
	if ratio > 1.0 {
		ratio = 1.0
	}
	return ratio
}
