package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"

	"github.com/BaSui01/cortexflow/types"
)

// HashProvider is the deterministic content-hash embedder. It converts
// MD5 hex nibble pairs into values normalized to [0,1], right-padded
// with zeros (and truncated) to the configured dimension. Not a
// semantic embedding; it exists so the pipeline stays fully functional
// offline and in tests.
type HashProvider struct {
	dimensions int
}

// NewHashProvider 创建哈希嵌入器
func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = types.EmbeddingDim
	}
	return &HashProvider{dimensions: dimensions}
}

func (p *HashProvider) Name() string     { return "hash" }
func (p *HashProvider) Dimensions() int  { return p.dimensions }

// Embed 生成确定性伪嵌入
func (p *HashProvider) Embed(_ context.Context, text string) ([]float32, error) {
	sum := md5.Sum([]byte(text))
	hexDigest := hex.EncodeToString(sum[:])

	embedding := make([]float32, 0, p.dimensions)
	for i := 0; i+2 <= len(hexDigest) && len(embedding) < p.dimensions; i += 2 {
		var val int
		for _, c := range hexDigest[i : i+2] {
			val = val*16 + hexNibble(byte(c))
		}
		embedding = append(embedding, float32(val)/255.0)
	}
	for len(embedding) < p.dimensions {
		embedding = append(embedding, 0.0)
	}
	return embedding[:p.dimensions], nil
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return 0
	}
}
