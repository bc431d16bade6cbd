package report

import (
	"strings"
	"unicode"

	"github.com/go-dedup/simhash"
)

// DefaultThreshold 汉明距离 <= 该值的两条转写视为近似重复
const DefaultThreshold = 3

// transcriptFeatureSet 实现 simhash.FeatureSet 接口，用于转写文本的特征提取
type transcriptFeatureSet struct {
	text string
}

// GetFeatures 提取文本特征
// 使用词级 unigram + bigram 特征；大小写与标点不参与比较
func (t transcriptFeatureSet) GetFeatures() []simhash.Feature {
	words := strings.FieldsFunc(strings.ToLower(t.text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		return []simhash.Feature{}
	}

	features := make([]simhash.Feature, 0, 2*len(words))
	for i, w := range words {
		features = append(features, simhash.NewFeature([]byte(w)))
		if i > 0 {
			features = append(features, simhash.NewFeature([]byte(words[i-1]+" "+w)))
		}
	}
	return features
}

// Fingerprint 计算转写文本的 SimHash 指纹
func Fingerprint(text string) uint64 {
	return simhash.NewSimhash().GetSimhash(transcriptFeatureSet{text: text})
}

// Distance 返回两个指纹的汉明距离（0-64）
func Distance(a, b uint64) int {
	x := a ^ b
	count := 0
	for x != 0 {
		count++
		x &= x - 1
	}
	return count
}
