package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

const (
	clsTokenID       = 101
	sepTokenID       = 102
	vocabSize        = 30522
	firstWordID      = 1000
	defaultMaxTokens = 256
)

// Encoding is the model input for one text, padded to a fixed length.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Tokenizer turns text into BERT-style model input.
type Tokenizer interface {
	Encode(text string, maxTokens int) Encoding
}

// HashTokenizer maps words into the BERT vocabulary range by hashing. It has no
// vocabulary file, so IDs do not match the model's WordPiece IDs.
type HashTokenizer struct{}

// Encode wraps the hashed words in [CLS] and [SEP] and zero-pads to maxTokens.
func (HashTokenizer) Encode(text string, maxTokens int) Encoding {
	if maxTokens < 2 {
		maxTokens = defaultMaxTokens
	}
	enc := Encoding{
		InputIDs:      make([]int64, maxTokens),
		AttentionMask: make([]int64, maxTokens),
		TokenTypeIDs:  make([]int64, maxTokens),
	}
	n := 0
	put := func(id int64) {
		enc.InputIDs[n] = id
		enc.AttentionMask[n] = 1
		n++
	}
	put(clsTokenID)
	for _, word := range SplitWords(text) {
		if n == maxTokens-1 {
			break
		}
		put(firstWordID + int64(HashString(word)%(vocabSize-firstWordID)))
	}
	put(sepTokenID)
	return enc
}

// SplitWords lowercases text and splits it into letter/digit runs. Returns nil for
// text without words.
func SplitWords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), isSeparator)
	if len(words) == 0 {
		return nil
	}
	return words
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// HashString returns the non-negative FNV-1a hash of s.
func HashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() & 0x7fffffff)
}
