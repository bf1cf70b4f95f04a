package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// CLIP special tokens and vocabulary size.
const (
	clipStartToken = 49406
	clipEndToken   = 49407
	clipVocabSize  = 49408
)

// Tokenizer produces token IDs and an attention mask for a text encoder.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64)
}

// ClipTokenizer maps lower-cased words to CLIP token IDs. Words are looked up in the
// vocabulary as whole words ("cat</w>"); unknown words hash into the regular ID range.
// It does not run byte-pair merges, so multi-piece words lose precision.
type ClipTokenizer struct {
	vocab map[string]int64
}

// NewClipTokenizer loads a vocabulary with one token per line, ID = line number.
// An empty path returns a hash-only tokenizer.
func NewClipTokenizer(vocabPath string) (*ClipTokenizer, error) {
	t := &ClipTokenizer{vocab: make(map[string]int64)}
	if vocabPath == "" {
		return t, nil
	}
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		if tok := strings.TrimSpace(scanner.Text()); tok != "" {
			t.vocab[tok] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	return t, nil
}

// Tokenize wraps the word tokens in start/end markers and pads with zeros to maxTokens.
func (t *ClipTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64) {
	if maxTokens <= 2 {
		maxTokens = 77
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)

	inputIDs[0] = clipStartToken
	attentionMask[0] = 1
	pos := 1
	for _, word := range SplitWords(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = t.lookup(word)
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = clipEndToken
	attentionMask[pos] = 1
	return inputIDs, attentionMask
}

func (t *ClipTokenizer) lookup(word string) int64 {
	if id, ok := t.vocab[word+"</w>"]; ok {
		return id
	}
	if id, ok := t.vocab[word]; ok {
		return id
	}
	// keep clear of 0 (padding) and the special tokens
	return 1 + int64(HashString(word)%(clipStartToken-1))
}

// SplitWords splits text into runs of letters and digits.
func SplitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// HashString returns a deterministic non-negative hash.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	if h < 0 { // -MinInt overflows back to itself
		h = 0
	}
	return h
}
