package embedding

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClipTokenizer_Tokenize(t *testing.T) {
	tok, err := NewClipTokenizer("")
	if err != nil {
		t.Fatal(err)
	}
	ids, mask := tok.Tokenize("A dog, running!", 10)
	if len(ids) != 10 || len(mask) != 10 {
		t.Fatalf("lengths: ids=%d mask=%d", len(ids), len(mask))
	}
	if ids[0] != clipStartToken {
		t.Errorf("expected start token, got %d", ids[0])
	}
	if ids[4] != clipEndToken {
		t.Errorf("expected end token at 4, got %d", ids[4])
	}
	for i := 1; i < 4; i++ {
		if ids[i] <= 0 || ids[i] >= clipStartToken {
			t.Errorf("token %d out of range: %d", i, ids[i])
		}
	}
	if mask[4] != 1 || mask[5] != 0 || ids[5] != 0 {
		t.Errorf("padding: ids=%v mask=%v", ids, mask)
	}
}

func TestClipTokenizer_truncates(t *testing.T) {
	tok, _ := NewClipTokenizer("")
	ids, _ := tok.Tokenize("one two three four five six", 4)
	if ids[0] != clipStartToken || ids[3] != clipEndToken {
		t.Errorf("got %v", ids)
	}
}

func TestClipTokenizer_vocab(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte("!\n\"\ncat</w>\ndog</w>\n"), 0644); err != nil {
		t.Fatal(err)
	}
	tok, err := NewClipTokenizer(path)
	if err != nil {
		t.Fatal(err)
	}
	ids, _ := tok.Tokenize("Cat dog", 8)
	if ids[1] != 2 || ids[2] != 3 {
		t.Errorf("vocab lookup: got %v", ids[:4])
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  a, b\tc-d  ")
	if len(words) != 4 {
		t.Errorf("expected 4 words, got %v", words)
	}
	if len(SplitWords("")) != 0 {
		t.Error("empty string should return no words")
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
}
