package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("hello world", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths: %d %d %d", len(ids), len(attn), len(types))
	}
	if ids[0] != tokenCLS || ids[3] != tokenSEP {
		t.Errorf("layout: %v", ids)
	}
	for i, want := range []int64{1, 1, 1, 1, 0} {
		if attn[i] != want {
			t.Errorf("attention[%d] = %d, want %d", i, attn[i], want)
		}
	}
}

func TestSimpleTokenizer_truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("a b c d e f g h", 4)
	if ids[3] != tokenSEP || attn[3] != 1 {
		t.Errorf("last slot should hold SEP: %v", ids)
	}
}

func TestSimpleTokenizer_caseInsensitive(t *testing.T) {
	tok := &SimpleTokenizer{}
	a, _, _ := tok.Tokenize("Hello", 4)
	b, _, _ := tok.Tokenize("hello", 4)
	if a[1] != b[1] {
		t.Errorf("case should not change token ids: %d vs %d", a[1], b[1])
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  a  b\n c\t ")
	if len(words) != 3 {
		t.Errorf("expected 3 words, got %v", words)
	}
	if SplitWords("   ") != nil {
		t.Error("blank string should return nil")
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("abc") == HashString("abd") {
		t.Error("different inputs should hash differently")
	}
	if HashString("zzzzzzzzzzzzzzzzzzzz") < 0 {
		t.Error("hash should be non-negative")
	}
}
