package trie

import (
	"testing"

	"github.com/authkv/authkv/common"
)

func TestPath_NibblesCoverTheKeyHash(t *testing.T) {
	key := []byte("some key")
	path := NewPath(key)
	hash := common.Keccak256(key)
	for depth := 0; depth < MaxDepth; depth++ {
		want := hash[depth/2] >> 4
		if depth%2 == 1 {
			want = hash[depth/2] & 0x0F
		}
		if got := path.Get(depth); got != Nibble(want) {
			t.Errorf("unexpected nibble %v at depth %d, wanted %X", got, depth, want)
		}
	}
}

func TestPath_IsDeterministic(t *testing.T) {
	if NewPath([]byte("key")) != NewPath([]byte("key")) {
		t.Errorf("the same key produced different paths")
	}
	if NewPath([]byte("key")) == NewPath([]byte("other")) {
		t.Errorf("different keys produced the same path")
	}
}

func TestNibble_Printing(t *testing.T) {
	if got := Nibble(0xB).String(); got != "B" {
		t.Errorf("unexpected print format %s", got)
	}
	if got := Nibble(42).String(); got != "?" {
		t.Errorf("out-of-range nibble should print as ?, got %s", got)
	}
}
