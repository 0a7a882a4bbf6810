package textutil

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestSentences(t *testing.T) {
	cases := map[string][]string{
		"One. Two? Three!":         {"One.", "Two?", "Three!"},
		"First sentence. trailing": {"First sentence.", "trailing"},
		"no punctuation at all":    {"no punctuation at all"},
		"Wait!! Ok.":               {"Wait!", "Ok."},
		"   ":                      {},
	}
	for in, want := range cases {
		got := Sentences(in)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Sentences(%q) mismatch (-want +got):\n%s", in, diff)
		}
	}
}

func TestContentTokensDropsStopwords(t *testing.T) {
	got := ContentTokens("What is the ruling on Fasting in Ramadan 2024?")
	assert.Equal(t, []string{"ruling", "fasting", "ramadan", "2024"}, got)
}

func TestOchiai(t *testing.T) {
	q := TokenSet("fasting ramadan")
	assert.InDelta(t, 1.0, Ochiai(q, "Ramadan fasting"), 1e-9)
	assert.InDelta(t, 1/math.Sqrt(2*2), Ochiai(q, "fasting rules"), 1e-9)
	assert.Zero(t, Ochiai(q, "unrelated words"))
	assert.Zero(t, Ochiai(map[string]struct{}{}, "anything"))
}

func TestOverlap(t *testing.T) {
	q := TokenSet("prayer times")
	assert.Equal(t, 2, Overlap(q, "Prayer times vary; prayer is obligatory."))
	assert.Equal(t, 0, Overlap(q, "nothing here"))
}
