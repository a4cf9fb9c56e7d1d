package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordTokenizer_RoundTrip(t *testing.T) {
	cases := []string{
		"",
		"one",
		"one two three",
		"spaced   out\twords",
		"line one\nline two\n\nline three",
		" leading and trailing ",
	}
	tok := WordTokenizer{}
	for _, input := range cases {
		pieces := tok.Encode(input)
		assert.Equal(t, input, concat(pieces), "pieces must concatenate to the input: %q", input)
	}
}

func TestWordTokenizer_Counts(t *testing.T) {
	tok := WordTokenizer{}
	assert.Len(t, tok.Encode("one two three"), 3)
	assert.Len(t, tok.Encode("single"), 1)
	assert.Empty(t, tok.Encode(""))
}

func TestWordTokenizer_PiecesStartWords(t *testing.T) {
	tok := WordTokenizer{}
	pieces := tok.Encode("alpha beta gamma")
	assert.Equal(t, []string{"alpha ", "beta ", "gamma"}, pieces)
}

func TestWordTokenizer_LongText(t *testing.T) {
	words := make([]string, 500)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")
	assert.Len(t, WordTokenizer{}.Encode(text), 500)
}
