package chunk

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer splits text into token pieces. The pieces must concatenate
// back to the exact input; that property is what lets the engine split
// and overlap on token boundaries without losing a byte of source text.
type Tokenizer interface {
	Encode(text string) []string
}

// TiktokenTokenizer counts and splits tokens with the cl100k_base BPE
// used by the OpenAI embedding models.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

var _ Tokenizer = (*TiktokenTokenizer)(nil)

// NewTiktokenTokenizer loads the cl100k_base encoding.
func NewTiktokenTokenizer() (*TiktokenTokenizer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("loading cl100k_base encoding: %w", err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// Encode returns one piece per BPE token. Each piece is decoded
// individually, so the concatenation of the pieces reproduces the input
// for any text the encoder round-trips.
func (t *TiktokenTokenizer) Encode(text string) []string {
	ids := t.enc.Encode(text, nil, nil)
	pieces := make([]string, len(ids))
	for i, id := range ids {
		pieces[i] = t.enc.Decode([]int{id})
	}
	return pieces
}

// WordTokenizer treats each whitespace-delimited word as one token.
// A word keeps its trailing whitespace so pieces concatenate exactly.
// It exists for tests and for environments without the BPE tables.
type WordTokenizer struct{}

var _ Tokenizer = WordTokenizer{}

func (WordTokenizer) Encode(text string) []string {
	if text == "" {
		return nil
	}
	var pieces []string
	start := 0
	prevSpace := false
	for i, r := range text {
		sp := unicode.IsSpace(r)
		if prevSpace && !sp && i > start {
			pieces = append(pieces, text[start:i])
			start = i
		}
		prevSpace = sp
	}
	return append(pieces, text[start:])
}

// concat joins token pieces back into source text.
func concat(pieces []string) string {
	var b strings.Builder
	for _, p := range pieces {
		b.WriteString(p)
	}
	return b.String()
}
