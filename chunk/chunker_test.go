package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func TestParseStrategy(t *testing.T) {
	for name, want := range map[string]Strategy{
		"semantic": StrategySemantic,
		"":         StrategySemantic,
		"Fixed":    StrategyFixed,
		"markdown": StrategyMarkdown,
	} {
		got, err := ParseStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseStrategy("recursive")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(nil)
	assert.ErrorIs(t, err, ErrTokenizerRequired)

	_, err = NewEngine(WordTokenizer{}, WithTokenBounds(100, 50))
	assert.ErrorIs(t, err, ErrInvalidTokenBounds)

	_, err = NewEngine(WordTokenizer{}, WithTokenBounds(10, 20), WithOverlap(5, 15))
	assert.ErrorIs(t, err, ErrInvalidOverlap, "overlap must stay below the minimum chunk size")
}

func TestChunkText_Empty(t *testing.T) {
	e, err := NewEngine(WordTokenizer{})
	require.NoError(t, err)

	drafts, err := e.ChunkText("")
	require.NoError(t, err)
	assert.Empty(t, drafts)

	drafts, err = e.ChunkText("\n\n  \n")
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestChunkText_ShortDocumentIsOneChunk(t *testing.T) {
	e, err := NewEngine(WordTokenizer{})
	require.NoError(t, err)

	drafts, err := e.ChunkText("just a handful of words here")
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 0, drafts[0].Index)
	assert.Equal(t, 6, drafts[0].TokenCount)
	assert.Equal(t, "just a handful of words here", drafts[0].Text)
}

func TestChunkText_SemanticOverlap(t *testing.T) {
	para1 := strings.Join(words("a", 450), " ")
	para2 := strings.Join(words("b", 450), " ")

	e, err := NewEngine(WordTokenizer{},
		WithTokenBounds(200, 500),
		WithOverlap(100, 150),
	)
	require.NoError(t, err)

	drafts, err := e.ChunkText(para1 + "\n\n" + para2)
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	assert.Equal(t, para1, drafts[0].Text)
	assert.Equal(t, 450, drafts[0].TokenCount)

	wantOverlap := strings.Join(words("a", 450)[300:], " ")
	assert.True(t, strings.HasPrefix(drafts[1].Text, wantOverlap+"\n\n"),
		"second chunk must begin with the 150-token tail of the first")
	assert.True(t, strings.HasSuffix(drafts[1].Text, para2))
	assert.Equal(t, 600, drafts[1].TokenCount, "overlap counts toward the chunk")
	assert.Equal(t, 1, drafts[1].Index)
}

func TestChunkText_OverlapBelowMinimumDropped(t *testing.T) {
	// second paragraph is tiny: half of it is below the overlap minimum
	para1 := strings.Join(words("a", 400), " ")
	para2 := strings.Join(words("b", 50), " ")

	e, err := NewEngine(WordTokenizer{},
		WithTokenBounds(200, 420),
		WithOverlap(100, 150),
	)
	require.NoError(t, err)

	drafts, err := e.ChunkText(para1 + "\n\n" + para2)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, para2, drafts[1].Text)
	assert.Equal(t, 50, drafts[1].TokenCount)
}

func TestChunkText_HardSplitsOversizedParagraph(t *testing.T) {
	text := strings.Join(words("w", 100), " ")

	e, err := NewEngine(WordTokenizer{},
		WithTokenBounds(10, 30),
		WithOverlap(3, 5),
	)
	require.NoError(t, err)

	drafts, err := e.ChunkText(text)
	require.NoError(t, err)
	require.Len(t, drafts, 4)

	counts := make([]int, len(drafts))
	for i, d := range drafts {
		counts[i] = d.TokenCount
		assert.Equal(t, i, d.Index)
	}
	// 30 fresh tokens per window, 5 overlap prepended from the second on,
	// final window holds the remaining 10
	assert.Equal(t, []int{30, 35, 35, 15}, counts)
}

func TestChunkText_FixedWindows(t *testing.T) {
	all := words("w", 50)
	text := strings.Join(all, " ")

	e, err := NewEngine(WordTokenizer{},
		WithStrategy(StrategyFixed),
		WithTokenBounds(10, 20),
		WithOverlap(5, 5),
	)
	require.NoError(t, err)

	drafts, err := e.ChunkText(text)
	require.NoError(t, err)
	require.Len(t, drafts, 3)

	pieces := WordTokenizer{}.Encode(text)
	starts := []int{0, 15, 30} // stride = max - overlap
	for i, d := range drafts {
		end := min(starts[i]+20, len(pieces))
		assert.Equal(t, concat(pieces[starts[i]:end]), d.Text)
		assert.Equal(t, end-starts[i], d.TokenCount)
	}

	// dropping each chunk's overlap prefix reconstructs the source exactly
	rebuilt := drafts[0].Text
	for _, d := range drafts[1:] {
		rebuilt += concat(WordTokenizer{}.Encode(d.Text)[5:])
	}
	assert.Equal(t, text, rebuilt)
}

func TestChunkText_FixedShortDocument(t *testing.T) {
	e, err := NewEngine(WordTokenizer{},
		WithStrategy(StrategyFixed),
		WithTokenBounds(10, 20),
		WithOverlap(5, 5),
	)
	require.NoError(t, err)

	drafts, err := e.ChunkText("only four words here")
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "only four words here", drafts[0].Text)
}

func TestChunkText_Markdown(t *testing.T) {
	input := "# Guide\n\nIntro text here.\n\n## Install\n\nRun the installer.\n\n" +
		"```sh\nmake build\n\nmake install\n```\n\nDone."

	e, err := NewEngine(WordTokenizer{},
		WithStrategy(StrategyMarkdown),
		WithTokenBounds(1, 4),
		WithOverlap(0, 0),
	)
	require.NoError(t, err)

	drafts, err := e.ChunkText(input)
	require.NoError(t, err)
	require.Len(t, drafts, 6)

	assert.Equal(t, "# Guide", drafts[0].Text)
	assert.Equal(t, "Guide", drafts[0].Metadata["heading"])

	assert.Equal(t, "Intro text here.", drafts[1].Text)
	assert.Equal(t, "Guide", drafts[1].Metadata["heading"])

	assert.Equal(t, "## Install", drafts[2].Text)
	assert.Equal(t, "Guide > Install", drafts[2].Metadata["heading"])

	assert.Equal(t, "Run the installer.", drafts[3].Text)

	// the fence exceeds the token ceiling but stays whole, blank line included
	fence := drafts[4]
	assert.Contains(t, fence.Text, "make build\n\nmake install")
	assert.Greater(t, fence.TokenCount, 4)
	assert.Equal(t, "Guide > Install", fence.Metadata["heading"])

	assert.Equal(t, "Done.", drafts[5].Text)
	assert.Equal(t, "Guide > Install", drafts[5].Metadata["heading"])
}

func TestChunkText_MarkdownSiblingHeadingReplacesPath(t *testing.T) {
	input := "# Guide\n\n## Install\n\nInstall words.\n\n## Usage\n\nUsage words."

	e, err := NewEngine(WordTokenizer{},
		WithStrategy(StrategyMarkdown),
		WithTokenBounds(1, 3),
		WithOverlap(0, 0),
	)
	require.NoError(t, err)

	drafts, err := e.ChunkText(input)
	require.NoError(t, err)

	var paths []string
	for _, d := range drafts {
		paths = append(paths, d.Metadata["heading"])
	}
	assert.Contains(t, paths, "Guide > Install")
	assert.Contains(t, paths, "Guide > Usage")
	assert.NotContains(t, paths, "Guide > Install > Usage")
}

func TestStream_Lazy(t *testing.T) {
	text := strings.Join(words("w", 40), " ")
	e, err := NewEngine(WordTokenizer{},
		WithTokenBounds(5, 10),
		WithOverlap(0, 0),
	)
	require.NoError(t, err)

	s := e.Stream(strings.NewReader(text))
	first, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, first.Index)

	total := 1
	for {
		d, err := s.Next()
		if err != nil {
			break
		}
		assert.Equal(t, total, d.Index)
		total++
	}
	assert.Equal(t, 4, total)
}
