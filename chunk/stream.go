package chunk

import (
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/docvault/core"
)

// Stream yields chunk drafts lazily. Next returns io.EOF after the last
// chunk. A Stream is single-use and not safe for concurrent callers.
type Stream struct {
	e        *Engine
	index    int
	prevTail []string // up to overlapMax tail pieces of the previous chunk
	err      error

	para  *paraState
	fixed *fixedState
}

// Stream starts chunking the reader with the engine's strategy.
func (e *Engine) Stream(r io.Reader) *Stream {
	s := &Stream{e: e}
	if e.strategy == StrategyFixed {
		s.fixed = &fixedState{r: r}
	} else {
		s.para = &paraState{
			scanner: newParagraphScanner(r, e.strategy == StrategyMarkdown),
		}
	}
	return s
}

// Next returns the next chunk draft, or io.EOF when the input is consumed.
func (s *Stream) Next() (*core.ChunkDraft, error) {
	if s.err != nil {
		return nil, s.err
	}
	var (
		draft *core.ChunkDraft
		err   error
	)
	if s.fixed != nil {
		draft, err = s.nextFixed()
	} else {
		draft, err = s.nextParagraphs()
	}
	if err != nil {
		s.err = err
		return nil, err
	}
	return draft, nil
}

// pendingChunk is a chunk's fresh content before the overlap prefix is
// attached.
type pendingChunk struct {
	pieces []string
	text   string
	meta   map[string]string
}

// emit attaches the overlap prefix from the previous chunk and advances
// the stream position.
func (s *Stream) emit(pc pendingChunk) *core.ChunkDraft {
	text := pc.text
	tokens := len(pc.pieces)
	if n := s.e.overlapSize(len(s.prevTail), len(pc.pieces)); n > 0 {
		text = concat(s.prevTail[len(s.prevTail)-n:]) + "\n\n" + text
		tokens += n
	}
	draft := &core.ChunkDraft{
		Index:      s.index,
		Text:       text,
		TokenCount: tokens,
		Metadata:   pc.meta,
	}
	s.index++

	keep := len(pc.pieces)
	if keep > s.e.overlapMax {
		keep = s.e.overlapMax
	}
	s.prevTail = append(s.prevTail[:0], pc.pieces[len(pc.pieces)-keep:]...)
	return draft
}

// paraState is the semantic/markdown accumulator: the chunk under
// construction plus any chunks queued by a hard split.
type paraState struct {
	scanner  *paragraphScanner
	queue    []pendingChunk
	cur      []string // token pieces of the chunk under construction
	curTexts []string // paragraph texts joined with blank lines on emit
	curMeta  map[string]string
	eof      bool
}

func (s *Stream) nextParagraphs() (*core.ChunkDraft, error) {
	ps := s.para
	for {
		if len(ps.queue) > 0 {
			pc := ps.queue[0]
			ps.queue = ps.queue[1:]
			return s.emit(pc), nil
		}
		if ps.eof {
			if len(ps.cur) > 0 {
				pc := ps.flush()
				return s.emit(pc), nil
			}
			return nil, io.EOF
		}

		para, err := ps.scanner.Next()
		if err == io.EOF {
			ps.eof = true
			continue
		}
		if err != nil {
			return nil, err
		}

		pieces := s.e.tok.Encode(para.text)
		if len(pieces) == 0 {
			continue
		}
		meta := paraMeta(para)

		if len(pieces) > s.e.maxTokens {
			if len(ps.cur) > 0 {
				ps.queue = append(ps.queue, ps.flush())
			}
			if para.fenced {
				// a fence is never split, even oversized
				s.e.logger.Debug("oversized fenced block kept whole", "tokens", len(pieces))
				ps.queue = append(ps.queue, pendingChunk{pieces: pieces, text: para.text, meta: meta})
			} else {
				for start := 0; start < len(pieces); start += s.e.maxTokens {
					end := min(start+s.e.maxTokens, len(pieces))
					window := pieces[start:end]
					ps.queue = append(ps.queue, pendingChunk{
						pieces: window,
						text:   concat(window),
						meta:   meta,
					})
				}
			}
			continue
		}

		if len(ps.cur) > 0 && len(ps.cur)+len(pieces) > s.e.maxTokens {
			pc := ps.flush()
			ps.start(pieces, para.text, meta)
			return s.emit(pc), nil
		}
		if len(ps.cur) == 0 {
			ps.start(pieces, para.text, meta)
		} else {
			ps.cur = append(ps.cur, pieces...)
			ps.curTexts = append(ps.curTexts, para.text)
		}
	}
}

func (ps *paraState) start(pieces []string, text string, meta map[string]string) {
	ps.cur = append([]string(nil), pieces...)
	ps.curTexts = []string{text}
	ps.curMeta = meta
}

func (ps *paraState) flush() pendingChunk {
	pc := pendingChunk{
		pieces: ps.cur,
		text:   strings.Join(ps.curTexts, "\n\n"),
		meta:   ps.curMeta,
	}
	ps.cur, ps.curTexts, ps.curMeta = nil, nil, nil
	return pc
}

func paraMeta(para *paragraph) map[string]string {
	if para.heading == "" {
		return nil
	}
	return map[string]string{"heading": para.heading}
}

// fixedState slides a token window over the raw byte stream. Bytes are
// tokenized block by block, cutting each block at the start of its last
// word so token boundaries match a whole-text encode.
type fixedState struct {
	r     io.Reader
	buf   []string
	carry string
	eof   bool
	count int // chunks emitted
}

func (s *Stream) nextFixed() (*core.ChunkDraft, error) {
	fs := s.fixed
	maxT := s.e.maxTokens
	overlap := s.e.overlapMax
	stride := maxT - overlap

	if err := fs.fill(s.e.tok, maxT); err != nil {
		return nil, err
	}

	var window []string
	switch {
	case len(fs.buf) >= maxT:
		window = fs.buf[:maxT:maxT]
		fs.buf = fs.buf[stride:]
	case len(fs.buf) > overlap || (fs.count == 0 && len(fs.buf) > 0):
		// final partial window; anything at or under the overlap is
		// already covered by the previous chunk
		window = fs.buf
		fs.buf = nil
	default:
		return nil, io.EOF
	}

	fs.count++
	draft := &core.ChunkDraft{
		Index:      s.index,
		Text:       concat(window),
		TokenCount: len(window),
	}
	s.index++
	return draft, nil
}

// fill tokenizes input until the buffer holds at least need pieces or
// the stream ends.
func (fs *fixedState) fill(tok Tokenizer, need int) error {
	block := make([]byte, 64*1024)
	for len(fs.buf) < need && !fs.eof {
		n, err := fs.r.Read(block)
		text := fs.carry + string(block[:n])
		fs.carry = ""
		if err == io.EOF {
			fs.eof = true
		} else if err != nil {
			return err
		} else {
			head, tail := splitLastWord(text)
			if head == "" {
				fs.carry = text
				continue
			}
			text, fs.carry = head, tail
		}
		fs.buf = append(fs.buf, tok.Encode(text)...)
	}
	return nil
}

// splitLastWord cuts after the last whitespace rune so the tail is the
// final, possibly incomplete word.
func splitLastWord(s string) (head, tail string) {
	i := strings.LastIndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return "", s
	}
	_, size := utf8.DecodeRuneInString(s[i:])
	return s[:i+size], s[i+size:]
}
