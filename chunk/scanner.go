package chunk

import (
	"bufio"
	"io"
	"strings"
)

// paragraph is one unit of the scan: a run of non-blank lines, or a
// whole fenced code block in markdown mode.
type paragraph struct {
	text    string
	heading string // heading path in effect when the paragraph started
	fenced  bool   // contains a code fence; never hard-split
}

// paragraphScanner reads paragraphs from a stream one at a time so the
// engine holds at most one paragraph (plus the chunk under construction)
// in memory. In markdown mode it tracks the heading hierarchy and keeps
// fenced code blocks intact across blank lines.
type paragraphScanner struct {
	r        *bufio.Reader
	markdown bool
	headings []string // title per heading level, 1-based
	pending  string
	hasPend  bool
	done     bool
}

func newParagraphScanner(r io.Reader, markdown bool) *paragraphScanner {
	return &paragraphScanner{r: bufio.NewReader(r), markdown: markdown}
}

// Next returns the next paragraph, or io.EOF when the stream is exhausted.
func (p *paragraphScanner) Next() (*paragraph, error) {
	var lines []string
	heading := p.path()
	inFence := false
	fenced := false

	finish := func() *paragraph {
		return &paragraph{
			text:    strings.Join(lines, "\n"),
			heading: heading,
			fenced:  fenced,
		}
	}

	for {
		line, err := p.readLine()
		if err == io.EOF {
			if len(lines) > 0 {
				return finish(), nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}

		trimmed := strings.TrimSpace(line)

		if inFence {
			lines = append(lines, line)
			if strings.HasPrefix(trimmed, "```") {
				inFence = false
			}
			continue
		}

		if trimmed == "" {
			if len(lines) > 0 {
				return finish(), nil
			}
			continue
		}

		if p.markdown {
			if strings.HasPrefix(trimmed, "```") {
				inFence = true
				fenced = true
				lines = append(lines, line)
				continue
			}
			if level, title, ok := parseHeading(trimmed); ok {
				if len(lines) > 0 {
					// heading starts a new paragraph; replay it next call
					p.pending = line
					p.hasPend = true
					return finish(), nil
				}
				p.push(level, title)
				heading = p.path()
				lines = append(lines, line)
				continue
			}
		}

		lines = append(lines, line)
	}
}

func (p *paragraphScanner) readLine() (string, error) {
	if p.hasPend {
		line := p.pending
		p.pending, p.hasPend = "", false
		return line, nil
	}
	if p.done {
		return "", io.EOF
	}
	line, err := p.r.ReadString('\n')
	if err == io.EOF {
		p.done = true
		if line == "" {
			return "", io.EOF
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *paragraphScanner) push(level int, title string) {
	if level-1 < len(p.headings) {
		p.headings = p.headings[:level-1]
	}
	for len(p.headings) < level-1 {
		p.headings = append(p.headings, "")
	}
	p.headings = append(p.headings, title)
}

// path renders the current heading hierarchy, e.g. "Guide > Install".
func (p *paragraphScanner) path() string {
	parts := make([]string, 0, len(p.headings))
	for _, h := range p.headings {
		if h != "" {
			parts = append(parts, h)
		}
	}
	return strings.Join(parts, " > ")
}

func parseHeading(line string) (level int, title string, ok bool) {
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, "", false
	}
	if level >= len(line) || line[level] != ' ' {
		return 0, "", false
	}
	title = strings.TrimSpace(line[level+1:])
	if title == "" {
		return 0, "", false
	}
	return level, title, true
}
