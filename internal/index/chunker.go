package index

import (
	"strings"
)

// Chunker splits text into retrieval chunks. Size is the target chunk size
// in characters; Overlap is prepended from the tail of the previous chunk
// when a unit boundary forces a split.
type Chunker struct {
	Size    int
	Overlap int
}

// DefaultChunkSize and DefaultChunkOverlap apply when the config omits them.
const (
	DefaultChunkSize    = 1600
	DefaultChunkOverlap = 200
)

// NewChunker creates a chunker, substituting defaults for non-positive values.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 8
		}
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// TextChunk is one chunk with its line span in the source.
type TextChunk struct {
	Text      string
	StartLine int
	EndLine   int
	// Heading is set for markdown section chunks.
	Heading string
}

// unit is an indivisible piece of source text (a paragraph, a section)
// before merging. start and end are byte offsets into the content the unit
// was cut from; consecutive units are contiguous, so concatenating them
// reproduces the source byte for byte. The line span covers the unit's
// non-blank core.
type unit struct {
	start     int
	end       int
	startLine int
	endLine   int
	heading   string
}

// SplitPlainText splits on blank-line paragraph boundaries, then merges
// adjacent paragraphs up to the target size.
func (c *Chunker) SplitPlainText(content string) []TextChunk {
	return c.merge(content, splitParagraphs(content))
}

// SplitMarkdown splits on header boundaries, never merging across the top of
// a new section. Oversized sections are further split by paragraph.
func (c *Chunker) SplitMarkdown(content string) []TextChunk {
	var chunks []TextChunk
	for _, sec := range splitSections(content) {
		text := content[sec.start:sec.end]
		if len(text) <= c.Size {
			chunks = append(chunks, TextChunk{
				Text:      text,
				StartLine: sec.startLine,
				EndLine:   sec.endLine,
				Heading:   sec.heading,
			})
			continue
		}
		for _, sub := range c.merge(text, splitParagraphsAt(text, sec.startLine)) {
			sub.Heading = sec.heading
			chunks = append(chunks, sub)
		}
	}
	return chunks
}

// merge packs contiguous units into chunks of at most Size characters. Each
// chunk is a plain slice of content, so every source byte lands in exactly
// one chunk; when flushing mid-stream the next chunk is additionally seeded
// with the last Overlap characters of the previous one, so overlapped bytes
// appear twice but none disappear.
func (c *Chunker) merge(content string, units []unit) []TextChunk {
	var chunks []TextChunk
	var seed, nextSeed string
	var cs, ce, startLine, endLine int
	open := false

	flush := func() {
		if !open {
			return
		}
		open = false
		text := seed + content[cs:ce]
		if strings.TrimSpace(text) == "" {
			return
		}
		chunks = append(chunks, TextChunk{Text: text, StartLine: startLine, EndLine: endLine})
		if c.Overlap > 0 && len(text) > c.Overlap {
			nextSeed = text[len(text)-c.Overlap:] + "\n"
		} else {
			nextSeed = ""
		}
	}

	for _, u := range units {
		if open && len(seed)+u.end-cs > c.Size {
			flush()
		}
		if !open {
			open = true
			seed, nextSeed = nextSeed, ""
			cs = u.start
			startLine = u.startLine
		}
		ce = u.end
		endLine = u.endLine
	}
	flush()

	return chunks
}

// splitParagraphs splits content into paragraph units with 1-based lines.
func splitParagraphs(content string) []unit {
	return splitParagraphsAt(content, 1)
}

// splitParagraphsAt cuts content into contiguous paragraph units. Blank
// lines between paragraphs stay attached to the preceding unit and blank
// lines before the first paragraph to the first, so the units cover every
// byte of content. firstLine is the 1-based source line of content's first
// line.
func splitParagraphsAt(content string, firstLine int) []unit {
	lines := strings.Split(content, "\n")
	offs := lineOffsets(lines)

	// Line index ranges of the non-blank paragraph cores.
	type span struct{ first, last int }
	var paras []span
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if n := len(paras); n > 0 && paras[n-1].last == i-1 {
			paras[n-1].last = i
		} else {
			paras = append(paras, span{first: i, last: i})
		}
	}
	if len(paras) == 0 {
		return nil
	}

	units := make([]unit, 0, len(paras))
	start := 0
	for k, p := range paras {
		end := len(content)
		if k+1 < len(paras) {
			end = offs[paras[k+1].first]
		}
		units = append(units, unit{
			start:     start,
			end:       end,
			startLine: firstLine + p.first,
			endLine:   firstLine + p.last,
		})
		start = end
	}
	return units
}

// splitSections splits markdown content at header lines into contiguous
// units. Content before the first header becomes its own preamble section;
// a blank-only preamble folds into the first header section instead.
func splitSections(content string) []unit {
	lines := strings.Split(content, "\n")
	offs := lineOffsets(lines)

	starts := []int{0}
	for i, line := range lines {
		if i > 0 && isMarkdownHeader(line) {
			starts = append(starts, i)
		}
	}
	if len(starts) > 1 && strings.TrimSpace(content[:offs[starts[1]]]) == "" {
		starts = append(starts[:1], starts[2:]...)
	}

	var sections []unit
	for k, first := range starts {
		end := len(content)
		last := len(lines) - 1
		if k+1 < len(starts) {
			end = offs[starts[k+1]]
			last = starts[k+1] - 1
		}
		if strings.TrimSpace(content[offs[first]:end]) == "" {
			continue
		}
		heading := ""
		for i := first; i <= last; i++ {
			if strings.TrimSpace(lines[i]) == "" {
				continue
			}
			if isMarkdownHeader(lines[i]) {
				heading = strings.TrimSpace(strings.TrimLeft(lines[i], "# "))
			}
			break
		}
		sections = append(sections, unit{
			start:     offs[first],
			end:       end,
			startLine: first + 1,
			endLine:   last + 1,
			heading:   heading,
		})
	}
	return sections
}

// lineOffsets returns the byte offset of the start of each line.
func lineOffsets(lines []string) []int {
	offs := make([]int, len(lines))
	pos := 0
	for i, l := range lines {
		offs[i] = pos
		pos += len(l) + 1
	}
	return offs
}

func isMarkdownHeader(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return false
	}
	rest := strings.TrimLeft(trimmed, "#")
	return strings.HasPrefix(rest, " ") || rest == ""
}
