package index

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunkerDefaults(t *testing.T) {
	c := NewChunker(0, -1)
	assert.Equal(t, DefaultChunkSize, c.Size)
	assert.Equal(t, DefaultChunkOverlap, c.Overlap)

	// Overlap larger than size falls back to a fraction of size.
	c = NewChunker(100, 500)
	assert.Less(t, c.Overlap, c.Size)
}

func TestSplitPlainTextKeepsAllContent(t *testing.T) {
	c := NewChunker(80, 10)
	content := "first paragraph with some words\n\nsecond paragraph, a bit longer than the first one\n\nthird paragraph closes the file"

	chunks := c.SplitPlainText(content)
	require.NotEmpty(t, chunks)

	joined := ""
	for _, ch := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(ch.Text))
		assert.LessOrEqual(t, ch.StartLine, ch.EndLine)
		joined += ch.Text
	}
	for _, para := range []string{"first paragraph", "second paragraph", "third paragraph"} {
		assert.Contains(t, joined, para)
	}
}

func TestSplitPlainTextSmallInputSingleChunk(t *testing.T) {
	c := NewChunker(1600, 200)
	chunks := c.SplitPlainText("just one short paragraph")
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
}

func TestSplitPlainTextOverlap(t *testing.T) {
	c := NewChunker(50, 12)
	content := strings.Repeat("alpha beta gamma delta\n\n", 8)

	chunks := c.SplitPlainText(content)
	require.Greater(t, len(chunks), 1)

	// Each later chunk starts with the tail of its predecessor.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		tail := prev[len(prev)-c.Overlap:]
		assert.True(t, strings.HasPrefix(chunks[i].Text, tail),
			"chunk %d does not start with the previous tail", i)
	}
}

func TestSplitPlainTextRoundTripsEveryByte(t *testing.T) {
	c := NewChunker(40, 0)
	inputs := []string{
		"a\n\n\nb",
		"one\n\ntwo\n\n\n\nthree\n\n",
		"\n\nleading blanks\n\nand a trailing newline\n",
		strings.Repeat("a few words per paragraph\n\n\n", 5),
	}
	for _, content := range inputs {
		var joined strings.Builder
		for _, ch := range c.SplitPlainText(content) {
			joined.WriteString(ch.Text)
		}
		assert.Equal(t, content, joined.String(), "input %q", content)
	}
}

func TestSplitPlainTextOverlapRoundTrip(t *testing.T) {
	c := NewChunker(50, 12)
	content := "first block\n\n\nsecond block here\n\n\n\nthird block of text\n\nfourth and final block"

	chunks := c.SplitPlainText(content)
	require.Greater(t, len(chunks), 1)

	// Dropping each seeded prefix (previous tail plus the joining newline)
	// restores the source exactly.
	var joined strings.Builder
	joined.WriteString(chunks[0].Text)
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		text := chunks[i].Text
		if len(prev) > c.Overlap {
			seed := prev[len(prev)-c.Overlap:] + "\n"
			require.True(t, strings.HasPrefix(text, seed))
			text = text[len(seed):]
		}
		joined.WriteString(text)
	}
	assert.Equal(t, content, joined.String())
}

func TestSplitMarkdownRoundTripsEveryByte(t *testing.T) {
	c := NewChunker(60, 0)
	content := "intro before any header\n\n\n# One\n\ntext one\n\n## Two\n\n" +
		strings.Repeat("filler paragraph text\n\n", 4) + "tail"

	var joined strings.Builder
	for _, ch := range c.SplitMarkdown(content) {
		joined.WriteString(ch.Text)
	}
	assert.Equal(t, content, joined.String())
}

func TestSplitMarkdownByHeaders(t *testing.T) {
	c := NewChunker(1600, 200)
	content := "# Title\n\nintro text\n\n## Install\n\nrun the installer\n\n## Usage\n\ncall the binary"

	chunks := c.SplitMarkdown(content)
	require.Len(t, chunks, 3)

	assert.Equal(t, "Title", chunks[0].Heading)
	assert.Equal(t, "Install", chunks[1].Heading)
	assert.Equal(t, "Usage", chunks[2].Heading)
	assert.Contains(t, chunks[1].Text, "run the installer")
}

func TestSplitMarkdownOversizedSection(t *testing.T) {
	c := NewChunker(60, 0)
	section := "## Big\n\n" + strings.Repeat("a paragraph of filler text\n\n", 6)

	chunks := c.SplitMarkdown(section)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.Equal(t, "Big", ch.Heading, "heading propagates to sub-chunks")
	}
}

func TestSplitMarkdownSkipsBlankSections(t *testing.T) {
	c := NewChunker(1600, 200)
	chunks := c.SplitMarkdown("\n\n\n")
	assert.Empty(t, chunks)
}

func TestIsMarkdownHeader(t *testing.T) {
	assert.True(t, isMarkdownHeader("# Title"))
	assert.True(t, isMarkdownHeader("  ### Deep"))
	assert.False(t, isMarkdownHeader("#hashtag"))
	assert.False(t, isMarkdownHeader("plain text"))
}
