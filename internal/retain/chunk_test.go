package retain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitText_ShortTextUnchanged(t *testing.T) {
	chunks := splitText("hello world", 100)
	assert.Equal(t, []string{"hello world"}, chunks)
}

func TestSplitText_SplitsAtParagraphBoundary(t *testing.T) {
	text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 40)
	chunks := splitText(text, 50)
	assert.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0], "\n\n"))
}

func TestSplitText_ReassemblesToOriginal(t *testing.T) {
	text := strings.Repeat("The cat sat on the mat. ", 500)
	chunks := splitText(text, 1000)
	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, c := range chunks[:len(chunks)-1] {
		assert.LessOrEqual(t, len(c), 1200) // allows the documented overshoot
	}
}

func TestSplitMidpoint_PrefersSentenceBoundaryNearMiddle(t *testing.T) {
	text := strings.Repeat("x", 50) + ". " + strings.Repeat("y", 50)
	left, right := splitMidpoint(text)
	assert.Equal(t, text, left+right)
	assert.True(t, strings.HasSuffix(left, ". "))
}
