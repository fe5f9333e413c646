package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect feeds every chunk and finalizes, returning all emitted artifacts
// and the discarded flag.
func collect(t *testing.T, chunks []string) ([]Artifact, bool) {
	t.Helper()
	parser := NewArtifactParser(DefaultArtifactTag)
	var out []Artifact
	for _, chunk := range chunks {
		out = append(out, parser.Feed(chunk)...)
	}
	tail, discarded := parser.Finalize()
	return append(out, tail...), discarded
}

func TestArtifactParser_SingleBlock(t *testing.T) {
	t.Run("whole block in one chunk", func(t *testing.T) {
		artifacts, discarded := collect(t, []string{
			`<file name="Button.tsx">export const Button = () => null;</file>`,
		})
		require.Len(t, artifacts, 1)
		assert.Equal(t, "Button.tsx", artifacts[0].Name)
		assert.Equal(t, "export const Button = () => null;", artifacts[0].Code)
		assert.False(t, discarded)
	})

	t.Run("surrounding prose is discarded", func(t *testing.T) {
		artifacts, discarded := collect(t, []string{
			"Sure, here is the component:\n",
			`<file name="Card.tsx">const Card = 1;</file>`,
			"\nLet me know if you need changes.",
		})
		require.Len(t, artifacts, 1)
		assert.Equal(t, "Card.tsx", artifacts[0].Name)
		assert.False(t, discarded)
	})

	t.Run("body whitespace is trimmed", func(t *testing.T) {
		artifacts, _ := collect(t, []string{
			"<file name=\"A.tsx\">\n  const a = 1;\n</file>",
		})
		require.Len(t, artifacts, 1)
		assert.Equal(t, "const a = 1;", artifacts[0].Code)
	})
}

func TestArtifactParser_ChunkSplitInvariance(t *testing.T) {
	input := "intro text <file name=\"Button.tsx\">const Button = () => <button/>;\n</file> trailing <file name=\"Icon.tsx\">const Icon = 2;</file>"

	whole, wholeDiscarded := collect(t, []string{input})
	require.Len(t, whole, 2)
	require.False(t, wholeDiscarded)

	t.Run("byte by byte", func(t *testing.T) {
		chunks := make([]string, 0, len(input))
		for i := 0; i < len(input); i++ {
			chunks = append(chunks, input[i:i+1])
		}
		artifacts, discarded := collect(t, chunks)
		assert.Equal(t, whole, artifacts)
		assert.Equal(t, wholeDiscarded, discarded)
	})

	t.Run("every split point of a single block", func(t *testing.T) {
		block := `<file name="X.tsx">const x = 1;</file>`
		for i := 1; i < len(block); i++ {
			artifacts, discarded := collect(t, []string{block[:i], block[i:]})
			require.Len(t, artifacts, 1, "split at %d", i)
			assert.Equal(t, "X.tsx", artifacts[0].Name, "split at %d", i)
			assert.Equal(t, "const x = 1;", artifacts[0].Code, "split at %d", i)
			assert.False(t, discarded, "split at %d", i)
		}
	})

	t.Run("open tag split mid attribute", func(t *testing.T) {
		artifacts, discarded := collect(t, []string{
			"<file nam", `e="Button">const `, "Button = () => <button", "/>;\n</file>",
		})
		require.Len(t, artifacts, 1)
		assert.Equal(t, "Button", artifacts[0].Name)
		assert.Equal(t, "const Button = () => <button/>;", artifacts[0].Code)
		assert.False(t, discarded)
	})
}

func TestArtifactParser_MultipleBlocks(t *testing.T) {
	t.Run("emitted in stream order", func(t *testing.T) {
		artifacts, _ := collect(t, []string{
			`<file name="A.tsx">a</file><file name="B.tsx">b</file><file name="C.tsx">c</file>`,
		})
		require.Len(t, artifacts, 3)
		assert.Equal(t, []string{"A.tsx", "B.tsx", "C.tsx"},
			[]string{artifacts[0].Name, artifacts[1].Name, artifacts[2].Name})
	})

	t.Run("empty middle block is suppressed", func(t *testing.T) {
		artifacts, discarded := collect(t, []string{
			`<file name="A.tsx">a</file><file name="B.tsx">   </file><file name="C.tsx">c</file>`,
		})
		require.Len(t, artifacts, 2)
		assert.Equal(t, "A.tsx", artifacts[0].Name)
		assert.Equal(t, "C.tsx", artifacts[1].Name)
		assert.False(t, discarded)
	})
}

func TestArtifactParser_Finalize(t *testing.T) {
	t.Run("unclosed block is discarded", func(t *testing.T) {
		parser := NewArtifactParser(DefaultArtifactTag)
		out := parser.Feed(`<file name="A.tsx">const a = 1;`)
		assert.Empty(t, out)

		tail, discarded := parser.Finalize()
		assert.Empty(t, tail)
		assert.True(t, discarded)
	})

	t.Run("incomplete open delimiter is discarded", func(t *testing.T) {
		parser := NewArtifactParser(DefaultArtifactTag)
		parser.Feed(`<file name="A.tsx`)
		_, discarded := parser.Finalize()
		assert.True(t, discarded)
	})

	t.Run("complete blocks then trailing prose", func(t *testing.T) {
		artifacts, discarded := collect(t, []string{
			`<file name="A.tsx">a</file> done`,
		})
		require.Len(t, artifacts, 1)
		assert.False(t, discarded)
	})

	t.Run("parser is reusable after finalize", func(t *testing.T) {
		parser := NewArtifactParser(DefaultArtifactTag)
		parser.Feed(`<file name="A.tsx">unfinished`)
		parser.Finalize()

		out := parser.Feed(`<file name="B.tsx">b</file>`)
		require.Len(t, out, 1)
		assert.Equal(t, "B.tsx", out[0].Name)
	})
}

func TestArtifactParser_TagMatching(t *testing.T) {
	t.Run("longer tag name is not matched", func(t *testing.T) {
		artifacts, discarded := collect(t, []string{
			`<filename>not ours</filename> <file name="A.tsx">a</file>`,
		})
		require.Len(t, artifacts, 1)
		assert.Equal(t, "A.tsx", artifacts[0].Name)
		assert.False(t, discarded)
	})

	t.Run("tag-like text inside a body stays literal", func(t *testing.T) {
		artifacts, _ := collect(t, []string{
			`<file name="A.tsx">const markup = "<file>";</file>`,
		})
		require.Len(t, artifacts, 1)
		assert.Equal(t, `const markup = "<file>";`, artifacts[0].Code)
	})

	t.Run("self closing tag is suppressed", func(t *testing.T) {
		artifacts, discarded := collect(t, []string{
			`<file name="Empty.tsx"/> <file name="A.tsx">a</file>`,
		})
		require.Len(t, artifacts, 1)
		assert.Equal(t, "A.tsx", artifacts[0].Name)
		assert.False(t, discarded)
	})

	t.Run("single quoted attribute", func(t *testing.T) {
		artifacts, _ := collect(t, []string{
			`<file name='App.tsx'>app</file>`,
		})
		require.Len(t, artifacts, 1)
		assert.Equal(t, "App.tsx", artifacts[0].Name)
	})

	t.Run("fileName attribute fallback", func(t *testing.T) {
		artifacts, _ := collect(t, []string{
			`<file fileName="Legacy.tsx">legacy</file>`,
		})
		require.Len(t, artifacts, 1)
		assert.Equal(t, "Legacy.tsx", artifacts[0].Name)
	})

	t.Run("missing name attribute yields empty name", func(t *testing.T) {
		artifacts, _ := collect(t, []string{
			`<file>anonymous</file>`,
		})
		require.Len(t, artifacts, 1)
		assert.Equal(t, "", artifacts[0].Name)
		assert.Equal(t, "anonymous", artifacts[0].Code)
	})
}
