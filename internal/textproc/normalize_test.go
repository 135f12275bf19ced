package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":                               "",
		"What's your MAIN project??":     "what s your main project",
		"  Tell   me\tabout\nyourself. ": "tell me about yourself",
		"Next.js / React-Native":         "next js react native",
		"!!!":                            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestJaccardProperties(t *testing.T) {
	pairs := [][2]string{
		{"What is your main project?", "Tell me about your main project"},
		{"skills", "What are your technical skills?"},
		{"", "hello"},
		{"a b c", "c d e"},
	}
	for _, p := range pairs {
		assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), "similarity should be symmetric for %q / %q", p[0], p[1])
	}

	assert.Equal(t, 1.0, Similarity("What's your main project?", "what s your MAIN project"))
	assert.Equal(t, 0.0, Similarity("alpha beta", "gamma delta"))
	assert.Equal(t, 0.0, Similarity("", ""), "two empty sets are defined as 0")
	assert.Equal(t, 0.0, Similarity("?!", "..."), "punctuation only normalises to empty")

	// {what s your main project} vs {what s your foo project}: 4 / 6
	assert.InDelta(t, 4.0/6.0, Similarity("What's your main project?", "What's your Foo project?"), 1e-9)
}

func TestFingerprintIsStableAcrossFormatting(t *testing.T) {
	a := Fingerprint("Tell me about yourself")
	b := Fingerprint("  tell ME about yourself?! ")
	require.Len(t, a, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Fingerprint("Tell me about your projects"))
	assert.Empty(t, Fingerprint("   "))
}

func TestContainsPhraseMatchesWholeWords(t *testing.T) {
	assert.True(t, ContainsPhrase("which project uses react native", "react native"))
	assert.True(t, ContainsPhrase("ai projects", "ai"))
	assert.False(t, ContainsPhrase("send me an email", "ai"))
	assert.False(t, ContainsPhrase("", "ai"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", TruncateRunes("héllo wörld", 5))
	assert.Equal(t, "abc", TruncateRunes("abc", 10))
	assert.Equal(t, "", TruncateRunes("abc", 0))
	assert.Equal(t, "ab...", TruncateWithSuffix("abcdefgh", 5, "..."))
	assert.Equal(t, "abc", TruncateWithSuffix("abc", 5, "..."))
}

func TestExtractAndCategorizeLinks(t *testing.T) {
	text := `Portfolio: https://me.dev. Code at https://github.com/jdoe/linkup, and (https://www.linkedin.com/in/jdoe)
again https://github.com/jdoe/linkup`
	links := ExtractLinks(text)
	assert.Equal(t, []string{
		"https://github.com/jdoe/linkup",
		"https://me.dev",
		"https://www.linkedin.com/in/jdoe",
	}, links)

	cats := CategorizeLinks(links)
	assert.Equal(t, []string{"https://github.com/jdoe/linkup"}, cats.GitHub)
	assert.Equal(t, []string{"https://www.linkedin.com/in/jdoe"}, cats.LinkedIn)
	assert.Equal(t, []string{"https://me.dev"}, cats.Other)

	assert.Equal(t, "jdoe/linkup", GitHubRepoSlug("https://github.com/jdoe/linkup.git"))
	assert.Empty(t, GitHubRepoSlug("https://github.com/jdoe"))
	assert.Empty(t, GitHubRepoSlug("https://gitlab.com/jdoe/linkup"))
}

func TestCleanLatex(t *testing.T) {
	in := `\section*{Projects}
\textbf{LinkUp} -- \href{https://github.com/jdoe/linkup}{GitHub}
\item Built with \emph{Next.js}`
	out := CleanLatex(in)
	assert.Contains(t, out, "Projects")
	assert.Contains(t, out, "LinkUp")
	assert.Contains(t, out, "GitHub (https://github.com/jdoe/linkup)")
	assert.Contains(t, out, "Built with Next.js")
	assert.NotContains(t, out, `\`)
	assert.NotContains(t, out, "{")
}
