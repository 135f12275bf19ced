package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-agent-go/internal/types"
)

var linkupAliases = []string{"linkup", "link-up", "link up"}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "无法写入测试文件")
}

const sampleResume = `Jane Doe
https://github.com/jdoe/linkup | https://www.linkedin.com/in/jdoe

Summary
Full-stack engineer who builds realtime products with Next.js and Firebase, focused on fast iteration and good developer experience.

Experience
Software Engineer, Acme Corp (2022-2024)
- Built internal dashboards with React and TypeScript used by 200 people.
- Reduced API latency by 40 percent by introducing caching in Node and Express.

Projects
LinkUp - realtime chat app for students
- Next.js, Firebase Auth, Firestore, Tailwind
- Group chats, presence, push notifications

ShopCart | e-commerce demo
- MongoDB, Express, React

Technical Skills
Python, React, MongoDB, TypeScript, Node.js, Firebase, AWS

Education
B.Sc. Computer Science, State University (2018-2022)
`

func TestExtractSections(t *testing.T) {
	sections := ExtractSections(sampleResume)

	assert.Contains(t, sections.Get(types.SectionSummary), "Full-stack engineer")
	assert.Contains(t, sections.Get(types.SectionExperience), "Acme Corp")
	assert.Contains(t, sections.Get(types.SectionProjects), "LinkUp - realtime chat app")
	assert.Contains(t, sections.Get(types.SectionProjects), "ShopCart | e-commerce demo")
	assert.Equal(t, "Python, React, MongoDB, TypeScript, Node.js, Firebase, AWS", sections.Get(types.SectionSkills))
	assert.Contains(t, sections.Get(types.SectionEducation), "State University")
	assert.Contains(t, sections.Get(types.SectionOther), "Jane Doe", "第一个标题前的内容归入 OTHER")

	// 标题行本身不进入内容
	assert.NotContains(t, sections.Get(types.SectionSkills), "Technical Skills")
}

func TestMatchHeader(t *testing.T) {
	cases := map[string]types.SectionName{
		"EXPERIENCE":            types.SectionExperience,
		"Work Experience:":      types.SectionExperience,
		"Projects":              types.SectionProjects,
		"Skills & Interests":    "",
		"Skills and Interests":  types.SectionSkills,
		"Education":             types.SectionEducation,
		"About Me":              types.SectionSummary,
		"Project Manager, Acme": "",
		"":                      "",
	}
	for line, want := range cases {
		got, ok := matchHeader(line)
		if want == "" {
			assert.False(t, ok, "%q 不应被识别为标题", line)
			continue
		}
		assert.True(t, ok, "%q 应被识别为标题", line)
		assert.Equal(t, want, got, line)
	}
}

func TestExtractSectionsSmallResumeFallsBackToOther(t *testing.T) {
	text := "Skills\nGo, Python"
	sections := ExtractSections(text)
	assert.Equal(t, "Go, Python", sections.Get(types.SectionSkills))
	assert.Equal(t, text, sections.Get(types.SectionOther), "内容过少时整份文本放入 OTHER")

	assert.Empty(t, ExtractSections("   "))
}

func TestResumeLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "resume.md", sampleResume)
	writeFile(t, dir, "nested/extra.tex", `\section*{Awards}`+"\n"+`\textbf{Hackathon winner} \href{https://devpost.com/jdoe}{Devpost}`)
	writeFile(t, dir, "cover.docx", "binary")
	writeFile(t, dir, "notes.csv", "a,b")

	corpus, err := NewResumeLoader(dir).Load(context.Background())
	require.NoError(t, err)

	assert.Contains(t, corpus.FullText(), "Hackathon winner Devpost (https://devpost.com/jdoe)")
	assert.NotContains(t, corpus.FullText(), "binary", "docx 文件应被跳过")
	assert.Equal(t, []string{
		"https://devpost.com/jdoe",
		"https://github.com/jdoe/linkup",
		"https://www.linkedin.com/in/jdoe",
	}, corpus.Links())
	assert.NotEmpty(t, corpus.Sections().Get(types.SectionSkills))
}

func TestResumeLoaderMissingDir(t *testing.T) {
	_, err := NewResumeLoader(filepath.Join(t.TempDir(), "missing")).Load(context.Background())
	require.ErrorIs(t, err, ErrDocsDirNotFound)
}

func TestResumeLoaderSkipsPDFWithoutExtractor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "resume.pdf", "%PDF-1.4")
	corpus, err := NewResumeLoader(dir).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, corpus.FullText())
}

type stubPDF struct{ text string }

func (s stubPDF) ExtractFromFile(_ context.Context, path string) (string, map[string]interface{}, error) {
	return s.text, map[string]interface{}{"source_file_path": path}, nil
}

func TestResumeLoaderUsesPDFExtractor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "resume.pdf", "%PDF-1.4")
	corpus, err := NewResumeLoader(dir, WithPDFExtractor(stubPDF{text: sampleResume})).Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, corpus.Sections().Get(types.SectionProjects), "LinkUp")
}

func TestDecodeTextFallsBackToWindows1252(t *testing.T) {
	assert.Equal(t, "café", decodeText([]byte{'c', 'a', 'f', 0xe9}))
	assert.Equal(t, "naïve", decodeText([]byte("naïve")))
}

func TestProjectLoaderCoursesAndPrev(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "project.json", `{
  "courses": [
    {"title": "LinkUp", "slug": "linkup", "description": "Realtime chat for students", "tech": [{"name": "Next.js"}, {"name": "Firebase"}]}
  ],
  "prev": [
    {"title": "ShopCart", "description": "E-commerce demo", "tech": ["MongoDB", "Express"]},
    {"title": "Notes", "description": "Markdown notes", "tech": "Svelte"}
  ]
}`)

	catalog, err := NewProjectLoader(dir, linkupAliases).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog.Projects(), 3)

	primary := catalog.Primary()
	require.NotNil(t, primary, "应识别出主项目")
	assert.Equal(t, "LinkUp", primary.Title)
	assert.Equal(t, "LinkUp | Realtime chat for students | Tech: Next.js, Firebase", primary.FlatText)

	assert.Equal(t, []string{"Svelte"}, catalog.Projects()[2].Tech)
	assert.Equal(t, []string{"LinkUp", "ShopCart", "Notes"}, catalog.Titles())
	assert.Equal(t, 2, strings.Count(catalog.CatalogText(), CatalogSeparator))
}

func TestProjectLoaderFallsBackToSecondFileName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "project.json", `{not json`)
	writeFile(t, dir, "projects.json", `{"projects":[{"title":"Link-Up v2","description":"rewrite"}]}`)

	catalog, err := NewProjectLoader(dir, linkupAliases).Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, catalog.Primary())
	assert.Equal(t, "Link-Up v2", catalog.Primary().Title)
}

func TestProjectLoaderMissingFileGivesEmptyCatalog(t *testing.T) {
	catalog, err := NewProjectLoader(t.TempDir(), linkupAliases).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, catalog.Projects())
	assert.Nil(t, catalog.Primary())
	assert.Empty(t, catalog.CatalogText())
}

func TestFlattenProjectOmitsEmptyParts(t *testing.T) {
	assert.Equal(t, "Solo", FlattenProject(types.ProjectRecord{Title: "Solo"}))
	assert.Equal(t, "Solo | Tech: Go", FlattenProject(types.ProjectRecord{Title: "Solo", Tech: []string{"Go"}}))
}
