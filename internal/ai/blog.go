package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/suPer8Hu/vidblog/internal/pipeline"
)

const blogSystemPrompt = `You turn video transcripts into blog posts.
Reply with a single JSON object and nothing else:
{"title": string, "content": string, "seo_title": string, "seo_description": string, "keywords": [string]}
Rules for "content":
- HTML using <h2>, <p>, <ul>, <li> only
- place the literal markers [AD_TOP], [AD_MID] and [AD_BOTTOM] on their own lines, in that order:
  [AD_TOP] before the first paragraph, [AD_MID] between two sections near the middle, [AD_BOTTOM] after the last paragraph
- do not invent facts that are not in the transcript
"seo_title" at most 60 characters, "seo_description" at most 160 characters, 3 to 8 keywords.`

type blogJSON struct {
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	SEOTitle       string   `json:"seo_title"`
	SEODescription string   `json:"seo_description"`
	Keywords       []string `json:"keywords"`
}

// BlogGenerator implements pipeline.Generator on top of a chat Provider.
type BlogGenerator struct {
	provider Provider
}

func NewBlogGenerator(p Provider) *BlogGenerator {
	return &BlogGenerator{provider: p}
}

func (g *BlogGenerator) Generate(ctx context.Context, transcript, titleHint string) (*pipeline.GeneratedPost, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, pipeline.Errorf(pipeline.KindValidation, pipeline.StageGenerate, "transcript is empty")
	}

	user := "Transcript:\n" + transcript
	if titleHint != "" {
		user = fmt.Sprintf("Suggested title: %s\n\n%s", titleHint, user)
	}
	reply, err := g.provider.Chat(ctx, []Message{
		{Role: RoleSystem, Content: blogSystemPrompt},
		{Role: RoleUser, Content: user},
	})
	if err != nil {
		return nil, err
	}

	post, err := parseBlog(reply)
	if err != nil {
		return nil, err
	}
	if post.Title == "" {
		post.Title = titleHint
	}
	post.Content = EnsurePlacementMarkers(post.Content)
	post.WordCount = pipeline.CountWords(post.Content)
	return post, nil
}

func parseBlog(reply string) (*pipeline.GeneratedPost, error) {
	raw := strings.TrimSpace(reply)
	// models sometimes wrap the object in a fenced block or add prose around it
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, pipeline.Errorf(pipeline.KindExternalService, pipeline.StageGenerate, "model reply is not a JSON object")
	}

	var b blogJSON
	if err := json.Unmarshal([]byte(raw[start:end+1]), &b); err != nil {
		return nil, pipeline.Wrap(pipeline.KindExternalService, pipeline.StageGenerate, "decode model reply", err)
	}
	if strings.TrimSpace(b.Content) == "" {
		return nil, pipeline.Errorf(pipeline.KindExternalService, pipeline.StageGenerate, "model reply has no content")
	}

	keywords := make([]string, 0, len(b.Keywords))
	for _, k := range b.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	return &pipeline.GeneratedPost{
		Title:   strings.TrimSpace(b.Title),
		Content: strings.TrimSpace(b.Content),
		SEO: pipeline.SEOMetadata{
			Title:       strings.TrimSpace(b.SEOTitle),
			Description: strings.TrimSpace(b.SEODescription),
			Keywords:    keywords,
		},
	}, nil
}

// EnsurePlacementMarkers returns content unchanged when every placement marker
// is present in order. Otherwise the markers are removed and re-inserted at
// the top, after the middle block and at the bottom.
func EnsurePlacementMarkers(content string) string {
	if markersInOrder(content) {
		return content
	}
	for _, m := range pipeline.PlacementMarkers {
		content = strings.ReplaceAll(content, m, "")
	}

	sep := "\n\n"
	if strings.Contains(content, "</p>") {
		sep = "</p>"
	}
	var blocks []string
	for _, b := range strings.SplitAfter(strings.TrimSpace(content), sep) {
		if strings.TrimSpace(b) != "" {
			blocks = append(blocks, strings.TrimSpace(b))
		}
	}

	top, mid, bottom := pipeline.PlacementMarkers[0], pipeline.PlacementMarkers[1], pipeline.PlacementMarkers[2]
	out := []string{top}
	half := (len(blocks) + 1) / 2
	for i, b := range blocks {
		out = append(out, b)
		if i == half-1 {
			out = append(out, mid)
		}
	}
	if len(blocks) == 0 {
		out = append(out, mid)
	}
	out = append(out, bottom)
	return strings.Join(out, "\n")
}

func markersInOrder(content string) bool {
	pos := 0
	for _, m := range pipeline.PlacementMarkers {
		i := strings.Index(content[pos:], m)
		if i < 0 {
			return false
		}
		pos += i + len(m)
	}
	return true
}
