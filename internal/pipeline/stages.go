package pipeline

import (
	"context"

	"github.com/suPer8Hu/vidblog/internal/models"
)

// FetchResult points at extracted audio inside a temporary workspace.
// Cleanup removes the workspace and must be called exactly once.
type FetchResult struct {
	AudioPath string
	Cleanup   func()
}

type VideoFetcher interface {
	Fetch(ctx context.Context, sourceURL string, maxBytes int64) (*FetchResult, error)
}

type Transcription struct {
	Text            string
	Language        string
	Confidence      float64
	DurationSeconds float64
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (*Transcription, error)
}

type SEOMetadata struct {
	Title       string
	Description string
	Keywords    []string
}

type GeneratedPost struct {
	Title     string
	Content   string
	WordCount int
	SEO       SEOMetadata
}

type Generator interface {
	Generate(ctx context.Context, transcript, titleHint string) (*GeneratedPost, error)
}

type PostInput struct {
	Title   string
	Content string
	Status  string // publish | draft
}

type PublishedPost struct {
	ExternalID string
	URL        string
}

type Publisher interface {
	TestConnection(ctx context.Context, target *models.PublishTarget) (bool, error)
	Publish(ctx context.Context, target *models.PublishTarget, post PostInput) (*PublishedPost, error)
}
