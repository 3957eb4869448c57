package pipeline

import (
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
)

type StageState string

const (
	StatePending      StageState = "pending"
	StateFetching     StageState = "fetching"
	StateTranscribing StageState = "transcribing"
	StateTranscribed  StageState = "transcribed"
	StateGenerating   StageState = "generating"
	StateGenerated    StageState = "generated"
	StatePublishing   StageState = "publishing"
	StateCompleted    StageState = "completed"
	StateFailed       StageState = "failed"
)

type PublishState string

const (
	PublishDraft     PublishState = "draft"
	PublishPublished PublishState = "published"
)

// Reason is a structured error kept on the job. The zero value means none.
type Reason struct {
	Kind    string `gorm:"size:64"`
	Stage   string `gorm:"size:32"`
	Message string `gorm:"type:text"`
}

func (r Reason) IsZero() bool { return r.Kind == "" }

func reasonFrom(err error) Reason {
	e := asError(err)
	return Reason{Kind: string(e.Kind), Stage: string(e.Stage), Message: e.Error()}
}

type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	OwnerID   uint64 `gorm:"index;not null"`
	SourceURL string `gorm:"type:varchar(2048);not null"`

	StageState StageState `gorm:"type:varchar(16);index;not null"`
	// Version is bumped on every stage transition and used as the CAS token.
	Version    uint64     `gorm:"not null;default:0"`

	// Filled once by the fetch-transcribe stage
	Transcript           *string
	TranscriptLanguage   string `gorm:"size:16"`
	TranscriptConfidence float64
	DurationSeconds      float64

	PublishRequested bool `gorm:"not null;default:false"`

	// Terminal failure (StageState == failed)
	Failure   Reason `gorm:"embedded;embeddedPrefix:failure_"`
	// Last recoverable stage failure (generate / publish); the job keeps its stage
	LastError Reason `gorm:"embedded;embeddedPrefix:last_error_"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string { return "jobs" }

func (j *Job) HasTranscript() bool { return j != nil && j.Transcript != nil }

type BlogArtifact struct {
	ID    string `gorm:"primaryKey;size:36"`
	JobID string `gorm:"size:26;uniqueIndex;not null"`

	Title     string `gorm:"type:varchar(512);not null"`
	Content   string `gorm:"not null"`
	WordCount int    `gorm:"not null"`

	SEOTitle       string `gorm:"type:varchar(512)"`
	SEODescription string `gorm:"type:text"`
	Keywords       string `gorm:"type:text"` // comma separated

	PublishState    PublishState `gorm:"type:varchar(16);not null;default:draft"`
	ExternalPostRef *string      `gorm:"type:varchar(128)"`
	ExternalURL     *string      `gorm:"type:varchar(2048)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BlogArtifact) TableName() string { return "blog_artifacts" }

// BeforeSave keeps WordCount derived from Content.
func (a *BlogArtifact) BeforeSave(tx *gorm.DB) error {
	a.WordCount = CountWords(a.Content)
	return nil
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// CountWords counts words in rendered text: HTML tags and placement markers are ignored.
func CountWords(content string) int {
	text := htmlTag.ReplaceAllString(content, " ")
	for _, m := range PlacementMarkers {
		text = strings.ReplaceAll(text, m, " ")
	}
	return len(strings.Fields(text))
}

// PlacementMarkers must appear in generated content in this order. They are
// opaque to the pipeline and stored verbatim.
var PlacementMarkers = []string{"[AD_TOP]", "[AD_MID]", "[AD_BOTTOM]"}
