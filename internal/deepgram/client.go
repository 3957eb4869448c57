package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/suPer8Hu/vidblog/internal/pipeline"
)

// Client implements pipeline.Transcriber against the Deepgram prerecorded API.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewClient(baseURL, apiKey, model string) *Client {
	if baseURL == "" {
		baseURL = "https://api.deepgram.com"
	}
	if model == "" {
		model = "nova-2"
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

type listenResp struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
	ErrMsg string `json:"err_msg,omitempty"`
}

// Transcribe uploads the audio file. An empty language asks the service to
// detect it.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (*pipeline.Transcription, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, pipeline.Errorf(pipeline.KindAuthentication, "", "deepgram: api key is required")
	}
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindValidation, "", "deepgram: open audio", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.listenURL(language), f)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.APIKey)
	req.Header.Set("Content-Type", contentType(audioPath))
	if info, err := f.Stat(); err == nil {
		req.ContentLength = info.Size()
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, pipeline.Wrap(pipeline.KindExternalService, "", "deepgram: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, pipeline.ResponseError("deepgram", resp)
	}

	var decoded listenResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pipeline.Wrap(pipeline.KindExternalService, "", "deepgram: decode response", err)
	}
	if decoded.ErrMsg != "" {
		return nil, pipeline.Errorf(pipeline.KindExternalService, "", "deepgram: %s", decoded.ErrMsg)
	}
	if len(decoded.Results.Channels) == 0 || len(decoded.Results.Channels[0].Alternatives) == 0 {
		return nil, pipeline.Errorf(pipeline.KindExternalService, "", "deepgram: response has no transcript")
	}

	ch := decoded.Results.Channels[0]
	alt := ch.Alternatives[0]
	lang := ch.DetectedLanguage
	if lang == "" {
		lang = language
	}
	return &pipeline.Transcription{
		Text:            strings.TrimSpace(alt.Transcript),
		Language:        lang,
		Confidence:      alt.Confidence,
		DurationSeconds: decoded.Metadata.Duration,
	}, nil
}

func (c *Client) listenURL(language string) string {
	q := url.Values{}
	q.Set("model", c.Model)
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	if language = strings.TrimSpace(language); language == "" || strings.EqualFold(language, "auto") {
		q.Set("detect_language", "true")
	} else {
		q.Set("language", language)
	}
	return fmt.Sprintf("%s/v1/listen?%s", strings.TrimRight(c.BaseURL, "/"), q.Encode())
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
