package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/suPer8Hu/vidblog/internal/config"
	"github.com/suPer8Hu/vidblog/internal/pipeline"
)

type fakeProvider struct {
	reply string
	err   error
	last  []Message
}

func (p *fakeProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	p.last = append([]Message(nil), messages...)
	return p.reply, p.err
}

func TestCompletionsProvider_Chat(t *testing.T) {
	var got completionsReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "key", "gpt-test")
	reply, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hello"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "hi" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if got.Model != "gpt-test" || len(got.Messages) != 1 || got.ResponseFormat == nil {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestCompletionsProvider_ClassifiesStatus(t *testing.T) {
	cases := []struct {
		status int
		want   pipeline.Kind
	}{
		{http.StatusUnauthorized, pipeline.KindAuthentication},
		{http.StatusTooManyRequests, pipeline.KindRateLimit},
		{http.StatusInternalServerError, pipeline.KindExternalService},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "12")
			http.Error(w, "nope", tc.status)
		}))
		p := NewOpenRouterProvider(srv.URL, "key", "m", "https://site", "app")
		_, err := p.Chat(context.Background(), nil)
		srv.Close()

		if pipeline.KindOf(err) != tc.want {
			t.Fatalf("status %d: got %s, want %s", tc.status, pipeline.KindOf(err), tc.want)
		}
		if tc.want == pipeline.KindRateLimit && pipeline.RetryAfterOf(err) != 12*time.Second {
			t.Fatalf("unexpected retry after %s", pipeline.RetryAfterOf(err))
		}
	}
}

func TestCompletionsProvider_RequiresKey(t *testing.T) {
	p := NewOpenAIProvider("http://127.0.0.1:1", "", "")
	if _, err := p.Chat(context.Background(), nil); !errors.Is(err, pipeline.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestOllamaProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream || req.Format != "json" {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{}"},"done":true}`))
	}))
	defer srv.Close()

	reply, err := NewOllamaProvider(srv.URL, "").Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	if err != nil || reply != "{}" {
		t.Fatalf("unexpected result %q %v", reply, err)
	}
}

func TestBlogGenerator_Generate(t *testing.T) {
	p := &fakeProvider{reply: "```json\n" + `{"title":"Hello","content":"<p>[AD_TOP]</p><p>hello world</p><p>[AD_MID]</p><p>bye</p><p>[AD_BOTTOM]</p>","seo_title":"Hello SEO","seo_description":"desc","keywords":["a"," b ",""]}` + "\n```"}
	g := NewBlogGenerator(p)

	post, err := g.Generate(context.Background(), "hello world bye", "Hint")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if post.Title != "Hello" || post.SEO.Title != "Hello SEO" {
		t.Fatalf("unexpected post: %+v", post)
	}
	if len(post.SEO.Keywords) != 2 || post.SEO.Keywords[1] != "b" {
		t.Fatalf("unexpected keywords %q", post.SEO.Keywords)
	}
	if post.WordCount != 3 {
		t.Fatalf("unexpected word count %d", post.WordCount)
	}
	if !strings.Contains(p.last[1].Content, "Suggested title: Hint") {
		t.Fatalf("title hint not sent: %q", p.last[1].Content)
	}
}

func TestBlogGenerator_BadReply(t *testing.T) {
	for _, reply := range []string{"sorry, I can't", `{"title":"x"}`, `{"content": }`} {
		_, err := NewBlogGenerator(&fakeProvider{reply: reply}).Generate(context.Background(), "t", "")
		if !errors.Is(err, pipeline.ErrExternalService) {
			t.Fatalf("%q: expected external service error, got %v", reply, err)
		}
	}
}

func TestBlogGenerator_PassesProviderError(t *testing.T) {
	want := &pipeline.Error{Kind: pipeline.KindRateLimit, RetryAfter: time.Second}
	_, err := NewBlogGenerator(&fakeProvider{err: want}).Generate(context.Background(), "t", "")
	if pipeline.KindOf(err) != pipeline.KindRateLimit {
		t.Fatalf("expected rate limit, got %v", err)
	}
}

func TestEnsurePlacementMarkers(t *testing.T) {
	ordered := "[AD_TOP]\n<p>a</p>\n[AD_MID]\n<p>b</p>\n[AD_BOTTOM]"
	if got := EnsurePlacementMarkers(ordered); got != ordered {
		t.Fatalf("ordered content changed: %q", got)
	}

	got := EnsurePlacementMarkers("<p>one</p><p>two</p>[AD_BOTTOM]<p>three</p>[AD_TOP]")
	want := "[AD_TOP]\n<p>one</p>\n<p>two</p>\n[AD_MID]\n<p>three</p>\n[AD_BOTTOM]"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if !markersInOrder(got) {
		t.Fatalf("markers not in order")
	}

	plain := EnsurePlacementMarkers("just one paragraph")
	if plain != "[AD_TOP]\njust one paragraph\n[AD_MID]\n[AD_BOTTOM]" {
		t.Fatalf("unexpected single block result %q", plain)
	}
}

func TestRegistryFromConfig(t *testing.T) {
	cfg := &config.Config{OpenAIModel: "gpt-default", OllamaModel: "llama3:latest"}
	r := NewRegistryFromConfig(cfg)

	p, err := r.Get(context.Background(), " OpenAI ", "")
	if err != nil {
		t.Fatalf("get openai: %v", err)
	}
	if cp, ok := p.(*CompletionsProvider); !ok || cp.Model != "gpt-default" {
		t.Fatalf("unexpected provider %#v", p)
	}
	if _, err := r.Get(context.Background(), "claude", ""); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if names := r.Names(); len(names) != 3 || names[0] != "ollama" {
		t.Fatalf("unexpected names %v", names)
	}
}
