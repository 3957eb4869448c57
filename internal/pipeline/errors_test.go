package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestKindStatusCode(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:           http.StatusBadRequest,
		KindAuthentication:       http.StatusUnauthorized,
		KindNotFound:             http.StatusNotFound,
		KindRateLimit:            http.StatusTooManyRequests,
		KindStaleState:           http.StatusConflict,
		KindExternalService:      http.StatusBadGateway,
		KindVideoProcessing:      http.StatusBadGateway,
		KindTranscriptionService: http.StatusBadGateway,
		KindGenerationService:    http.StatusBadGateway,
		KindPublishService:       http.StatusBadGateway,
		KindInternal:             http.StatusInternalServerError,
	}
	for k, want := range cases {
		if got := k.StatusCode(); got != want {
			t.Fatalf("%s: got %d, want %d", k, got, want)
		}
	}
}

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("handler: %w", Errorf(KindGenerationService, StageGenerate, "upstream 503"))
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("stage error should match external service")
	}
	if errors.Is(err, ErrValidation) {
		t.Fatalf("stage error must not match validation")
	}
	if KindOf(err) != KindGenerationService {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatalf("unclassified errors are internal")
	}
}

func TestClassify(t *testing.T) {
	rl := &Error{Kind: KindRateLimit, RetryAfter: 5 * time.Second}
	if got := classify(KindGenerationService, StageGenerate, rl); got.Kind != KindRateLimit || got.RetryAfter != 5*time.Second {
		t.Fatalf("rate limit not preserved: %+v", got)
	}

	auth := &Error{Kind: KindAuthentication, Message: "401"}
	if got := classify(KindGenerationService, StageGenerate, auth); got.Kind != KindGenerationService {
		t.Fatalf("provider auth failure should be a generation error, got %s", got.Kind)
	}
	if got := classify(KindPublishService, StagePublish, auth); got.Kind != KindAuthentication {
		t.Fatalf("publish auth failure should stay authentication, got %s", got.Kind)
	}

	got := classify(KindPublishService, StagePublish, context.DeadlineExceeded)
	if got.Kind != KindPublishService || got.Message != "timed out" {
		t.Fatalf("deadline should be a stage timeout: %+v", got)
	}

	same := Errorf(KindPublishService, StagePublish, "already tagged")
	if stageFailure(KindPublishService, StagePublish, same) != same {
		t.Fatalf("tagged stage error should not be wrapped again")
	}
}

func TestReasonFrom(t *testing.T) {
	r := reasonFrom(Errorf(KindVideoProcessing, StageFetch, "404"))
	if r.Kind != string(KindVideoProcessing) || r.Stage != string(StageFetch) || r.Message != "fetch: 404" {
		t.Fatalf("unexpected reason %+v", r)
	}
	if !(Reason{}).IsZero() {
		t.Fatalf("zero reason must report IsZero")
	}
}
