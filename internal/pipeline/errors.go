package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind is the stable error code reported to clients.
type Kind string

const (
	KindValidation           Kind = "VALIDATION_ERROR"
	KindAuthentication       Kind = "AUTHENTICATION_ERROR"
	KindNotFound             Kind = "NOT_FOUND"
	KindExternalService      Kind = "EXTERNAL_SERVICE_ERROR"
	KindVideoProcessing      Kind = "VIDEO_PROCESSING_ERROR"
	KindTranscriptionService Kind = "TRANSCRIPTION_SERVICE_ERROR"
	KindGenerationService    Kind = "GENERATION_SERVICE_ERROR"
	KindPublishService       Kind = "PUBLISH_SERVICE_ERROR"
	KindRateLimit            Kind = "RATE_LIMIT_ERROR"
	KindStaleState           Kind = "STALE_STATE_ERROR"
	KindInternal             Kind = "INTERNAL_ERROR"
)

// External reports whether the kind is ExternalServiceError or one of its stage specializations.
func (k Kind) External() bool {
	switch k {
	case KindExternalService, KindVideoProcessing, KindTranscriptionService, KindGenerationService, KindPublishService:
		return true
	default:
		return false
	}
}

func (k Kind) StatusCode() int {
	switch {
	case k == KindValidation:
		return http.StatusBadRequest
	case k == KindAuthentication:
		return http.StatusUnauthorized
	case k == KindNotFound:
		return http.StatusNotFound
	case k == KindRateLimit:
		return http.StatusTooManyRequests
	case k == KindStaleState:
		return http.StatusConflict
	case k.External():
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type Stage string

const (
	StageFetch      Stage = "fetch"
	StageTranscribe Stage = "transcribe"
	StageGenerate   Stage = "generate"
	StagePublish    Stage = "publish"
)

// Error is the classified failure every pipeline operation returns.
type Error struct {
	Kind       Kind
	Stage      Stage
	Message    string
	RetryAfter time.Duration
	Err        error
}

var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrAuthentication  = &Error{Kind: KindAuthentication}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrExternalService = &Error{Kind: KindExternalService}
	ErrRateLimit       = &Error{Kind: KindRateLimit}
	ErrStaleState      = &Error{Kind: KindStaleState}
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if e.Stage != "" {
		parts = append(parts, string(e.Stage))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return strings.ToLower(string(e.Kind))
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on kind; stage specializations also match ErrExternalService.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindExternalService && e.Kind.External()
}

func Errorf(kind Kind, stage Stage, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, stage Stage, message string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Err: err}
}

// KindOf returns the classification of err, or KindInternal when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return KindInternal
}

// RetryAfterOf returns the retry hint carried by a rate limit error.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Err: err}
}

// stageFailure tags err with the stage's kind. A deadline is reported as a
// timeout of that stage, never as success.
func stageFailure(kind Kind, stage Stage, err error) *Error {
	var e *Error
	if errors.As(err, &e) && e.Kind == kind && e.Stage == stage {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(kind, stage, "timed out", err)
	}
	return Wrap(kind, stage, "", err)
}

// classify is stageFailure for re-enterable stages. Rate limits keep their
// kind so callers can wait; authentication failures are kept only for the
// publish stage, where they describe the caller's own credentials.
func classify(stageKind Kind, stage Stage, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		switch {
		case e.Kind == KindRateLimit:
			return &Error{Kind: KindRateLimit, Stage: stage, Message: "rate limited", RetryAfter: e.RetryAfter, Err: err}
		case e.Kind == KindAuthentication && stage == StagePublish:
			return Wrap(KindAuthentication, stage, "publish target rejected credentials", err)
		}
	}
	return stageFailure(stageKind, stage, err)
}

// ResponseError classifies a non-2xx response from a remote service. The
// caller still owns resp.Body.
func ResponseError(service string, resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	} else {
		msg = fmt.Sprintf("status %d: %s", resp.StatusCode, msg)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Errorf(KindAuthentication, "", "%s: %s", service, msg)
	case http.StatusTooManyRequests:
		e := Errorf(KindRateLimit, "", "%s: %s", service, msg)
		e.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return e
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return Errorf(KindValidation, "", "%s: %s", service, msg)
	default:
		return Errorf(KindExternalService, "", "%s: %s", service, msg)
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
