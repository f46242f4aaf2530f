// Package provider wraps the remote image-generation backends behind one
// interface. Every adapter renders the prompt with prompt.Render, enforces its
// own call timeout and reports failures as *Error.
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/digkill/CatPortrait/internal/prompt"
)

// DefaultTimeout bounds a single outbound generation call.
const DefaultTimeout = 30 * time.Second

// Provider generates one image for one structured prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, p prompt.StructuredPrompt) (*Result, error)
}

// Availability is implemented by providers that can tell up front that a
// call would fail, e.g. because credentials are missing.
type Availability interface {
	Available(ctx context.Context) error
}

// Result is a successful generation.
type Result struct {
	Image          Image
	RenderedPrompt string
}

// Image is either a hosted URL or embedded bytes.
type Image struct {
	URL      string
	Data     []byte
	MIMEType string
}

// Src returns the hosted URL, or a data URL for embedded images.
func (i Image) Src() string {
	if i.URL != "" {
		return i.URL
	}
	mime := i.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Empty reports whether the image carries no payload at all.
func (i Image) Empty() bool {
	return i.URL == "" && len(i.Data) == 0
}

// Kind tells the orchestrator whether another provider may be tried.
type Kind string

const (
	// KindRetryable failures move on to the next provider in the chain.
	KindRetryable Kind = "retryable"
	// KindFatal failures end the request, e.g. when the caller went away.
	KindFatal Kind = "fatal"
)

// Error is a categorized provider failure.
type Error struct {
	Provider   string
	Kind       Kind
	StatusCode int
	Msg        string
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status=%d)", e.StatusCode)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether a fallback provider may be attempted.
func (e *Error) Retryable() bool {
	return e.Kind == KindRetryable
}

func retryable(name, msg string, status int, cause error) *Error {
	return &Error{Provider: name, Kind: KindRetryable, StatusCode: status, Msg: msg, Cause: cause}
}

func fatal(name, msg string, cause error) *Error {
	return &Error{Provider: name, Kind: KindFatal, Msg: msg, Cause: cause}
}

// IsRetryable classifies any error returned by a provider. Errors that are
// not *Error are retryable unless they are context cancellations.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}

// callError converts a transport-level failure. A dead parent context is fatal
// because no fallback could finish either; an expired call timeout is not.
func callError(parent context.Context, name string, err error) *Error {
	if parent.Err() != nil {
		return fatal(name, "request cancelled", parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retryable(name, "timeout", 0, err)
	}
	return retryable(name, "request failed", 0, err)
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
