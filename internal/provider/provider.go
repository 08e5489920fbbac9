package provider

import (
	"context"
	"fmt"
	"strings"
)

// EditRequest is one image-edit call: a source image plus a prompt and the
// batch-level options.
type EditRequest struct {
	Image        []byte
	Filename     string
	Prompt       string
	Model        string
	Size         string
	Quality      string
	OutputFormat string
}

// Result carries the decoded output image and the provider's revised prompt,
// when it returns one.
type Result struct {
	Image         []byte
	RevisedPrompt string
}

// Editor is the outbound image-edit port. The remote provider is treated as
// an opaque capability: submit an image and a prompt, get bytes or an error.
type Editor interface {
	Edit(ctx context.Context, req EditRequest) (*Result, error)
	Configured() bool
}

// Error describes a failed provider call.
type Error struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("image edit failed (%d)", e.StatusCode))
	} else {
		parts = append(parts, "image edit failed")
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
