package llm

import "context"

// Part is one piece of a generation request: text, or an inline image.
type Part struct {
	Text   string
	Inline *InlineData
}

// InlineData carries raw image bytes for vision-capable models.
type InlineData struct {
	MIMEType string
	Data     []byte
}

// Request is an opaque prompt for the downstream text service.
type Request struct {
	Parts []Part
}

// TextRequest builds a single-part text request.
func TextRequest(text string) Request {
	return Request{Parts: []Part{{Text: text}}}
}

// Generator is the generative-AI dependency. It may fail with a provider
// error at any time; callers isolate those failures per item.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
