// Package llm provides access to the language model used for document
// understanding and patient chat. The production implementation runs on
// Amazon Bedrock; the Invoker interface lets services swap in fakes.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrServiceUnavailable indicates the model backend could not serve the
// request.
var ErrServiceUnavailable = errors.New("language model unavailable")

// RetrievedPassage is one hit from the knowledge base.
type RetrievedPassage struct {
	Text  string
	Score float64
}

// Invoker defines the contract for language model backends.
type Invoker interface {
	// Complete sends a text prompt and returns the model's text response.
	// systemPrompt may be empty.
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)
	// CompleteWithImage sends an image alongside the prompt. mediaType is
	// the image MIME type, e.g. image/jpeg.
	CompleteWithImage(ctx context.Context, prompt string, image []byte, mediaType, systemPrompt string) (string, error)
	// Retrieve queries the knowledge base for passages relevant to query.
	// Backends without a knowledge base return an empty slice.
	Retrieve(ctx context.Context, query string, maxResults int) ([]RetrievedPassage, error)
}

// CompleteWithRetrieval runs the retrieval-augmented pattern: fetch relevant
// passages, append them to the prompt, then complete. Retrieval failures are
// non-fatal; the model is still invoked with the bare prompt.
func CompleteWithRetrieval(ctx context.Context, inv Invoker, prompt, systemPrompt string) (string, error) {
	passages, err := inv.Retrieve(ctx, prompt, 5)
	if err != nil {
		passages = nil
	}
	if len(passages) > 0 {
		enhanced := prompt + "\n\nRelevant medical information from knowledge base:\n"
		for i, p := range passages {
			enhanced += fmt.Sprintf("\n[Source %d]: %s\n", i+1, p.Text)
		}
		prompt = enhanced
	}
	return inv.Complete(ctx, prompt, systemPrompt)
}
