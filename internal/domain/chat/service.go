// Package chat answers patient questions with their recent documents as
// grounding context.
package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/healthcompanion/api/internal/platform/llm"
	"github.com/healthcompanion/api/internal/platform/recordstore"
)

const (
	// contextDocs bounds how many documents feed the prompt.
	contextDocs = 5
	// excerptChars bounds the extracted-text excerpt per document.
	excerptChars = 200
)

const systemPrompt = `You are a compassionate AI health companion assistant. Your role:

1. Interact with patients in a friendly, empathetic manner
2. Answer health-related questions clearly and simply
3. Provide general health information and wellness advice
4. Help patients understand their medical documents
5. Offer emotional support and encouragement

Important guidelines:
- Use simple, non-technical language
- Be warm and reassuring
- Never diagnose or replace professional medical advice
- Encourage patients to consult healthcare providers for serious concerns
- Maintain patient privacy and confidentiality`

// Service generates chat responses grounded in the user's documents.
type Service struct {
	index     recordstore.Store
	model     llm.Invoker
	logger    zerolog.Logger
	retrieval bool
}

// NewService creates a chat Service. retrieval enables knowledge base
// augmentation when the model backend supports it.
func NewService(index recordstore.Store, model llm.Invoker, retrieval bool, logger zerolog.Logger) *Service {
	return &Service{index: index, model: model, retrieval: retrieval, logger: logger}
}

// Respond answers a patient message. The prompt carries up to five of the
// user's most recent documents, each as its file name plus a bounded excerpt
// of its extracted text. An unreachable index degrades to an uncontextual
// answer rather than an error.
func (s *Service) Respond(ctx context.Context, userID, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("message is required")
	}

	prompt := message
	if docContext := s.documentContext(ctx, userID); docContext != "" {
		prompt = fmt.Sprintf("Context: %s\n\nPatient: %s", docContext, message)
	}

	if s.retrieval {
		return llm.CompleteWithRetrieval(ctx, s.model, prompt, systemPrompt)
	}
	return s.model.Complete(ctx, prompt, systemPrompt)
}

func (s *Service) documentContext(ctx context.Context, userID string) string {
	docs, err := s.index.ListDocuments(ctx, userID, contextDocs)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).
			Msg("failed to load documents for chat context")
		return ""
	}
	if len(docs) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Patient's Medical Documents:\n")
	for _, doc := range docs {
		fmt.Fprintf(&sb, "- %s: %s\n", doc.FileName, truncate(doc.ExtractedText, excerptChars))
	}
	return sb.String()
}

// truncate caps s at max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
