package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeInvoker struct {
	passages    []RetrievedPassage
	retrieveErr error
	lastPrompt  string
	lastSystem  string
}

func (f *fakeInvoker) Complete(_ context.Context, prompt, systemPrompt string) (string, error) {
	f.lastPrompt = prompt
	f.lastSystem = systemPrompt
	return "ok", nil
}

func (f *fakeInvoker) CompleteWithImage(_ context.Context, prompt string, _ []byte, _, systemPrompt string) (string, error) {
	f.lastPrompt = prompt
	f.lastSystem = systemPrompt
	return "ok", nil
}

func (f *fakeInvoker) Retrieve(_ context.Context, _ string, _ int) ([]RetrievedPassage, error) {
	return f.passages, f.retrieveErr
}

func TestCompleteWithRetrievalAppendsPassages(t *testing.T) {
	inv := &fakeInvoker{passages: []RetrievedPassage{
		{Text: "hemoglobin reference range 13.5-17.5 g/dL"},
		{Text: "fasting glucose below 100 mg/dL is normal"},
	}}

	resp, err := CompleteWithRetrieval(context.Background(), inv, "what is a normal glucose level?", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Errorf("expected ok, got %s", resp)
	}
	if !strings.Contains(inv.lastPrompt, "[Source 1]: hemoglobin") {
		t.Errorf("expected first passage in prompt, got %q", inv.lastPrompt)
	}
	if !strings.Contains(inv.lastPrompt, "[Source 2]: fasting glucose") {
		t.Errorf("expected second passage in prompt, got %q", inv.lastPrompt)
	}
}

func TestCompleteWithRetrievalSurvivesRetrievalFailure(t *testing.T) {
	inv := &fakeInvoker{retrieveErr: errors.New("index offline")}

	resp, err := CompleteWithRetrieval(context.Background(), inv, "question", "system")
	if err != nil {
		t.Fatalf("expected retrieval failure to be non-fatal, got %v", err)
	}
	if resp != "ok" {
		t.Errorf("expected ok, got %s", resp)
	}
	if inv.lastPrompt != "question" {
		t.Errorf("expected bare prompt, got %q", inv.lastPrompt)
	}
}
