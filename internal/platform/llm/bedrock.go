package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	agenttypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const anthropicVersion = "bedrock-2023-05-31"

// RuntimeAPI is the subset of the Bedrock runtime client the invoker uses.
type RuntimeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// AgentAPI is the subset of the Bedrock agent runtime client used for
// knowledge base retrieval.
type AgentAPI interface {
	Retrieve(ctx context.Context, params *bedrockagentruntime.RetrieveInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
}

// BedrockInvoker is the Amazon Bedrock implementation of Invoker.
type BedrockInvoker struct {
	runtime         RuntimeAPI
	agent           AgentAPI
	modelID         string
	knowledgeBaseID string
	maxTokens       int
	temperature     float64
}

// NewBedrockInvoker creates a BedrockInvoker. agent and knowledgeBaseID may
// be zero when no knowledge base is configured; Retrieve then returns no
// passages.
func NewBedrockInvoker(runtime RuntimeAPI, agent AgentAPI, modelID, knowledgeBaseID string, maxTokens int, temperature float64) *BedrockInvoker {
	return &BedrockInvoker{
		runtime:         runtime,
		agent:           agent,
		modelID:         modelID,
		knowledgeBaseID: knowledgeBaseID,
		maxTokens:       maxTokens,
		temperature:     temperature,
	}
}

type anthropicRequest struct {
	AnthropicVersion string      `json:"anthropic_version"`
	MaxTokens        int         `json:"max_tokens"`
	Messages         []message   `json:"messages"`
	Temperature      float64     `json:"temperature"`
	System           string      `json:"system,omitempty"`
}

type message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (b *BedrockInvoker) invoke(ctx context.Context, req anthropicRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal model request: %w", err)
	}
	out, err := b.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId: aws.String(b.modelID),
		Body:    body,
	})
	if err != nil {
		return "", fmt.Errorf("%w: invoke %s: %v", ErrServiceUnavailable, b.modelID, err)
	}
	var resp anthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("%w: empty model response", ErrServiceUnavailable)
	}
	return resp.Content[0].Text, nil
}

func (b *BedrockInvoker) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	return b.invoke(ctx, anthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        b.maxTokens,
		Temperature:      b.temperature,
		System:           systemPrompt,
		Messages: []message{
			{Role: "user", Content: prompt},
		},
	})
}

func (b *BedrockInvoker) CompleteWithImage(ctx context.Context, prompt string, image []byte, mediaType, systemPrompt string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(image)
	return b.invoke(ctx, anthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        b.maxTokens,
		Temperature:      b.temperature,
		System:           systemPrompt,
		Messages: []message{
			{
				Role: "user",
				Content: []contentBlock{
					{
						Type: "image",
						Source: &imageSource{
							Type:      "base64",
							MediaType: mediaType,
							Data:      encoded,
						},
					},
					{Type: "text", Text: prompt},
				},
			},
		},
	})
}

func (b *BedrockInvoker) Retrieve(ctx context.Context, query string, maxResults int) ([]RetrievedPassage, error) {
	if b.agent == nil || b.knowledgeBaseID == "" {
		return nil, nil
	}
	out, err := b.agent.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(b.knowledgeBaseID),
		RetrievalQuery:  &agenttypes.KnowledgeBaseQuery{Text: aws.String(query)},
		RetrievalConfiguration: &agenttypes.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &agenttypes.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults: aws.Int32(int32(maxResults)),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: knowledge base retrieve: %v", ErrServiceUnavailable, err)
	}
	passages := make([]RetrievedPassage, 0, len(out.RetrievalResults))
	for _, r := range out.RetrievalResults {
		p := RetrievedPassage{}
		if r.Content != nil && r.Content.Text != nil {
			p.Text = *r.Content.Text
		}
		if r.Score != nil {
			p.Score = *r.Score
		}
		passages = append(passages, p)
	}
	return passages, nil
}
