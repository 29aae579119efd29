package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiModel sends notes to Gemini with the quiz schema as a response
// constraint.
type GeminiModel struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiModel(ctx context.Context, apiKey, modelName string, temperature float32) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	m := client.GenerativeModel(modelName)
	m.SetTemperature(temperature)
	m.SetCandidateCount(1)
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = responseSchema()
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}

	return &GeminiModel{client: client, model: m}, nil
}

// Complete returns the concatenated text parts of the first candidate.
// A blocked prompt yields an empty string so the caller falls back to an
// empty summary.
func (g *GeminiModel) Complete(ctx context.Context, text string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", nil
		}
		return "", err
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	return sb.String(), nil
}

func (g *GeminiModel) Close() error {
	return g.client.Close()
}
