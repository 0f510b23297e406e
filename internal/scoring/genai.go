package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const defaultGenAIModel = "gemini-2.5-flash"

const rubric = `You judge a Diwali photo contest. Rate how strongly the photo shows the
festival: diyas, lanterns, rangoli, fireworks, lights and festive decorations.
Answer with JSON only: {"score": <integer 0-10>, "feedback": "<one sentence>"}.`

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIScorer asks a Gemini vision model to rate the image.
type GenAIScorer struct {
	models contentGenerator
	model  string
}

func NewGenAIScorer(ctx context.Context, apiKey, model string) (*GenAIScorer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = defaultGenAIModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIScorer{models: client.Models, model: model}, nil
}

func (s *GenAIScorer) Name() string {
	return fmt.Sprintf("genai:%s", s.model)
}

type genAIVerdict struct {
	Score    *float64 `json:"score"`
	Feedback string   `json:"feedback"`
}

func (s *GenAIScorer) Score(ctx context.Context, image []byte) (Result, error) {
	if len(image) == 0 {
		return Result{}, fmt.Errorf("empty image")
	}
	mimeType := http.DetectContentType(image)
	if !strings.HasPrefix(mimeType, "image/") {
		return Result{}, fmt.Errorf("unsupported content type %s", mimeType)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText("Score this Diwali submission."),
		}, genai.RoleUser),
	}
	resp, err := s.models.GenerateContent(ctx, s.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(rubric, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	})
	if err != nil {
		return Result{}, fmt.Errorf("GenAI scoring failed: %w", err)
	}

	return parseVerdict(resp.Text())
}

func parseVerdict(text string) (Result, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var v genAIVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err != nil {
		return Result{}, fmt.Errorf("unparseable GenAI verdict %q: %w", text, err)
	}
	if v.Score == nil {
		return Result{}, fmt.Errorf("GenAI verdict has no score: %q", text)
	}
	score := clamp(int(*v.Score + 0.5))
	feedback := strings.TrimSpace(v.Feedback)
	if feedback == "" {
		feedback = Feedback(score)
	}
	return Result{Score: score, Feedback: feedback}, nil
}
