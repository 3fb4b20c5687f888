package llm

import (
	"context"
	"strings"

	gl "cloud.google.com/go/ai/generativelanguage/apiv1beta"
	pb "cloud.google.com/go/ai/generativelanguage/apiv1beta/generativelanguagepb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiClient calls generateContent on the Generative Language REST API.
// The API key travels as the "key" query parameter.
type GeminiClient struct {
	gc    *gl.GenerativeClient
	model string
}

func NewGemini(ctx context.Context, apiKey, model, endpoint string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	gc, err := gl.NewGenerativeRESTClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init generative language client")
	}
	return &GeminiClient{gc: gc, model: model}, nil
}

// Generate makes exactly one attempt; the client's default retry on 503 is
// switched off.
func (c *GeminiClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	req := &pb.GenerateContentRequest{Model: modelName(c.model)}
	for _, m := range messages {
		req.Contents = append(req.Contents, &pb.Content{
			Role:  geminiRole(m.Role),
			Parts: []*pb.Part{{Data: &pb.Part_Text{Text: m.Content}}},
		})
	}

	resp, err := c.gc.GenerateContent(ctx, req, gax.WithRetry(func() gax.Retryer { return nil }))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return Response{}, errors.Wrapf(err, "gemini request failed with status %d", apiErr.Code)
		}
		return Response{}, errors.Wrap(err, "gemini request failed")
	}

	text, ok := firstCandidateText(resp)
	if !ok {
		return Response{}, errors.Wrap(ErrMalformedResponse, "gemini returned no candidate text")
	}
	out := Response{Content: text, Model: c.model}
	if u := resp.GetUsageMetadata(); u != nil {
		out.PromptTokens = int(u.GetPromptTokenCount())
		out.CompletionTokens = int(u.GetCandidatesTokenCount())
		out.TotalTokens = int(u.GetTotalTokenCount())
	}
	return out, nil
}

func (c *GeminiClient) Close() error {
	return c.gc.Close()
}

func modelName(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

// firstCandidateText returns candidates[0].content.parts[0].text.
func firstCandidateText(resp *pb.GenerateContentResponse) (string, bool) {
	cands := resp.GetCandidates()
	if len(cands) == 0 {
		return "", false
	}
	parts := cands[0].GetContent().GetParts()
	if len(parts) == 0 {
		return "", false
	}
	text := parts[0].GetText()
	return text, text != ""
}

// Gemini knows only "user" and "model"; framing turns go in as user turns.
func geminiRole(role string) string {
	if role == RoleModel {
		return RoleModel
	}
	return RoleUser
}
