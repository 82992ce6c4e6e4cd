// Package gemini implements model.Model on the Gemini API through
// google.golang.org/genai, against either the Gemini Developer API or
// Vertex AI.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/model"
)

// DefaultModel is used when Options.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// Options configures the Gemini model adapter. With Project set the client
// talks to Vertex AI in Location, otherwise to the Gemini API with APIKey.
type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	APIKey          string
	Project         string
	Location        string
}

// Model wraps genai.Models behind model.Model.
type Model struct {
	client *genai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:           DefaultModel,
		Temperature:     0.7,
		MaxOutputTokens: 4096,
		Location:        "us-central1",
	}
}

// NewModel creates a genai client from the options.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI}
	if opts.Project != "" {
		cfg = &genai.ClientConfig{
			Project:  opts.Project,
			Location: opts.Location,
			Backend:  genai.BackendVertexAI,
		}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient creates a model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Client returns the underlying genai client.
func (m *Model) Client() *genai.Client { return m.client }

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		contents := buildContents(req.Contents)
		config := m.buildConfig(req)

		if !req.Stream {
			resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, contents, config)
			if err != nil {
				errCh <- fmt.Errorf("gemini api error: %w", err)
				return
			}
			final, err := toResponse(resp)
			if err != nil {
				errCh <- err
				return
			}
			out <- final
			return
		}

		var (
			text  strings.Builder
			calls []core.Part
			last  *genai.GenerateContentResponse
		)
		for chunk, err := range m.client.Models.GenerateContentStream(ctx, m.opts.Model, contents, config) {
			if err != nil {
				errCh <- fmt.Errorf("gemini streaming error: %w", err)
				return
			}
			last = chunk
			r, err := toResponse(chunk)
			if err != nil {
				continue
			}
			for _, p := range r.Content.Parts {
				switch pt := p.(type) {
				case core.TextPart:
					text.WriteString(pt.Text)
					select {
					case <-ctx.Done():
						errCh <- ctx.Err()
						return
					case out <- model.Response{ID: r.ID, Partial: true, Content: core.NewTextContent(core.RoleAssistant, pt.Text)}:
					}
				case core.FunctionCallPart:
					calls = append(calls, pt)
				}
			}
		}

		final := model.Response{Content: core.Content{Role: core.RoleAssistant}, FinishReason: "stop"}
		if text.Len() > 0 {
			final.Content.Parts = append(final.Content.Parts, core.TextPart{Text: text.String()})
		}
		final.Content.Parts = append(final.Content.Parts, calls...)
		if last != nil {
			final.ID = last.ResponseID
			final.Usage = usage(last)
			if len(last.Candidates) > 0 && last.Candidates[0].FinishReason != "" {
				final.FinishReason = strings.ToLower(string(last.Candidates[0].FinishReason))
			}
		}
		out <- final
	}()

	return out, errCh
}

func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(m.opts.Temperature),
		MaxOutputTokens: m.opts.MaxOutputTokens,
	}

	var system []string
	if req.Instructions != "" {
		system = append(system, req.Instructions)
	}
	for _, c := range req.Contents {
		if c.Role == core.RoleSystem {
			system = append(system, model.Text(c))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:                 t.Function.Name,
				Description:          t.Function.Description,
				ParametersJsonSchema: t.Function.Parameters,
			}
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return config
}

// buildContents maps contents onto Gemini roles. Function responses are sent
// as user turns.
func buildContents(contents []core.Content) []*genai.Content {
	var out []*genai.Content

	for _, c := range contents {
		if c.Role == core.RoleSystem {
			continue
		}

		role := string(genai.RoleUser)
		if c.Role == core.RoleAssistant {
			role = string(genai.RoleModel)
		}

		var parts []*genai.Part
		for _, p := range c.Parts {
			switch pt := p.(type) {
			case core.TextPart:
				if pt.Text != "" {
					parts = append(parts, &genai.Part{Text: pt.Text})
				}
			case core.DataPart:
				if b, err := json.Marshal(pt.Data); err == nil {
					parts = append(parts, &genai.Part{Text: string(b)})
				}
			case core.FunctionCallPart:
				args := map[string]any{}
				if pt.FunctionCall.Arguments != "" {
					_ = json.Unmarshal([]byte(pt.FunctionCall.Arguments), &args)
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   pt.FunctionCall.ID,
					Name: pt.FunctionCall.Name,
					Args: args,
				}})
			case core.FunctionResponsePart:
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       pt.FunctionResponse.ID,
					Name:     pt.FunctionResponse.Name,
					Response: model.ResponseMap(pt.FunctionResponse),
				}})
			}
		}
		if len(parts) == 0 {
			continue
		}

		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}

	return out
}

// toResponse converts the first candidate. Function calls without an ID get
// one so responses can be correlated.
func toResponse(resp *genai.GenerateContentResponse) (model.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.Response{}, fmt.Errorf("no candidates returned")
	}

	cand := resp.Candidates[0]
	var parts []core.Part
	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			args, err := json.Marshal(p.FunctionCall.Args)
			if err != nil || p.FunctionCall.Args == nil {
				args = []byte("{}")
			}
			id := p.FunctionCall.ID
			if id == "" {
				id = core.NewID()
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        id,
				Name:      p.FunctionCall.Name,
				Arguments: string(args),
			}})
		case p.Text != "" && !p.Thought:
			parts = append(parts, core.TextPart{Text: p.Text})
		}
	}

	finish := "stop"
	if cand.FinishReason != "" {
		finish = strings.ToLower(string(cand.FinishReason))
	}

	return model.Response{
		ID:           resp.ResponseID,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finish,
		Usage:        usage(resp),
	}, nil
}

func usage(resp *genai.GenerateContentResponse) *model.TokenUsage {
	if resp.UsageMetadata == nil {
		return nil
	}
	return &model.TokenUsage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		SupportsTools: true,
	}
}
