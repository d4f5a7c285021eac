// Package llm backs the investigators' interpreter and the assessors'
// judge with a language model. Gemini is the built-in Generator.
package llm

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"google.golang.org/genai"

	"auditor/internal/assess"
	"auditor/internal/audit"
	"auditor/internal/investigate"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

var (
	ErrNoAPIKey      = errors.New("llm: API key is required")
	ErrEmptyResponse = errors.New("llm: empty model response")
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// Generator produces one text completion. system may be empty.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Gemini is a Generator backed by the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

// Option configures Gemini.
type Option func(*Gemini)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(g *Gemini) { g.temperature = t }
}

// NewGemini creates a Gemini client for model.
func NewGemini(ctx context.Context, apiKey, model string, opts ...Option) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	g := &Gemini{client: client, model: model, temperature: 0.2}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate implements Generator. JSON output is requested from the model.
func (g *Gemini) Generate(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		ResponseMIMEType: "application/json",
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return "", fmt.Errorf("genai generate: %w", err)
	}
	var sb strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p != nil {
				sb.WriteString(p.Text)
			}
		}
		break
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// Model is the language-model Interpreter and Judge.
type Model struct {
	gen Generator
}

// New returns a Model over gen.
func New(gen Generator) *Model { return &Model{gen: gen} }

var (
	_ investigate.Interpreter = (*Model)(nil)
	_ assess.Judge            = (*Model)(nil)
)

type evidenceReply struct {
	Found      *bool    `json:"found"`
	Content    string   `json:"content"`
	Location   string   `json:"location"`
	Rationale  string   `json:"rationale"`
	Confidence *float64 `json:"confidence"`
}

type opinionReply struct {
	Score         *int     `json:"score"`
	Argument      string   `json:"argument"`
	CitedEvidence []string `json:"cited_evidence"`
}

// InterpretRepo implements investigate.Interpreter.
func (m *Model) InterpretRepo(ctx context.Context, dim audit.Dimension, facts investigate.RepoFacts) (audit.Evidence, error) {
	return m.interpret(ctx, dim, facts)
}

// InterpretDoc implements investigate.Interpreter.
func (m *Model) InterpretDoc(ctx context.Context, dim audit.Dimension, facts investigate.DocFacts) (audit.Evidence, error) {
	return m.interpret(ctx, dim, facts)
}

func (m *Model) interpret(ctx context.Context, dim audit.Dimension, facts any) (audit.Evidence, error) {
	data, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return audit.Evidence{}, fmt.Errorf("encode facts: %w", err)
	}
	prompt, err := render("interpret.tmpl", map[string]any{"Dimension": dim, "Facts": string(data)})
	if err != nil {
		return audit.Evidence{}, err
	}
	out, err := m.gen.Generate(ctx, "", prompt)
	if err != nil {
		return audit.Evidence{}, err
	}
	var r evidenceReply
	if err := decode(out, &r); err != nil {
		return audit.Evidence{}, err
	}
	if r.Found == nil || r.Confidence == nil {
		return audit.Evidence{}, fmt.Errorf("llm: evidence reply missing found or confidence")
	}
	return audit.Evidence{
		Goal:       dim.Name,
		Found:      *r.Found,
		Content:    r.Content,
		Location:   r.Location,
		Rationale:  r.Rationale,
		Confidence: *r.Confidence,
	}, nil
}

// Judge implements assess.Judge. The persona preamble is the system
// instruction; range checking is left to the assessor.
func (m *Model) Judge(ctx context.Context, persona audit.PersonaConfig, dim audit.Dimension, summary string) (audit.Opinion, error) {
	prompt, err := render("judge.tmpl", map[string]any{"Dimension": dim, "Summary": summary})
	if err != nil {
		return audit.Opinion{}, err
	}
	system := fmt.Sprintf("%s\nPhilosophy: %s", persona.Preamble, persona.Philosophy)
	out, err := m.gen.Generate(ctx, system, prompt)
	if err != nil {
		return audit.Opinion{}, err
	}
	var r opinionReply
	if err := decode(out, &r); err != nil {
		return audit.Opinion{}, err
	}
	if r.Score == nil {
		return audit.Opinion{}, fmt.Errorf("llm: opinion reply missing score")
	}
	return audit.Opinion{
		Persona:       persona.Tag,
		DimensionID:   dim.ID,
		Score:         *r.Score,
		Argument:      r.Argument,
		CitedEvidence: r.CitedEvidence,
	}, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func decode(out string, v any) error {
	data := cleanJSON([]byte(out))
	if len(data) == 0 {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("llm: decode reply: %w", err)
	}
	return nil
}

// cleanJSON strips a surrounding Markdown code fence.
func cleanJSON(data []byte) []byte {
	s := bytes.TrimSpace(data)
	if bytes.HasPrefix(s, []byte("```")) {
		if idx := bytes.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		}
		s = bytes.TrimSuffix(bytes.TrimSpace(s), []byte("```"))
		s = bytes.TrimSpace(s)
	}
	return s
}
