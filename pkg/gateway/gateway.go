// Package gateway turns a captured frame and the session context into an
// interaction log by asking a hosted vision model.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/teslashibe/pulseai/pkg/capture"
	"github.com/teslashibe/pulseai/pkg/inference"
	"github.com/teslashibe/pulseai/pkg/profile"
	"github.com/teslashibe/pulseai/pkg/session"
)

var (
	// ErrEmptyResult is returned when the model answered without a message.
	ErrEmptyResult = errors.New("gateway: empty result")

	// ErrMalformedReply is returned when the reply is not the expected JSON.
	ErrMalformedReply = errors.New("gateway: malformed reply")
)

// Context is the part of the session the model needs to interpret a frame.
type Context struct {
	Modes             []profile.Mode
	Calibrating       bool
	TutorialStep      int
	Sensitivity       int
	PreferredGestures []string
}

// ContextFrom extracts the interpretation context from a snapshot.
func ContextFrom(s session.Snapshot) Context {
	c := Context{
		Modes:        append([]profile.Mode(nil), s.SelectedModes...),
		Calibrating:  s.IsCalibrating,
		TutorialStep: s.TutorialStep,
		Sensitivity:  s.Sensitivity(),
	}
	if s.CurrentUser != nil {
		c.PreferredGestures = append([]string(nil), s.CurrentUser.PreferredGestures...)
	}
	return c
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithModel overrides the provider's default vision model.
func WithModel(model string) Option {
	return func(g *Gateway) { g.model = model }
}

// WithMaxTokens limits the reply length.
func WithMaxTokens(n int) Option {
	return func(g *Gateway) { g.maxTokens = n }
}

// Gateway interprets frames through an inference provider.
type Gateway struct {
	provider  inference.Provider
	model     string
	maxTokens int
	logger    *slog.Logger
}

// New creates a gateway backed by provider.
func New(provider inference.Provider, opts ...Option) *Gateway {
	g := &Gateway{
		provider:  provider,
		maxTokens: 256,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "gateway", "provider", provider.Name())
	return g
}

// Provider returns the backing provider.
func (g *Gateway) Provider() inference.Provider { return g.provider }

// Interpret sends one frame to the model and returns the resulting log. The
// log's ID and Timestamp are left for the session to assign.
func (g *Gateway) Interpret(ctx context.Context, f capture.Frame, c Context) (profile.InteractionLog, error) {
	if len(f.Data) == 0 {
		return profile.InteractionLog{}, inference.ErrNoImage
	}
	start := time.Now()

	resp, err := g.provider.Vision(ctx, &inference.VisionRequest{
		Image:        f.Data,
		MimeType:     f.MimeType,
		SystemPrompt: systemPrompt,
		Prompt:       buildPrompt(c),
		JSON:         true,
		Model:        g.model,
		MaxTokens:    g.maxTokens,
	})
	if err != nil {
		return profile.InteractionLog{}, fmt.Errorf("gateway: interpret frame %d: %w", f.Seq, err)
	}

	log, err := parseReply(resp.Content)
	if err != nil {
		g.logger.Debug("unusable reply", "frame", f.Seq, "content", truncate(resp.Content, 200))
		return profile.InteractionLog{}, err
	}

	g.logger.Debug("frame interpreted",
		"frame", f.Seq,
		"confidence", log.Confidence,
		"gesture", log.DetectedGesture,
		"latency_ms", time.Since(start).Milliseconds(),
		"tokens", resp.Usage.TotalTokens,
	)
	return log, nil
}

type reply struct {
	SystemMessage   string   `json:"systemMessage"`
	Confidence      *float64 `json:"confidence"`
	DetectedGesture string   `json:"detectedGesture"`
}

// parseReply decodes the model's JSON object. Markdown code fences and
// leading prose around the object are tolerated.
func parseReply(content string) (profile.InteractionLog, error) {
	body := extractJSON(content)
	if body == "" {
		return profile.InteractionLog{}, fmt.Errorf("%w: no JSON object", ErrMalformedReply)
	}

	var r reply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return profile.InteractionLog{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	msg := strings.TrimSpace(r.SystemMessage)
	if msg == "" {
		return profile.InteractionLog{}, ErrEmptyResult
	}

	confidence := 0
	if r.Confidence != nil {
		confidence = clampConfidence(*r.Confidence)
	}

	return profile.InteractionLog{
		SystemMessage:   msg,
		Confidence:      confidence,
		DetectedGesture: strings.TrimSpace(r.DetectedGesture),
	}, nil
}

// clampConfidence rounds f into 0..100.
func clampConfidence(f float64) int {
	switch {
	case f <= 0:
		return 0
	case f >= 100:
		return 100
	}
	return profile.ClampConfidence(int(math.Round(f)))
}

// extractJSON returns the outermost {...} span of s, or "".
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
