package inference

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockProvider(t *testing.T) {
	ctx := context.Background()
	mock := NewMock()

	resp, err := mock.Vision(ctx, &VisionRequest{Prompt: "What do you see?"})
	if err != nil {
		t.Fatalf("Vision failed: %v", err)
	}
	if resp.Content == "" {
		t.Error("Expected content in vision response")
	}

	if err := mock.Health(ctx); err != nil {
		t.Errorf("Health failed: %v", err)
	}

	if mock.CallCount("Vision") != 1 {
		t.Errorf("Expected 1 Vision call, got %d", mock.CallCount("Vision"))
	}
	if last := mock.LastCall(); last == nil || last.Method != "Health" {
		t.Errorf("Expected last call Health, got %+v", last)
	}
	if len(mock.Calls()) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(mock.Calls()))
	}

	mock.Reset()
	if len(mock.Calls()) != 0 {
		t.Error("Expected 0 calls after reset")
	}
	if mock.LastCall() != nil {
		t.Error("Expected nil LastCall after reset")
	}
}

func TestMockWithError(t *testing.T) {
	expected := errors.New("boom")
	mock := WithError(expected)

	if _, err := mock.Vision(context.Background(), &VisionRequest{}); !errors.Is(err, expected) {
		t.Errorf("Expected %v, got %v", expected, err)
	}
	if err := mock.Health(context.Background()); !errors.Is(err, expected) {
		t.Errorf("Expected %v from Health, got %v", expected, err)
	}
}

func TestMockWithContent(t *testing.T) {
	mock := WithContent(`{"systemMessage":"wave"}`)
	resp, err := mock.Vision(context.Background(), &VisionRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != `{"systemMessage":"wave"}` {
		t.Errorf("unexpected content %q", resp.Content)
	}
}

func TestMockNilFunc(t *testing.T) {
	mock := &Mock{}
	_, err := mock.Vision(context.Background(), &VisionRequest{})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Expected ErrProviderUnavailable, got %v", err)
	}
}

func TestOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apply(
		WithBaseURL("http://localhost:11434/v1"),
		WithAPIKey("key"),
		WithVisionModel(""),
		WithMaxTokens(50),
		WithTemperature(0.1),
		WithTimeout(5*time.Second),
	)

	if cfg.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("BaseURL = %s", cfg.BaseURL)
	}
	if cfg.VisionModel != "gpt-4o-mini" {
		t.Errorf("empty model should keep default, got %s", cfg.VisionModel)
	}
	if cfg.MaxTokens != 50 || cfg.Temperature != 0.1 || cfg.Timeout != 5*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		status      int
		rateLimited bool
		unauth      bool
		server      bool
	}{
		{429, true, false, false},
		{401, false, true, false},
		{403, false, true, false},
		{500, false, false, true},
		{503, false, false, true},
		{400, false, false, false},
	}

	for _, tt := range tests {
		e := &APIError{StatusCode: tt.status, Provider: "test"}
		if e.IsRateLimited() != tt.rateLimited {
			t.Errorf("%d: IsRateLimited = %v", tt.status, e.IsRateLimited())
		}
		if e.IsUnauthorized() != tt.unauth {
			t.Errorf("%d: IsUnauthorized = %v", tt.status, e.IsUnauthorized())
		}
		if e.IsServerError() != tt.server {
			t.Errorf("%d: IsServerError = %v", tt.status, e.IsServerError())
		}
	}
}

func TestWrapError(t *testing.T) {
	if WrapError("p", nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}
	err := WrapError("p", ErrNoImage)
	if !errors.Is(err, ErrNoImage) {
		t.Error("wrapped error should unwrap to ErrNoImage")
	}
	if err.Error() != "inference [p]: inference: image required" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
