package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/pulseai/internal/httpc"
	"github.com/teslashibe/pulseai/pkg/profile"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// DefaultStateTTL bounds how long a sign-in may take.
const DefaultStateTTL = 10 * time.Minute

// GoogleConfig configures Google sign-in.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g., "http://localhost:8080/api/auth/google/callback"

	// StateTTL defaults to DefaultStateTTL.
	StateTTL time.Duration

	// Endpoint and APIEndpoint override Google's URLs, for tests.
	Endpoint    *oauth2.Endpoint
	APIEndpoint string

	// HTTPClient is used for token exchange and userinfo. Defaults to
	// httpc.Client.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Google signs operators in with the OAuth2 authorization-code flow and
// builds their profile from the Google userinfo endpoint.
type Google struct {
	config      *oauth2.Config
	apiEndpoint string
	httpClient  *http.Client
	ttl         time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu     sync.Mutex
	states map[string]time.Time // nonce -> expiry
}

// NewGoogle creates a Google sign-in flow.
func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required", ErrNotConfigured)
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8080/api/auth/google/callback"
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpc.Client
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}

	return &Google{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				googleoauth2.UserinfoProfileScope,
				googleoauth2.UserinfoEmailScope,
			},
			Endpoint: endpoint,
		},
		apiEndpoint: cfg.APIEndpoint,
		httpClient:  cfg.HTTPClient,
		ttl:         cfg.StateTTL,
		logger:      cfg.Logger.With("component", "auth.google"),
		now:         time.Now,
		states:      make(map[string]time.Time),
	}, nil
}

// AuthURL returns the consent URL carrying a fresh single-use state nonce.
func (g *Google) AuthURL() string {
	state := uuid.NewString()
	now := g.now()

	g.mu.Lock()
	for s, exp := range g.states {
		if now.After(exp) {
			delete(g.states, s)
		}
	}
	g.states[state] = now.Add(g.ttl)
	g.mu.Unlock()

	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// consumeState removes state and reports whether it was valid.
func (g *Google) consumeState(state string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	exp, ok := g.states[state]
	delete(g.states, state)
	return ok && !g.now().After(exp)
}

// Exchange completes the flow for the callback's state and code.
func (g *Google) Exchange(ctx context.Context, state, code string) (*profile.UserProfile, error) {
	if !g.consumeState(state) {
		return nil, ErrInvalidState
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchange code for token: %w", err)
	}

	opts := []option.ClientOption{option.WithHTTPClient(g.config.Client(ctx, token))}
	if g.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(g.apiEndpoint))
	}
	svc, err := googleoauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("auth: fetch userinfo: %w", err)
	}

	p := profile.MockUser()
	p.ID = "GOOGLE-" + info.Id
	switch {
	case info.Name != "":
		p.Name = info.Name
	case info.Email != "":
		p.Name = info.Email
	}

	g.logger.Info("google sign-in", "user_id", p.ID)
	return p, nil
}
