// Package auth obtains access tokens for the source platform with the
// resource-owner password grant.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"convert_bot/internal/metrics"
)

// DefaultTokenURL is the platform token endpoint.
const DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"

// ErrAuth is returned when the token endpoint does not hand out a token.
var ErrAuth = errors.New("authentication failed")

// TokenSetter receives each newly issued access token.
type TokenSetter interface {
	SetToken(token string)
}

// Config holds the app and account credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	TokenURL     string
	// HTTPClient is used for the token exchange. It should set the platform
	// User-Agent. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Manager exchanges the account credentials for an access token and hands it
// to the platform client. Authenticate may be called any number of times; each
// call replaces the active token.
type Manager struct {
	oauth    oauth2.Config
	username string
	password string
	client   *http.Client
	holder   TokenSetter
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// New creates a Manager that installs tokens into holder.
func New(cfg Config, holder TokenSetter, m *metrics.Metrics, log *slog.Logger) *Manager {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Manager{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		username: cfg.Username,
		password: cfg.Password,
		client:   cfg.HTTPClient,
		holder:   holder,
		metrics:  m,
		log:      log,
	}
}

// Authenticate performs the password grant and installs the new token.
func (m *Manager) Authenticate(ctx context.Context) (string, error) {
	m.log.Info("logging in", "username", m.username)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	tok, err := m.oauth.PasswordCredentialsToken(ctx, m.username, m.password)
	if err != nil {
		m.metrics.ObserveReauth(false)
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if tok.AccessToken == "" {
		m.metrics.ObserveReauth(false)
		return "", fmt.Errorf("%w: response missing access_token", ErrAuth)
	}

	m.holder.SetToken(tok.AccessToken)
	m.metrics.ObserveReauth(true)
	m.log.Info("login successful", "username", m.username)
	return tok.AccessToken, nil
}
