package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
)

// Config holds the OAuth application settings.
type Config struct {
	// ClientID and ClientSecret identify the OAuth
	// application registered on the platform.
	ClientID     string
	ClientSecret string

	// RedirectURL is sent with the exchange when the
	// application registered one.
	RedirectURL string

	// Scopes requested by AuthCodeURL.
	Scopes []string

	// Endpoint holds the platform authorize and token
	// URLs.
	Endpoint oauth2.Endpoint
}

// Exchanger trades authorization codes for access
// tokens.
type Exchanger struct {
	oauth *oauth2.Config
}

// NewExchanger validates cfg and returns an Exchanger.
func NewExchanger(cfg Config) (*Exchanger, error) {
	const errCtx = "creating exchanger"

	if cfg.ClientID == "" {
		return nil, fmt.Errorf(
			"%s: client id must be set", errCtx,
		)
	}

	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf(
			"%s: client secret must be set", errCtx,
		)
	}

	if cfg.Endpoint.TokenURL == "" {
		return nil, fmt.Errorf(
			"%s: token url must be set", errCtx,
		)
	}

	return &Exchanger{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
	}, nil
}

// AuthCodeURL returns the platform page where the user
// authorizes the application.
func (e *Exchanger) AuthCodeURL(state string) string {
	return e.oauth.AuthCodeURL(state)
}

// Exchange trades code for an access token.
func (e *Exchanger) Exchange(
	ctx context.Context,
	code string,
) (string, error) {
	const errCtx = "exchanging authorization code"

	if code == "" {
		return "", fmt.Errorf(
			"%s: code must be set", errCtx,
		)
	}

	tok, err := e.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			slog.Warn(
				"token exchange rejected",
				"error_code", re.ErrorCode,
				"description", re.ErrorDescription,
			)
		}

		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return tok.AccessToken, nil
}
