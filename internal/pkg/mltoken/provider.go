// Package mltoken hands out valid Mercado Livre access tokens for seller accounts,
// refreshing them through the OAuth2 refresh-token grant when they expire.
package mltoken

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ManuelReschke/MeliDesk/app/models"
	"github.com/ManuelReschke/MeliDesk/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/oauth2"
)

const (
	DefaultTokenURL = "https://api.mercadolibre.com/oauth/token"
	DefaultTimeout  = 15 * time.Second
)

// ErrNoToken is returned when no usable access token can be produced for an account.
var ErrNoToken = errors.New("mltoken: no valid access token")

type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	// Timeout bounds one refresh request. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Provider refreshes and persists account tokens.
type Provider struct {
	accounts repository.AccountRepository
	oauth    *oauth2.Config
	client   *http.Client
	timeout  time.Duration
	mu       sync.Mutex
}

func NewProvider(accounts repository.AccountRepository, cfg Config) *Provider {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Provider{
		accounts: accounts,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// AccessToken returns a valid bearer token for account. A refreshed token is
// written back to the account row and to account itself.
func (p *Provider) AccessToken(ctx context.Context, account *models.Account) (string, error) {
	if account == nil {
		return "", ErrNoToken
	}
	if account.AccessToken == "" && account.RefreshToken == "" {
		return "", fmt.Errorf("%w: account %s has no credentials", ErrNoToken, account.ID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		TokenType:    "Bearer",
	}
	if account.TokenExpiresAt != nil {
		current.Expiry = *account.TokenExpiresAt
	}

	refreshCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	refreshCtx = context.WithValue(refreshCtx, oauth2.HTTPClient, p.client)

	tok, err := p.oauth.TokenSource(refreshCtx, current).Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	if tok.AccessToken == "" {
		return "", ErrNoToken
	}

	if tok.AccessToken != account.AccessToken {
		log.Infof("[TokenProvider] Refreshed access token for account %s", account.ID)

		var expiresAt *time.Time
		if !tok.Expiry.IsZero() {
			expiry := tok.Expiry.UTC()
			expiresAt = &expiry
		}
		refresh := tok.RefreshToken
		if refresh == "" {
			refresh = account.RefreshToken
		}

		if err := p.accounts.UpdateTokens(ctx, account.ID, tok.AccessToken, refresh, expiresAt); err != nil {
			log.Errorf("[TokenProvider] Failed to persist refreshed token for account %s: %v", account.ID, err)
		}
		account.AccessToken = tok.AccessToken
		account.RefreshToken = refresh
		account.TokenExpiresAt = expiresAt
	}

	return tok.AccessToken, nil
}
