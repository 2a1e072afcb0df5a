package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"todo-planner/internal/apperr"
	"todo-planner/internal/repository"
)

// TokenKey is the blob key the OAuth token is persisted under.
const TokenKey = "google_tasks_token_v1"

// PromptFunc shows the consent URL to the user and returns the code they paste back.
type PromptFunc func(ctx context.Context, authURL string) (string, error)

// OAuthConfig holds the client registration.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides the Google endpoint, used by tests.
	Endpoint *oauth2.Endpoint
}

// OAuthProvider implements Provider with the authorization code flow.
// Interactive fetches go through the consent page; silent fetches only use
// the stored refresh token.
type OAuthProvider struct {
	conf   *oauth2.Config
	blobs  repository.BlobStore
	prompt PromptFunc
	log    *zap.Logger
}

func NewOAuthProvider(cfg OAuthConfig, blobs repository.BlobStore, prompt PromptFunc, log *zap.Logger) (*OAuthProvider, error) {
	if cfg.ClientID == "" {
		return nil, apperr.ErrClientIDRequired
	}
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &OAuthProvider{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{Scope},
			Endpoint:     endpoint,
		},
		blobs:  blobs,
		prompt: prompt,
		log:    log,
	}, nil
}

func (p *OAuthProvider) FetchToken(ctx context.Context, interactive bool) (Token, error) {
	stored, err := p.load(ctx)
	if err != nil {
		return Token{}, err
	}

	if stored.RefreshToken != "" {
		src := p.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: stored.RefreshToken})
		tok, err := src.Token()
		if err == nil {
			return p.store(ctx, tok, stored.RefreshToken)
		}
		if !interactive {
			return Token{}, fmt.Errorf("refresh token: %w", err)
		}
		p.log.Warn("refresh failed, asking for consent", zap.Error(err))
	}

	if !interactive || p.prompt == nil {
		return Token{}, ErrInteractionRequired
	}

	authURL := p.conf.AuthCodeURL(uuid.NewString(), oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	input, err := p.prompt(ctx, authURL)
	if err != nil {
		return Token{}, fmt.Errorf("consent prompt: %w", err)
	}
	code := CodeFromInput(input)
	if code == "" {
		return Token{}, apperr.New(apperr.CodeInvalid, "no authorization code entered")
	}
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return Token{}, fmt.Errorf("exchange code: %w", err)
	}
	return p.store(ctx, tok, stored.RefreshToken)
}

// SignOut forgets the persisted refresh token.
func (p *OAuthProvider) SignOut(ctx context.Context) error {
	return p.blobs.Delete(ctx, TokenKey)
}

func (p *OAuthProvider) load(ctx context.Context) (Token, error) {
	data, err := p.blobs.Load(ctx, TokenKey)
	if errors.Is(err, repository.ErrBlobNotFound) {
		return Token{}, nil
	}
	if err != nil {
		return Token{}, fmt.Errorf("load token: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		p.log.Warn("stored token is corrupt, ignoring", zap.Error(err))
		return Token{}, nil
	}
	return tok, nil
}

func (p *OAuthProvider) store(ctx context.Context, tok *oauth2.Token, previousRefresh string) (Token, error) {
	out := Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if out.RefreshToken == "" {
		out.RefreshToken = previousRefresh
	}
	data, err := json.Marshal(out)
	if err != nil {
		return Token{}, fmt.Errorf("encode token: %w", err)
	}
	if err := p.blobs.Save(ctx, TokenKey, data); err != nil {
		return Token{}, fmt.Errorf("save token: %w", err)
	}
	return out, nil
}

// CodeFromInput accepts either the bare authorization code or the whole
// address the browser was redirected to and returns the code.
func CodeFromInput(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "code=") {
		return input
	}
	u, err := url.Parse(input)
	if err != nil {
		return input
	}
	if code := u.Query().Get("code"); code != "" {
		return code
	}
	if q, err := url.ParseQuery(strings.TrimPrefix(input, "?")); err == nil && q.Get("code") != "" {
		return q.Get("code")
	}
	return input
}
