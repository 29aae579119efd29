package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stemsi/docquiz-backend/internal/forms"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Authorizer runs the OAuth authorization code flow against the form
// provider.
type Authorizer interface {
	AuthCodeURL(state string) string
	// Exchange trades a single-use code for an authorized HTTP client.
	Exchange(ctx context.Context, code string) (*http.Client, error)
}

type GoogleAuthorizer struct {
	cfg *oauth2.Config
}

func NewGoogleAuthorizer(clientID, clientSecret, redirectURL string) *GoogleAuthorizer {
	return &GoogleAuthorizer{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{forms.Scope},
		Endpoint:     google.Endpoint,
	}}
}

// AuthCodeURL requests offline access and always shows the consent screen.
func (a *GoogleAuthorizer) AuthCodeURL(state string) string {
	return a.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (a *GoogleAuthorizer) Exchange(ctx context.Context, code string) (*http.Client, error) {
	tok, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return a.cfg.Client(context.WithoutCancel(ctx), tok), nil
}
