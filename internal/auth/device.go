// Package auth obtains and caches the credentials backends need.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"golang.org/x/oauth2"

	"github.com/guilherme-santos/calsync/internal"
)

// TokenStore persists the auth of an account, usually the sqlite storage.
type TokenStore interface {
	AccountAuth(_ context.Context, id string) (string, error)
	AddAccount(context.Context, *internal.Account) error
}

// DeviceFlow signs an account in through the OAuth device authorization
// grant and keeps its token in the store.
type DeviceFlow struct {
	Config  *oauth2.Config
	Store   TokenStore
	Account internal.Account
	// Out receives the sign-in instructions. When nil a missing token is
	// reported as internal.ErrAuthRequired instead of prompting.
	Out io.Writer
}

// TokenSource returns a source that refreshes the cached token and writes
// every new token back to the store.
func (f *DeviceFlow) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := f.cached(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil || (!tok.Valid() && tok.RefreshToken == "") {
		if tok, err = f.Login(ctx); err != nil {
			return nil, err
		}
	}
	return &storingSource{
		ctx:  context.WithoutCancel(ctx),
		flow: f,
		src:  f.Config.TokenSource(ctx, tok),
		last: tok.AccessToken,
	}, nil
}

// Login runs the device code flow and stores the token.
func (f *DeviceFlow) Login(ctx context.Context) (*oauth2.Token, error) {
	if f.Out == nil {
		return nil, fmt.Errorf("%s: %w", f.Account.ID(), internal.ErrAuthRequired)
	}
	resp, err := f.Config.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: requesting device code: %w", err)
	}
	fmt.Fprintf(f.Out, "\nTo sign in %s, open %s and enter the code %s\n", f.Account.ID(), resp.VerificationURI, resp.UserCode)

	tok, err := f.Config.DeviceAccessToken(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("auth: waiting for device authorization: %w", err)
	}
	if err := f.save(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func (f *DeviceFlow) cached(ctx context.Context) (*oauth2.Token, error) {
	raw, err := f.Store.AccountAuth(ctx, f.Account.ID())
	if err != nil {
		return nil, fmt.Errorf("auth: reading token cache: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		// A corrupt entry is the same as no entry.
		return nil, nil
	}
	return &tok, nil
}

func (f *DeviceFlow) save(ctx context.Context, tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	acc := f.Account
	acc.Auth = string(b)
	if err := f.Store.AddAccount(ctx, &acc); err != nil {
		return fmt.Errorf("auth: saving token: %w", err)
	}
	return nil
}

type storingSource struct {
	ctx  context.Context
	flow *DeviceFlow

	mu   sync.Mutex
	src  oauth2.TokenSource
	last string
}

func (s *storingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.AccessToken != s.last {
		if err := s.flow.save(s.ctx, tok); err != nil {
			return nil, err
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
