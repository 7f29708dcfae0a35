// Package calendar holds what the calendar backends share: the registry
// that opens them and the rate limiter their calls go through.
package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/guilherme-santos/calsync/internal"
)

// Opener connects to the calendar of account.
type Opener func(ctx context.Context, account *internal.Account) (internal.ReadWriter, error)

type Mux struct {
	mu      sync.Mutex
	openers map[string]Opener
}

func NewMux() *Mux {
	return &Mux{
		openers: make(map[string]Opener),
	}
}

func (m *Mux) Open(ctx context.Context, account *internal.Account) (internal.ReadWriter, error) {
	m.mu.Lock()
	open, ok := m.openers[account.Platform]
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("calendar %q is not implemented", account.Platform)
	}
	return open(ctx, account)
}

func (m *Mux) Register(platform string, open Opener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openers[platform] = open
}

func (m *Mux) Platforms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]string, 0, len(m.openers))
	for p := range m.openers {
		res = append(res, p)
	}
	sort.Strings(res)
	return res
}
