package signing

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InitiateResponse is a remote provider's answer to a new envelope.
type InitiateResponse struct {
	DocumentID  string
	SigningURLs map[string]string
}

// DocumentInfo is a provider-side search hit.
type DocumentInfo struct {
	DocumentID string
	Title      string
	RawStatus  string
	Parties    []string
}

// RemoteSigningProvider abstracts one third-party signing service. The
// status normalizer is the single place that interprets the raw status
// vocabulary these return.
type RemoteSigningProvider interface {
	// ServiceKey is the provider's normalizer key, e.g. "scrive".
	ServiceKey() string
	Initiate(ctx context.Context, pdfBytes []byte, signers []Signer, metadata map[string]string) (*InitiateResponse, error)
	GetStatus(ctx context.Context, documentID string) (string, error)
	Download(ctx context.Context, documentID string) ([]byte, error)
	Search(ctx context.Context, params map[string]string) ([]DocumentInfo, error)
}

// ProviderRegistry maps service keys to their providers.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]RemoteSigningProvider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]RemoteSigningProvider)}
}

func (r *ProviderRegistry) Register(p RemoteSigningProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ServiceKey()] = p
}

func (r *ProviderRegistry) Get(service string) (RemoteSigningProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	return p, nil
}

// Services lists every registered service key plus the built-in
// self-sign service, sorted.
func (r *ProviderRegistry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := []string{ServiceSelfSign}
	for key := range r.providers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
