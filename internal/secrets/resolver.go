// Package secrets resolves "op://vault/item/field" references stored
// in monitor settings into concrete secret values via the 1Password
// Connect API. Monitors that embed plaintext credentials (password,
// private_key, access keys) skip this path entirely — CredentialRef
// is only consulted when those fields are empty.
package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/1Password/connect-sdk-go/connect"
)

// Resolver resolves op:// references against a 1Password Connect
// server, caching results for the lifetime of the process.
type Resolver struct {
	client connect.Client

	mu    sync.RWMutex
	cache map[string]string
}

// NewResolver builds a Resolver from Connect server coordinates. host
// and token come from OP_CONNECT_HOST/OP_CONNECT_TOKEN.
func NewResolver(host, token string) (*Resolver, error) {
	if host == "" || token == "" {
		return nil, fmt.Errorf("1password connect host and token are required")
	}
	return &Resolver{
		client: connect.NewClientWithUserAgent(host, token, "sentrymon"),
		cache:  make(map[string]string),
	}, nil
}

// Resolve returns the secret value named by an "op://vault/item/field"
// reference. Results are cached by the literal reference string.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	vault, item, field, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	if v, ok := r.cache[ref]; ok {
		r.mu.RUnlock()
		return v, nil
	}
	r.mu.RUnlock()

	items, err := r.client.GetItemsByTitle(item, vault)
	if err != nil {
		return "", fmt.Errorf("op: list items in vault %q: %w", vault, err)
	}
	if len(items) == 0 {
		return "", fmt.Errorf("op: item %q not found in vault %q", item, vault)
	}

	full, err := r.client.GetItem(items[0].ID, vault)
	if err != nil {
		return "", fmt.Errorf("op: get item %q: %w", item, err)
	}

	for _, f := range full.Fields {
		if strings.EqualFold(f.Label, field) || strings.EqualFold(f.ID, field) {
			r.mu.Lock()
			r.cache[ref] = f.Value
			r.mu.Unlock()
			return f.Value, nil
		}
	}
	return "", fmt.Errorf("op: field %q not found on item %q", field, item)
}

// parseReference splits "op://vault/item/field" into its parts.
func parseReference(ref string) (vault, item, field string, err error) {
	const prefix = "op://"
	if !strings.HasPrefix(ref, prefix) {
		return "", "", "", fmt.Errorf("op: reference %q must start with %q", ref, prefix)
	}
	parts := strings.Split(strings.TrimPrefix(ref, prefix), "/")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("op: reference %q must have the form op://vault/item/field", ref)
	}
	return parts[0], parts[1], parts[2], nil
}
