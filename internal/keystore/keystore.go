// Package keystore resolves application keys to shared secrets.
package keystore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("keystore: app key not found")

// Keystore is consulted by the server for every envelope. Implementations
// must be safe for concurrent use; the server never writes to them.
type Keystore interface {
	Lookup(ctx context.Context, appKey string) (string, error)
}

// Map is a static keystore. It must not be modified after construction.
type Map map[string]string

func (m Map) Lookup(_ context.Context, appKey string) (string, error) {
	secret, ok := m[appKey]
	if !ok || secret == "" {
		return "", ErrNotFound
	}
	return secret, nil
}

// Chain asks each keystore in order and returns the first hit. Backend
// failures stop the search.
type Chain []Keystore

func (c Chain) Lookup(ctx context.Context, appKey string) (string, error) {
	for _, ks := range c {
		if ks == nil {
			continue
		}
		secret, err := ks.Lookup(ctx, appKey)
		if err == nil {
			return secret, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", ErrNotFound
}
