package library

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tunes/internal/cachedb"
)

// Token identifies a backend object that can be re-created on demand.
type Token struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// IsZero reports whether the token names no backend.
func (t Token) IsZero() bool { return t.Kind == "" }

// Key returns "kind:id".
func (t Token) Key() string { return t.Kind + ":" + t.ID }

func (t Token) String() string { return t.Key() }

func (t Token) ref() cachedb.TokenRef {
	return cachedb.TokenRef{Kind: t.Kind, ID: t.ID}
}

func tokenFromRef(ref cachedb.TokenRef) Token {
	return Token{Kind: ref.Kind, ID: ref.ID}
}

// ParseToken parses "kind:id".
func ParseToken(value string) (Token, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || kind == "" || id == "" {
		return Token{}, fmt.Errorf("parse token %q: expected kind:id", value)
	}
	return Token{Kind: kind, ID: id}, nil
}

// Expander re-creates the live entity a token names.
type Expander func(ctx context.Context, token Token) (Entity, error)

// Registry maps token kinds to expanders.
type Registry struct {
	mu        sync.RWMutex
	expanders map[string]Expander
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{expanders: make(map[string]Expander)}
}

// Register installs the expander of kind, replacing any previous one.
func (r *Registry) Register(kind string, fn Expander) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expanders[kind] = fn
}

// Expand creates the live entity behind token.
func (r *Registry) Expand(ctx context.Context, token Token) (Entity, error) {
	r.mu.RLock()
	fn, ok := r.expanders[token.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("expand %s: %w", token.Kind, ErrUnsupported)
	}
	entity, err := fn(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", token.Key(), err)
	}
	return entity, nil
}

// Kinds lists the registered token kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.expanders))
	for kind := range r.expanders {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}
