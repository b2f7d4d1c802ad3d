package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Backend is the pair of values every gateway call needs.
type Backend struct {
	BaseURL string `json:"supabaseUrl"`
	AnonKey string `json:"supabaseAnonKey"`
}

func (b Backend) Complete() bool {
	return strings.TrimSpace(b.BaseURL) != "" && strings.TrimSpace(b.AnonKey) != ""
}

func (b Backend) normalized() Backend {
	return Backend{
		BaseURL: strings.TrimRight(strings.TrimSpace(b.BaseURL), "/"),
		AnonKey: strings.TrimSpace(b.AnonKey),
	}
}

// FileStore persists the backend selection between runs.
type FileStore struct {
	Path string
}

// Load returns the persisted backend. A missing or corrupt file yields the zero value.
func (s FileStore) Load() Backend {
	if s.Path == "" {
		return Backend{}
	}
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return Backend{}
	}
	var persisted Backend
	if err := json.Unmarshal(raw, &persisted); err != nil {
		return Backend{}
	}
	return persisted.normalized()
}

func (s FileStore) Save(b Backend) error {
	if s.Path == "" {
		return errors.New("config path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	raw, err := json.MarshalIndent(b.normalized(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, raw, 0o600)
}

func (s FileStore) Clear() error {
	if s.Path == "" {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RuntimeSource fetches backend settings from a runtime-config endpoint once per process.
type RuntimeSource struct {
	URL    string
	Client *http.Client

	once   sync.Once
	result Backend
}

// Fetch never fails: an unreachable or malformed endpoint yields the zero value.
func (r *RuntimeSource) Fetch(ctx context.Context) Backend {
	if r == nil || strings.TrimSpace(r.URL) == "" {
		return Backend{}
	}
	r.once.Do(func() {
		r.result = r.fetch(ctx)
	})
	return r.result
}

func (r *RuntimeSource) fetch(ctx context.Context) Backend {
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return Backend{}
	}
	req.Header.Set("Cache-Control", "no-store")
	resp, err := client.Do(req)
	if err != nil {
		return Backend{}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Backend{}
	}
	var payload Backend
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Backend{}
	}
	return payload.normalized()
}

// Resolver merges backend settings. Explicit values win over the persisted file,
// which wins over the runtime endpoint, which wins over the environment.
type Resolver struct {
	Store   FileStore
	Runtime *RuntimeSource
	Env     Backend
}

func NewResolver(cfg Config) *Resolver {
	return &Resolver{
		Store:   FileStore{Path: cfg.ConfigFile},
		Runtime: &RuntimeSource{URL: cfg.RuntimeConfigURL},
		Env:     Backend{BaseURL: cfg.BaseURL, AnonKey: cfg.AnonKey},
	}
}

// Resolve returns the effective backend. Explicit values are persisted, and so is
// a complete runtime answer when nothing complete was persisted before.
func (r *Resolver) Resolve(ctx context.Context, explicit Backend) (Backend, error) {
	explicit = explicit.normalized()
	persisted := r.Store.Load()

	if explicit.BaseURL != "" || explicit.AnonKey != "" {
		merged := Backend{
			BaseURL: firstNonEmpty(explicit.BaseURL, persisted.BaseURL),
			AnonKey: firstNonEmpty(explicit.AnonKey, persisted.AnonKey),
		}
		if err := r.Store.Save(merged); err != nil {
			return Backend{}, err
		}
		persisted = merged
	}

	runtime := Backend{}
	if !persisted.Complete() {
		runtime = r.Runtime.Fetch(ctx)
		if runtime.Complete() {
			if err := r.Store.Save(runtime); err != nil {
				return Backend{}, err
			}
		}
	}

	env := r.Env.normalized()
	return Backend{
		BaseURL: firstNonEmpty(persisted.BaseURL, runtime.BaseURL, env.BaseURL),
		AnonKey: firstNonEmpty(persisted.AnonKey, runtime.AnonKey, env.AnonKey),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
