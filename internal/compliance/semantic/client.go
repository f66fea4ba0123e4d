package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// HTTPProvider calls an embedding service over HTTP. Rule reference
// embeddings are cached after the first fetch since rule text only changes
// through the admin surface, which bumps the rule's updated_at and invalidates
// the engine's rule cache anyway.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu        sync.RWMutex
	ruleCache map[uuid.UUID][]float64
}

// NewHTTPProvider creates a provider against the given base URL. apiKey may
// be empty for unauthenticated deployments.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPProvider{
		baseURL:   baseURL,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: timeout},
		ruleCache: make(map[uuid.UUID][]float64),
	}
}

func (p *HTTPProvider) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// EmbedText requests an embedding for the given text.
func (p *HTTPProvider) EmbedText(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode embedding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build embedding request")
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "embedding request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d", resp.StatusCode)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "failed to decode embedding response")
	}
	if len(decoded.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return decoded.Embedding, nil
}

// RuleEmbedding fetches (and caches) the reference embedding for a rule.
func (p *HTTPProvider) RuleEmbedding(ctx context.Context, ruleID uuid.UUID) ([]float64, error) {
	p.mu.RLock()
	if cached, ok := p.ruleCache[ruleID]; ok {
		p.mu.RUnlock()
		return cached, nil
	}
	p.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/rules/%s/embedding", p.baseURL, ruleID), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build rule embedding request")
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "rule embedding request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d", resp.StatusCode)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "failed to decode rule embedding response")
	}
	if len(decoded.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}

	p.mu.Lock()
	p.ruleCache[ruleID] = decoded.Embedding
	p.mu.Unlock()

	return decoded.Embedding, nil
}
