// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/volmill/volmill/internal/httputil"
	"github.com/volmill/volmill/pkg/types"
)

// HTTP calls a remote analyzer service: one POST per volume carrying the
// ordered pages as JSON, answered with the ordered cleaned bodies. Transient
// failures are retried with backoff; the client timeout bounds each attempt
// so a hung service cannot stall a worker forever.
type HTTP struct {
	client *http.Client
	url    string
	token  string
}

// NewHTTP builds the HTTP backend from cfg. The bearer token, when
// configured, is read once from the token file at construction time.
func NewHTTP(cfg types.AnalyzerConfig) (*HTTP, error) {
	token, err := readToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}
	return &HTTP{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
		token:  token,
	}, nil
}

// readToken returns the trimmed contents of the token file, or empty when
// no file is configured.
func readToken(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading analyzer token %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (a *HTTP) Analyze(ctx context.Context, pages []types.Page) ([]types.PageResult, error) {
	payload, err := json.Marshal(toWire(pages))
	if err != nil {
		return nil, fmt.Errorf("encoding analyzer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating analyzer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := httputil.DoWithRetry(ctx, a.client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("analyzer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analyzer returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("parsing analyzer response: %w", err)
	}

	results := fromWire(wr.Results)
	if err := checkResults(pages, results); err != nil {
		return nil, err
	}
	return results, nil
}
