// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analyzer is the boundary to the page-structure analysis
// capability that strips running headers and footers. The pipeline never
// inspects page content itself; everything content-aware happens behind the
// Analyzer interface. Three backends exist: a built-in repetition heuristic,
// an HTTP service, and a container image.
package analyzer

import (
	"context"
	"fmt"

	"github.com/volmill/volmill/internal/container"
	"github.com/volmill/volmill/pkg/types"
)

// Analyzer removes running headers and footers from one volume's ordered
// page collection. Implementations must return exactly one result per input
// page, in the same order; the caller rejects anything else.
type Analyzer interface {
	Analyze(ctx context.Context, pages []types.Page) ([]types.PageResult, error)
}

// New builds the analyzer selected by cfg.Backend. The container backend
// detects a local docker or podman installation and fails fast when neither
// is operational or the image is missing.
func New(cfg types.AnalyzerConfig) (Analyzer, error) {
	switch cfg.Backend {
	case types.AnalyzerRepeat:
		return NewRepeat(cfg.MinRepeat, cfg.Window), nil
	case types.AnalyzerHTTP:
		return NewHTTP(cfg)
	case types.AnalyzerContainer:
		rt, err := container.DetectRuntime()
		if err != nil {
			return nil, err
		}
		return NewContainer(rt, cfg)
	default:
		return nil, fmt.Errorf("unknown analyzer backend %q", cfg.Backend)
	}
}

// Wire types shared by the HTTP and container backends. Both speak the same
// JSON: a request carrying ordered pages of raw lines, a response carrying
// ordered cleaned bodies.

type wireRequest struct {
	Pages []wirePage `json:"pages"`
}

type wirePage struct {
	Seq   int      `json:"seq"`
	Lines []string `json:"lines"`
}

type wireResponse struct {
	Results []wireResult `json:"results"`
}

type wireResult struct {
	Seq  int    `json:"seq"`
	Body string `json:"body"`
}

func toWire(pages []types.Page) wireRequest {
	req := wireRequest{Pages: make([]wirePage, len(pages))}
	for i, p := range pages {
		req.Pages[i] = wirePage{Seq: p.Seq, Lines: p.Lines}
	}
	return req
}

func fromWire(results []wireResult) []types.PageResult {
	out := make([]types.PageResult, len(results))
	for i, r := range results {
		out[i] = types.PageResult{Seq: r.Seq, Body: r.Body}
	}
	return out
}

// checkResults validates the analyzer's response shape: exactly one result
// per page, in page order.
func checkResults(pages []types.Page, results []types.PageResult) error {
	if len(results) != len(pages) {
		return fmt.Errorf("analyzer returned %d results for %d pages", len(results), len(pages))
	}
	for i, r := range results {
		if r.Seq != pages[i].Seq {
			return fmt.Errorf("analyzer result %d is for page %d, want page %d", i, r.Seq, pages[i].Seq)
		}
	}
	return nil
}
