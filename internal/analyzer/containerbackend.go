// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/volmill/volmill/internal/container"
	"github.com/volmill/volmill/pkg/types"
)

// Container runs the analyzer as a local container image, one invocation
// per volume, with the same JSON wire format as the HTTP backend piped over
// stdin and stdout.
type Container struct {
	runtime container.Runtime
	image   string
	timeout time.Duration
}

// NewContainer builds the container backend. It verifies the image exists
// locally before returning so a misconfigured run fails before any archive
// is touched.
func NewContainer(rt container.Runtime, cfg types.AnalyzerConfig) (*Container, error) {
	if err := rt.ImageExists(cfg.Image); err != nil {
		return nil, fmt.Errorf("analyzer image not available in %s: %w", rt.Name(), err)
	}
	return &Container{runtime: rt, image: cfg.Image, timeout: cfg.Timeout}, nil
}

func (a *Container) Analyze(ctx context.Context, pages []types.Page) ([]types.PageResult, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(toWire(pages))
	if err != nil {
		return nil, fmt.Errorf("encoding analyzer request: %w", err)
	}

	var out bytes.Buffer
	if err := a.runtime.Run(ctx, a.image, bytes.NewReader(payload), &out); err != nil {
		return nil, err
	}

	var wr wireResponse
	if err := json.Unmarshal(out.Bytes(), &wr); err != nil {
		return nil, fmt.Errorf("parsing analyzer output: %w", err)
	}

	results := fromWire(wr.Results)
	if err := checkResults(pages, results); err != nil {
		return nil, err
	}
	return results, nil
}
