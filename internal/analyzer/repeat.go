// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyzer

import (
	"context"
	"strings"

	"github.com/volmill/volmill/pkg/types"
)

const (
	defaultMinRepeat = 3
	defaultWindow    = 3
)

// Repeat is the built-in analyzer: a line that recurs verbatim at the same
// position near the top or bottom of enough pages is a running header or
// footer and is dropped. It needs no external service, which makes it the
// default backend and the reference behavior for the others.
type Repeat struct {
	minRepeat int // pages a line must appear on to count as running
	window    int // positions from each page edge that are inspected
}

// NewRepeat builds the repetition analyzer. Non-positive parameters fall
// back to the defaults (3 pages, 3 positions).
func NewRepeat(minRepeat, window int) *Repeat {
	if minRepeat <= 0 {
		minRepeat = defaultMinRepeat
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &Repeat{minRepeat: minRepeat, window: window}
}

// Analyze tallies trimmed line text per edge position across all pages,
// then rebuilds each page without the lines that tallied at or above the
// repetition threshold. Comparison is exact after whitespace trimming, so
// varying page numbers survive; recurring titles do not.
func (r *Repeat) Analyze(_ context.Context, pages []types.Page) ([]types.PageResult, error) {
	head := make([]map[string]int, r.window)
	tail := make([]map[string]int, r.window)
	for i := 0; i < r.window; i++ {
		head[i] = make(map[string]int)
		tail[i] = make(map[string]int)
	}

	for _, p := range pages {
		for o := 0; o < r.window && o < len(p.Lines); o++ {
			if s := strings.TrimSpace(p.Lines[o]); s != "" {
				head[o][s]++
			}
			if s := strings.TrimSpace(p.Lines[len(p.Lines)-1-o]); s != "" {
				tail[o][s]++
			}
		}
	}

	results := make([]types.PageResult, len(pages))
	for i, p := range pages {
		drop := make([]bool, len(p.Lines))
		for o := 0; o < r.window && o < len(p.Lines); o++ {
			if s := strings.TrimSpace(p.Lines[o]); s != "" && head[o][s] >= r.minRepeat {
				drop[o] = true
			}
			if s := strings.TrimSpace(p.Lines[len(p.Lines)-1-o]); s != "" && tail[o][s] >= r.minRepeat {
				drop[len(p.Lines)-1-o] = true
			}
		}

		kept := make([]string, 0, len(p.Lines))
		for j, line := range p.Lines {
			if !drop[j] {
				kept = append(kept, line)
			}
		}
		results[i] = types.PageResult{Seq: p.Seq, Body: strings.Join(kept, "\n")}
	}
	return results, nil
}
