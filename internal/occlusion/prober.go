// prober.go - Selector-ordered, short-circuiting occlusion probe.
package occlusion

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/brennhill/pagesettle/internal/util"
)

const (
	// DefaultMinPaintAreaPx is the smallest visible area that counts as painted.
	DefaultMinPaintAreaPx = 4
	// DefaultMaxNodes bounds the subtree walk of a single host.
	DefaultMaxNodes = 5000
)

var errNoViewport = errors.New("viewport has no area")

// Config tunes a probe. A zero MaxNodes takes the default. MinPaintAreaPx
// of 0 accepts any non-empty area; a negative value takes the default.
type Config struct {
	Debug          bool    `json:"debug"`
	MinPaintAreaPx float64 `json:"minPaintAreaPx"`
	MaxNodes       int     `json:"maxNodes"`
}

// DefaultConfig returns the standard probe settings.
func DefaultConfig() Config {
	return Config{MinPaintAreaPx: DefaultMinPaintAreaPx, MaxNodes: DefaultMaxNodes}
}

func (c Config) normalized() Config {
	if c.MinPaintAreaPx < 0 {
		c.MinPaintAreaPx = DefaultMinPaintAreaPx
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = DefaultMaxNodes
	}
	return c
}

// Prober runs occlusion queries. It keeps no state between probes.
type Prober struct {
	cfg Config
	log zerolog.Logger
}

// NewProber returns a prober. Debug events go to log only when cfg.Debug is set.
func NewProber(cfg Config, log zerolog.Logger) *Prober {
	return &Prober{cfg: cfg.normalized(), log: log}
}

// Probe reports whether any element matching selectors, tried in order, is
// painted and topmost. Errors and panics report false.
func (p *Prober) Probe(ctx context.Context, doc Document, selectors []string) bool {
	var busy bool
	err := util.Catch(func() error {
		var err error
		busy, err = p.probe(ctx, doc, selectors)
		return err
	})
	if err != nil {
		if p.cfg.Debug {
			p.log.Debug().Err(err).Msg("occlusion: probe failed, reporting not busy")
		}
		return false
	}
	return busy
}

// Probe is a one-shot convenience around NewProber(cfg, zerolog.Nop()).
func Probe(ctx context.Context, doc Document, selectors []string, cfg Config) bool {
	return NewProber(cfg, zerolog.Nop()).Probe(ctx, doc, selectors)
}

func (p *Prober) probe(ctx context.Context, doc Document, selectors []string) (bool, error) {
	if len(selectors) == 0 {
		return false, nil
	}
	viewport, err := doc.Viewport(ctx)
	if err != nil {
		return false, err
	}
	if viewport.Area() == 0 {
		return false, errNoViewport
	}

	for _, sel := range selectors {
		hosts, err := doc.QuerySelectorAll(ctx, sel)
		if err != nil {
			return false, err
		}
		for _, host := range hosts {
			if host == nil {
				continue
			}
			cands, err := p.paintCandidates(ctx, host, viewport)
			if err != nil {
				return false, err
			}
			c, ok := deepest(cands)
			if !ok {
				continue
			}
			top, err := p.topmost(ctx, doc, c, host, viewport)
			if err != nil {
				return false, err
			}
			if p.cfg.Debug {
				p.log.Debug().
					Str("selector", sel).
					Int64("host", int64(host.ID())).
					Int64("candidate", int64(c.node.ID())).
					Int("depth", c.depth).
					Bool("topmost", top).
					Msg("occlusion: candidate checked")
			}
			if top {
				return true, nil
			}
		}
	}
	return false, nil
}
