package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ent0n29/speechrelay/internal/session"
)

// RegionSource exposes the watched response region of a collaborator that
// cannot push observations itself.
type RegionSource interface {
	CurrentRegionText() (text string, growing bool)
}

// Observer is the part of Monitor a Poller drives.
type Observer interface {
	BeginResponse(id string) (string, error)
	OnTextObserved(raw string, stillGrowing bool) error
}

// Poller samples a RegionSource and forwards changes to an Observer. When a
// region stops growing the response is ended; a later change of text starts a
// new response.
type Poller struct {
	src      RegionSource
	obs      Observer
	interval time.Duration
	logger   *slog.Logger

	lastText    string
	lastGrowing bool
	ended       bool
}

func NewPoller(src RegionSource, obs Observer, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{src: src, obs: obs, interval: interval, logger: logger}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Poll samples the source once.
func (p *Poller) Poll() {
	text, growing := p.src.CurrentRegionText()
	if text == "" || (text == p.lastText && growing == p.lastGrowing) {
		return
	}

	if p.ended {
		if text == p.lastText {
			return
		}
		if _, err := p.obs.BeginResponse(""); err != nil {
			p.logger.Warn("poller could not start response", "error", err)
			return
		}
		p.ended = false
	}

	p.lastText, p.lastGrowing = text, growing
	err := p.obs.OnTextObserved(text, growing)
	switch {
	case errors.Is(err, session.ErrRetired):
		p.ended = true
	case err != nil:
		p.logger.Warn("poller observation rejected", "error", err)
	}
	if !growing {
		p.ended = true
	}
}
