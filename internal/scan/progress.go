package scan

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
)

// progress reports scan position at a fixed interval. With a known total it
// logs percentage and two ETA estimates: one over the whole run and one over
// the last window, which reacts faster to rate changes (e.g. cache warmup).
type progress struct {
	total      int64
	interval   time.Duration
	started    time.Time
	lastTime   time.Time
	lastValue  int64
	now        func() time.Time // swappable for tests
}

func newProgress(total int64) *progress {
	now := time.Now()
	return &progress{
		total:    total,
		interval: 2 * time.Second,
		started:  now,
		lastTime: now,
		now:      time.Now,
	}
}

func (p *progress) update(value int64) {
	now := p.now()
	if now.Sub(p.lastTime) < p.interval || value <= p.lastValue {
		return
	}

	ev := log.Info().Str("position", humanize.IBytes(uint64(value)))
	if p.total > 0 {
		remaining := p.total - value
		etaWindow := time.Duration(float64(now.Sub(p.lastTime)) / float64(value-p.lastValue) * float64(remaining))
		etaTotal := time.Duration(float64(now.Sub(p.started)) / float64(value) * float64(remaining))
		ev = ev.
			Str("total", humanize.IBytes(uint64(p.total))).
			Float64("percent", float64(value)/float64(p.total)*100).
			Dur("eta", etaWindow.Round(time.Second)).
			Dur("eta_avg", etaTotal.Round(time.Second))
	} else {
		rate := float64(value-p.lastValue) / now.Sub(p.lastTime).Seconds()
		ev = ev.Str("rate", humanize.IBytes(uint64(rate))+"/s")
	}
	ev.Msg("scanning archive")

	p.lastTime = now
	p.lastValue = value
}
