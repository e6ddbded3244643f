package watch

import (
	"strings"
	"time"
)

// Ticker alternates frames once per tick. A frame that stops changing
// means the UI loop is stuck.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"⟲", "⟳"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

const pulseDots = 5

// Pulse lights up on task events and fades one dot every two seconds.
type Pulse struct {
	dots      int
	total     int
	lastEvent time.Time
}

func (p *Pulse) OnEvent(now time.Time) {
	p.dots = pulseDots
	p.total++
	p.lastEvent = now
}

// Decay dims the pulse according to the time since the last event.
func (p *Pulse) Decay(now time.Time) {
	if p.dots == 0 {
		return
	}
	faded := int(now.Sub(p.lastEvent) / (2 * time.Second))
	p.dots = max(0, pulseDots-faded)
}

func (p Pulse) Render(theme Theme) string {
	var b strings.Builder
	for i := range pulseDots {
		if i < p.dots {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}

func (p Pulse) LastEvent() time.Time { return p.lastEvent }

func (p Pulse) Total() int { return p.total }
