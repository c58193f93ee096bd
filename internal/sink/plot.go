package sink

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"golang.org/x/term"

	"github.com/tkarlsson/sensord/config"
	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/message"
)

// Plot routes samples to a rendering goroutine via a queue, keyed by sensor
// id so each sensor gets its own panel. The time axis is relative to the
// first sample seen per sensor; value axis limits auto-expand to the
// observed min/max with a small margin. A DDSketch per sensor provides
// p50/p95/p99 for the rendered summary.
//
// A control message signals the rendering goroutine to stop; it emits one
// final render before exiting.
type Plot struct {
	queue chan *message.Message
	done  chan struct{}

	closed atomic.Bool
	wg     sync.WaitGroup

	out    io.Writer
	margin float64

	mu     sync.Mutex
	series map[int64]*series
}

type series struct {
	name  string
	t0    time.Time
	count int
	lastT float64

	min, max float64
	lo, hi   float64 // axis limits, min/max plus margin

	sketch *ddsketch.DDSketch
}

// SeriesSnapshot is a read-only view of one sensor's plotting state.
type SeriesSnapshot struct {
	SensorID int64
	Name     string
	Count    int
	LastT    float64
	Min, Max float64
	Lo, Hi   float64
	P50      float64
	P95      float64
	P99      float64
}

// NewPlot starts the rendering goroutine. The final render goes to out
// (normally os.Stdout).
func NewPlot(out io.Writer, queueSize int) *Plot {
	if queueSize <= 0 {
		queueSize = config.DefaultSinkQueueSize
	}
	p := &Plot{
		queue:  make(chan *message.Message, queueSize),
		done:   make(chan struct{}),
		out:    out,
		margin: config.DefaultPlotMargin,
		series: make(map[int64]*series),
	}
	p.wg.Add(1)
	go p.render()
	return p
}

// Kind returns KindPlot.
func (p *Plot) Kind() Kind { return KindPlot }

// Append enqueues m for the rendering goroutine without blocking.
func (p *Plot) Append(m *message.Message) error {
	if p.closed.Load() {
		return errors.ErrSinkClosed
	}
	select {
	case p.queue <- m:
		return nil
	default:
		return errors.ErrQueueFull
	}
}

// Close stops the rendering goroutine. Idempotent.
func (p *Plot) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		close(p.done)
	}
	p.wg.Wait()
	return nil
}

// render is the worker loop. All series mutation happens here; Snapshot
// readers synchronize through the mutex.
func (p *Plot) render() {
	defer p.wg.Done()

	for {
		select {
		case m := <-p.queue:
			if m.IsControl() {
				p.closed.Store(true)
				p.Render(p.out)
				return
			}
			p.observe(m)
		case <-p.done:
			for {
				select {
				case m := <-p.queue:
					if !m.IsControl() {
						p.observe(m)
					}
				default:
					p.Render(p.out)
					return
				}
			}
		}
	}
}

func (p *Plot) observe(m *message.Message) {
	ts, err := message.ParseTimestamp(m.Timestamp)
	if err != nil {
		ts = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.series[m.ID]
	if !ok {
		sketch, serr := ddsketch.NewDefaultDDSketch(0.01)
		if serr != nil {
			log.Warn("sketch init failed", "error", serr)
		}
		s = &series{name: m.Name, t0: ts, sketch: sketch}
		p.series[m.ID] = s
	}

	for _, v := range m.Data.Values() {
		if s.count == 0 {
			s.min, s.max = v, v
		} else {
			if v < s.min {
				s.min = v
			}
			if v > s.max {
				s.max = v
			}
		}
		s.count++
		if s.sketch != nil {
			// DDSketch only indexes positive values; out-of-range samples
			// still update the min/max axis.
			s.sketch.Add(v)
		}
	}
	s.lastT = ts.Sub(s.t0).Seconds()

	span := s.max - s.min
	if span == 0 {
		span = 1
	}
	s.lo = s.min - p.margin*span
	s.hi = s.max + p.margin*span
}

// Snapshot returns the current state of every series, sorted by sensor id.
func (p *Plot) Snapshot() []SeriesSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]SeriesSnapshot, 0, len(p.series))
	for id, s := range p.series {
		snap := SeriesSnapshot{
			SensorID: id,
			Name:     s.name,
			Count:    s.count,
			LastT:    s.lastT,
			Min:      s.min,
			Max:      s.max,
			Lo:       s.lo,
			Hi:       s.hi,
		}
		if s.sketch != nil && s.count > 0 {
			if q, err := s.sketch.GetValueAtQuantile(0.50); err == nil {
				snap.P50 = q
			}
			if q, err := s.sketch.GetValueAtQuantile(0.95); err == nil {
				snap.P95 = q
			}
			if q, err := s.sketch.GetValueAtQuantile(0.99); err == nil {
				snap.P99 = q
			}
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

// Render writes one summary panel per sensor to w, sized to the terminal
// when w is one.
func (p *Plot) Render(w io.Writer) {
	width := 80
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
			width = tw
		}
	}

	for _, s := range p.Snapshot() {
		line := fmt.Sprintf("[%d] %s  n=%d  t=%.1fs  axis=[%.4g, %.4g]  p50=%.4g p95=%.4g p99=%.4g",
			s.SensorID, s.Name, s.Count, s.LastT, s.Lo, s.Hi, s.P50, s.P95, s.P99)
		if len(line) > width {
			// Truncate on rune boundaries; sensor names are not ASCII-only.
			if runes := []rune(line); len(runes) > width {
				line = string(runes[:width])
			}
		}
		fmt.Fprintln(w, line)
	}
}
