package sink

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/message"
)

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPlotAxisExpansion(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlot(&buf, 16)

	t0 := time.Date(2026, 8, 25, 12, 0, 0, 0, time.Local)
	p.Append(message.NewAt(1, "cpu", message.Scalar(10), t0))
	p.Append(message.NewAt(1, "cpu", message.Scalar(20), t0.Add(2*time.Second)))
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	snaps := p.Snapshot()
	if len(snaps) != 1 {
		t.Fatalf("got %d series, want 1", len(snaps))
	}
	s := snaps[0]
	if s.SensorID != 1 || s.Name != "cpu" || s.Count != 2 {
		t.Errorf("series = %+v", s)
	}
	if s.Min != 10 || s.Max != 20 {
		t.Errorf("min/max = %v/%v, want 10/20", s.Min, s.Max)
	}
	// Margin is 5% of the observed span on each side.
	if !almost(s.Lo, 9.5) || !almost(s.Hi, 20.5) {
		t.Errorf("axis = [%v, %v], want [9.5, 20.5]", s.Lo, s.Hi)
	}
	// Time axis is relative to the first sample of the series.
	if !almost(s.LastT, 2) {
		t.Errorf("LastT = %v, want 2", s.LastT)
	}
}

func TestPlotFlatSeriesAxis(t *testing.T) {
	p := NewPlot(&bytes.Buffer{}, 16)
	p.Append(message.New(1, "flat", message.Scalar(5)))
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s := p.Snapshot()[0]
	// A zero span falls back to a unit span so the axis never collapses.
	if !almost(s.Lo, 4.95) || !almost(s.Hi, 5.05) {
		t.Errorf("axis = [%v, %v], want [4.95, 5.05]", s.Lo, s.Hi)
	}
}

func TestPlotSeparateSeriesPerSensor(t *testing.T) {
	p := NewPlot(&bytes.Buffer{}, 16)
	p.Append(message.New(2, "mem", message.Scalar(1)))
	p.Append(message.New(1, "cpu", message.Scalar(2)))
	p.Append(message.New(2, "mem", message.Vector([]float64{3, 4})))
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	snaps := p.Snapshot()
	if len(snaps) != 2 {
		t.Fatalf("got %d series, want 2", len(snaps))
	}
	if snaps[0].SensorID != 1 || snaps[1].SensorID != 2 {
		t.Errorf("snapshot order = %d, %d, want 1, 2", snaps[0].SensorID, snaps[1].SensorID)
	}
	if snaps[1].Count != 3 {
		t.Errorf("sensor 2 count = %d, want 3 (vector counts per component)", snaps[1].Count)
	}
}

func TestPlotRenderTruncatesOnRuneBoundary(t *testing.T) {
	p := NewPlot(&bytes.Buffer{}, 16)
	// A long multi-byte name forces truncation at the default 80-column
	// width for a non-terminal writer.
	name := strings.Repeat("温度計", 40)
	p.Append(message.New(1, name, message.Scalar(1)))
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var out bytes.Buffer
	p.Render(&out)

	line := strings.TrimRight(out.String(), "\n")
	if !utf8.ValidString(line) {
		t.Errorf("rendered line is not valid UTF-8: %q", line)
	}
	if n := utf8.RuneCountInString(line); n > 80 {
		t.Errorf("rendered line is %d runes, want at most 80", n)
	}
}

func TestPlotControlRendersAndLatches(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlot(&buf, 16)
	defer p.Close()

	p.Append(message.New(1, "cpu", message.Scalar(1)))
	p.Append(message.Control(1, "cpu"))

	deadline := time.Now().Add(2 * time.Second)
	for !p.closed.Load() {
		if time.Now().After(deadline) {
			t.Fatal("plot did not latch closed on control")
		}
		time.Sleep(time.Millisecond)
	}
	// Join the worker so the final render is complete before inspecting it.
	p.wg.Wait()

	if buf.Len() == 0 {
		t.Error("no final render emitted on control")
	}
	if err := p.Append(message.New(1, "cpu", message.Scalar(2))); !errors.Is(err, errors.ErrSinkClosed) {
		t.Errorf("Append after control: error = %v, want ErrSinkClosed", err)
	}
}
