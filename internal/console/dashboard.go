// Package console renders the latest value of every telemetry key to a
// terminal.
package console

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/thorcore/telepathy/internal/data"
	"github.com/thorcore/telepathy/internal/wire"
)

const lineWidth = 46

const (
	statusNoConnection = "No connection"
	statusNoMessages   = "Connected, but no messages yet"
)

// Dashboard keeps the most recent message per key, in first-seen order,
// plus a bounded history for keys profiled as graphs. Update is safe to
// call from the session reader while Render runs on another goroutine.
type Dashboard struct {
	mu       sync.Mutex
	profiles *data.ProfileTable
	history  int

	connected bool
	order     []string
	latest    map[string]wire.Message
	series    map[string][]float64
}

func New(profiles *data.ProfileTable, history int) *Dashboard {
	return &Dashboard{
		profiles: profiles,
		history:  history,
		latest:   make(map[string]wire.Message),
		series:   make(map[string][]float64),
	}
}

// Update records msg. It is meant to be registered as a message listener.
func (d *Dashboard) Update(msg wire.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, seen := d.latest[msg.Key]; !seen {
		d.order = append(d.order, msg.Key)
	}
	d.latest[msg.Key] = msg

	p := d.profiles.Get(msg.Key)
	if p == nil || !p.Graph || d.history == 0 {
		return
	}
	if f, ok := msg.Value.Float64(); ok && !math.IsInf(f, 0) && !math.IsNaN(f) {
		pts := append(d.series[msg.Key], f)
		if len(pts) > d.history {
			pts = pts[len(pts)-d.history:]
		}
		d.series[msg.Key] = pts
	}
}

// SetConnected switches between the connected and no-connection views.
// Losing the connection clears every key.
func (d *Dashboard) SetConnected(up bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = up
	if !up {
		d.order = nil
		clear(d.latest)
		clear(d.series)
	}
}

// Keys returns the displayed keys in first-seen order.
func (d *Dashboard) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

// Render writes the current view to w.
func (d *Dashboard) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	title := "Telemetry"
	fmt.Fprintf(&b, "  \033[33m── %s %s\033[0m\n", title,
		strings.Repeat("─", max(3, lineWidth-utf8.RuneCountInString(title)-1)))

	switch {
	case !d.connected:
		b.WriteString("  " + statusNoConnection + "\n")
	case len(d.order) == 0:
		b.WriteString("  " + statusNoMessages + "\n")
	}

	for _, key := range d.order {
		p := d.profiles.Get(key)
		if p != nil && p.Hidden {
			continue
		}
		label := key
		if p != nil {
			label = p.DisplayName()
		}
		msg := d.latest[key]
		value := formatValue(p, msg.Value)
		if pts := d.series[key]; len(pts) > 0 && msg.Type().Numeric() {
			value = sparkline(pts) + " " + value
		}
		writeStat(&b, label, value)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// writeStat pads label and value with a dotted leader.
func writeStat(b *strings.Builder, label, value string) {
	dots := lineWidth - utf8.RuneCountInString(label) - utf8.RuneCountInString(value) - 2
	if dots < 3 {
		dots = 3
	}
	fmt.Fprintf(b, "  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dots), value)
}

// formatValue applies the profile format and unit. Format only applies to
// numeric types; integers receive an int64, floats a float64.
func formatValue(p *data.KeyProfile, v wire.Value) string {
	s := v.String()
	if p == nil {
		return s
	}
	if p.Format != "" && v.Type().Numeric() {
		switch v.Type() {
		case wire.TypeFloat, wire.TypeDouble:
			f, _ := v.Float64()
			s = fmt.Sprintf(p.Format, f)
		default:
			s = fmt.Sprintf(p.Format, integer(v))
		}
	}
	if p.Unit != "" {
		s += " " + p.Unit
	}
	return s
}

// integer returns an integer value exactly; Long does not survive a
// float64 round trip above 2^53.
func integer(v wire.Value) int64 {
	switch v.Type() {
	case wire.TypeByte:
		n, _ := v.Byte()
		return int64(n)
	case wire.TypeShort:
		n, _ := v.Short()
		return int64(n)
	case wire.TypeInt:
		n, _ := v.Int()
		return int64(n)
	default:
		n, _ := v.Long()
		return n
	}
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// sparkline scales points between their min and max onto eight block
// heights. A flat series renders at the lowest height. Non-finite points
// are ignored for scaling and drawn at the nearest end.
func sparkline(points []float64) string {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		if math.IsInf(p, 0) || math.IsNaN(p) {
			continue
		}
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	top := len(sparkBlocks) - 1
	out := make([]rune, len(points))
	for i, p := range points {
		idx := 0
		switch {
		case math.IsInf(p, 1):
			idx = top
		case hi > lo && !math.IsNaN(p) && !math.IsInf(p, -1):
			idx = int((p - lo) / (hi - lo) * float64(top))
		}
		out[i] = sparkBlocks[min(max(idx, 0), top)]
	}
	return string(out)
}
