// Package analytics synthesizes store analytics and broadcasts live samples
// to the admin group.
package analytics

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/capitalize-ai/realtime-relay/internal/model"
)

// SnapshotPeriods is the number of daily periods in an analytics snapshot.
const SnapshotPeriods = 7

// valueRange is an inclusive integer range.
type valueRange struct{ min, max int }

var (
	snapshotOrders  = valueRange{5, 24}
	snapshotRevenue = valueRange{500, 2499}
	liveOrders      = valueRange{1, 10}
	liveRevenue     = valueRange{200, 1199}
)

// Generator produces random analytics payloads. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator creates a generator. A nil source seeds from the clock.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Generator{rnd: rand.New(src)}
}

// Snapshot returns periods labelled "Day 1".."Day N" with random order and
// revenue values.
func (g *Generator) Snapshot(periods int) model.AnalyticsPayload {
	if periods < 0 {
		periods = 0
	}
	labels := make([]string, periods)
	for i := range labels {
		labels[i] = fmt.Sprintf("Day %d", i+1)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	orders := make([]int, periods)
	revenue := make([]int, periods)
	for i := range labels {
		orders[i] = g.draw(snapshotOrders)
	}
	for i := range labels {
		revenue[i] = g.draw(snapshotRevenue)
	}

	return model.AnalyticsPayload{
		model.SeriesOrders:  {Labels: labels, Values: orders},
		model.SeriesRevenue: {Labels: labels, Values: revenue},
	}
}

// Sample returns a single live data point under label.
func (g *Generator) Sample(label string) model.AnalyticsPayload {
	g.mu.Lock()
	orders := g.draw(liveOrders)
	revenue := g.draw(liveRevenue)
	g.mu.Unlock()

	return model.AnalyticsPayload{
		model.SeriesOrders:  {Labels: []string{label}, Values: []int{orders}},
		model.SeriesRevenue: {Labels: []string{label}, Values: []int{revenue}},
	}
}

// draw must be called with g.mu held.
func (g *Generator) draw(r valueRange) int {
	return r.min + g.rnd.Intn(r.max-r.min+1)
}
