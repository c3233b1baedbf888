// Package periodic provides rate-limited stat reporting for long-running
// pipeline stages, adapted from the blocks-iterator period counter.
package periodic

import (
	"fmt"
	"time"
)

// Periodic reports true once every period has elapsed since the last
// true result. Used to gate info-level progress logs so a stage doesn't
// spam a log line per block.
type Periodic struct {
	last   time.Time
	period time.Duration
}

// New creates a Periodic that fires at most once per period.
func New(period time.Duration) *Periodic {
	return &Periodic{last: time.Now(), period: period}
}

// Elapsed returns true if period has elapsed since the previous true result.
func (p *Periodic) Elapsed() bool {
	if time.Since(p.last) > p.period {
		p.last = time.Now()
		return true
	}
	return false
}

// blocksTxs accumulates a block and tx count over a span of wall-clock time.
type blocksTxs struct {
	blocks uint64
	txs    uint64
	span   time.Duration
}

func (b blocksTxs) blocksPerSec() uint64 {
	if b.span <= 0 {
		return 0
	}
	return uint64(float64(b.blocks) / b.span.Seconds())
}

func (b blocksTxs) txsPerSec() uint64 {
	if b.span <= 0 {
		return 0
	}
	return uint64(float64(b.txs) / b.span.Seconds())
}

// Stats is a snapshot of current-period and cumulative throughput.
type Stats struct {
	current blocksTxs
	total   blocksTxs
}

// String renders Stats as the Reorderer's periodic progress line.
func (s Stats) String() string {
	return fmt.Sprintf(
		"Current %d: %5d blk/s; %6d txs/s; Total: %5d blk/s; %6d tx/s;",
		s.total.blocks, s.current.blocksPerSec(), s.current.txsPerSec(),
		s.total.blocksPerSec(), s.total.txsPerSec(),
	)
}

// Counter accumulates per-block throughput stats and reports them once
// per configured period.
type Counter struct {
	start  time.Time
	last   time.Time
	period time.Duration
	curr   blocksTxs
	tot    blocksTxs
}

// NewCounter creates a Counter that reports stats at most once per period.
func NewCounter(period time.Duration) *Counter {
	now := time.Now()
	return &Counter{start: now, last: now, period: period}
}

// CountBlock records one processed block and its transaction count.
func (c *Counter) CountBlock(txCount uint64) {
	c.curr.blocks++
	c.curr.txs += txCount
	c.tot.blocks++
	c.tot.txs += txCount
}

// PeriodElapsed returns (stats, true) if the period has elapsed since the
// last report, resetting the current-period counters.
func (c *Counter) PeriodElapsed() (Stats, bool) {
	if time.Since(c.last) < c.period {
		return Stats{}, false
	}
	c.curr.span = time.Since(c.last)
	c.tot.span = time.Since(c.start)
	out := Stats{current: c.curr, total: c.tot}
	c.curr = blocksTxs{}
	c.last = time.Now()
	return out, true
}
