package hlc

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// maxDriftMillis is the largest amount (ms) that a clock's physical
// component may advance beyond the caller-supplied wall time before Send or
// Recv refuses to proceed. Spec §3/§4.A: ±60000ms.
const maxDriftMillis = 60_000

// maxCounter is the ceiling of the 16-bit logical counter.
const maxCounter = 0xFFFF

// ErrClockDrift is returned when advancing the clock would put its physical
// component more than maxDriftMillis ahead of the caller's wall clock.
var ErrClockDrift = errors.New("hlc: clock drift exceeds allowed window")

// ErrCounterOverflow is returned when the logical counter would exceed its
// 16-bit domain within the same millisecond.
var ErrCounterOverflow = errors.New("hlc: logical counter overflow")

// MutableClock is a single hybrid logical clock owned by one sync engine.
// Each method takes the clock's own mutex, so individual calls are safe
// from multiple goroutines; a sequence of calls (such as a PeekRecv replay
// followed by Recv) is not atomic, and the sync engine that owns the clock
// serializes such sequences behind its own mutex (spec §5).
type MutableClock struct {
	mu      sync.Mutex
	millis  int64
	counter uint16
	node    string
}

// Now returns the current wall-clock time in milliseconds since the epoch.
// It is a package-level var so tests can override it with a fixed or
// scripted time source instead of depending on the real clock.
var Now = func() int64 {
	return time.Now().UnixMilli()
}

// NewClock constructs a clock starting from the given snapshot.
func NewClock(start Timestamp) *MutableClock {
	return &MutableClock{millis: start.Millis, counter: start.Counter, node: start.Node}
}

// Snapshot returns the clock's current value as an immutable Timestamp.
func (c *MutableClock) Snapshot() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Timestamp{Millis: c.millis, Counter: c.counter, Node: c.node}
}

// Node returns the node id this clock stamps timestamps with.
func (c *MutableClock) Node() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.node
}

// Send advances the clock for an outbound mutation and returns the
// resulting Timestamp. wallMillis is the caller's observed wall-clock time
// in milliseconds since the epoch.
func (c *MutableClock) Send(wallMillis int64) (Timestamp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	oldMillis := c.millis
	newMillis := c.millis
	if wallMillis > newMillis {
		newMillis = wallMillis
	}
	if newMillis-wallMillis > maxDriftMillis {
		return Timestamp{}, fmt.Errorf("%w: clock at %d ms is %d ms ahead of wall time %d",
			ErrClockDrift, newMillis, newMillis-wallMillis, wallMillis)
	}

	newCounter := c.counter
	if newMillis == oldMillis {
		if newCounter == maxCounter {
			return Timestamp{}, fmt.Errorf("%w: counter at millis %d", ErrCounterOverflow, newMillis)
		}
		newCounter++
	} else {
		newCounter = 0
	}

	c.millis = newMillis
	c.counter = newCounter
	return Timestamp{Millis: c.millis, Counter: c.counter, Node: c.node}, nil
}

// Recv advances the clock on receipt of a remote message's timestamp, per
// spec §3's three-way max merge. wallMillis is the caller's observed
// wall-clock time.
func (c *MutableClock) Recv(msg Timestamp, wallMillis int64) (Timestamp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	newMillis, newCounter, err := mergeRecv(c.millis, c.counter, msg, wallMillis)
	if err != nil {
		return Timestamp{}, err
	}

	c.millis = newMillis
	c.counter = newCounter
	return Timestamp{Millis: c.millis, Counter: c.counter, Node: c.node}, nil
}

// PeekRecv reports what the next Recv(msg, wallMillis) would yield without
// mutating c. A caller validating a whole batch of incoming timestamps
// chains calls by feeding each result's Timestamp back in as local: since
// mergeRecv is pure, replaying the batch this way and then replaying it
// again for real via Recv (with no other mutation of c in between) is
// guaranteed to retrace the same merges and cannot fail the second time.
func (c *MutableClock) PeekRecv(local Timestamp, msg Timestamp, wallMillis int64) (Timestamp, error) {
	newMillis, newCounter, err := mergeRecv(local.Millis, local.Counter, msg, wallMillis)
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{Millis: newMillis, Counter: newCounter, Node: local.Node}, nil
}

// mergeRecv is the three-way max merge shared by Recv and PeekRecv: the
// resulting millis is the max of the local clock, the message, and the
// wall clock; the counter resets, carries, or bumps depending on which of
// those three ties for that max.
func mergeRecv(localMillis int64, localCounter uint16, msg Timestamp, wallMillis int64) (newMillis int64, newCounter uint16, err error) {
	newMillis = localMillis
	if msg.Millis > newMillis {
		newMillis = msg.Millis
	}
	if wallMillis > newMillis {
		newMillis = wallMillis
	}
	if newMillis-wallMillis > maxDriftMillis {
		return 0, 0, fmt.Errorf("%w: clock at %d ms is %d ms ahead of wall time %d",
			ErrClockDrift, newMillis, newMillis-wallMillis, wallMillis)
	}

	switch {
	case newMillis == localMillis && newMillis == msg.Millis:
		if localCounter >= msg.Counter {
			newCounter = localCounter
		} else {
			newCounter = msg.Counter
		}
		if newCounter == maxCounter {
			return 0, 0, fmt.Errorf("%w: counter at millis %d", ErrCounterOverflow, newMillis)
		}
		newCounter++
	case newMillis == localMillis:
		if localCounter == maxCounter {
			return 0, 0, fmt.Errorf("%w: counter at millis %d", ErrCounterOverflow, newMillis)
		}
		newCounter = localCounter + 1
	case newMillis == msg.Millis:
		if msg.Counter == maxCounter {
			return 0, 0, fmt.Errorf("%w: counter at millis %d", ErrCounterOverflow, newMillis)
		}
		newCounter = msg.Counter + 1
	default:
		newCounter = 0
	}

	return newMillis, newCounter, nil
}
