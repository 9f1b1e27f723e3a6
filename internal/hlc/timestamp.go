// Package hlc implements the hybrid logical clock timestamps that stamp
// every mutation flowing through the sync engine.
package hlc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp is an immutable hybrid logical clock value: a physical time in
// milliseconds since the Unix epoch, a logical counter that breaks ties
// within the same millisecond, and the node that produced it.
//
// Canonical string form is lexicographically ordered the same as its
// chronological order: "YYYY-MM-DDTHH:MM:SS.sssZ-CCCC-NNNNNNNNNNNNNNNN".
type Timestamp struct {
	Millis  int64
	Counter uint16
	Node    string
}

const nodeLen = 16

// Zero is the smallest possible timestamp: the Unix epoch, counter 0, and
// an all-zero node. It is the default "since" value for a full sync.
var Zero = Timestamp{Millis: 0, Counter: 0, Node: strings.Repeat("0", nodeLen)}

// Max is the largest representable timestamp: year 9999, counter at its
// ceiling, and an all-F node.
var Max = Timestamp{
	Millis:  maxMillis,
	Counter: 0xFFFF,
	Node:    strings.Repeat("f", nodeLen),
}

// maxMillis is the millisecond offset of 9999-12-31T23:59:59.999Z.
var maxMillis = time.Date(9999, time.December, 31, 23, 59, 59, 999_000_000, time.UTC).UnixMilli()

const timeLayout = "2006-01-02T15:04:05.000Z"

// String renders the canonical lexicographically-ordered form.
func (t Timestamp) String() string {
	return fmt.Sprintf("%s-%04X-%s",
		time.UnixMilli(t.Millis).UTC().Format(timeLayout),
		t.Counter,
		t.Node,
	)
}

// Before reports whether t sorts strictly before other under HLC order,
// which for canonical strings coincides with lexicographic order.
func (t Timestamp) Before(other Timestamp) bool {
	return t.String() < other.String()
}

// After reports whether t sorts strictly after other.
func (t Timestamp) After(other Timestamp) bool {
	return t.String() > other.String()
}

// Equal reports field-wise equality.
func (t Timestamp) Equal(other Timestamp) bool {
	return t.Millis == other.Millis && t.Counter == other.Counter && t.Node == other.Node
}

// Parse decodes a canonical timestamp string. It returns ok=false rather
// than an error for malformed input, matching the "must not throw" contract
// callers rely on when scanning a message log that may contain a
// corrupted row.
func Parse(s string) (ts Timestamp, ok bool) {
	// "2006-01-02T15:04:05.000Z" is 24 bytes, then "-CCCC-" (6 bytes), then
	// 16 hex node bytes.
	const isoLen = len(timeLayout)
	if len(s) != isoLen+1+4+1+nodeLen {
		return Timestamp{}, false
	}
	isoPart := s[:isoLen]
	rest := s[isoLen:]
	if !strings.HasPrefix(rest, "-") {
		return Timestamp{}, false
	}
	rest = rest[1:]
	counterPart := rest[:4]
	rest = rest[4:]
	if !strings.HasPrefix(rest, "-") {
		return Timestamp{}, false
	}
	nodePart := rest[1:]
	if len(nodePart) != nodeLen {
		return Timestamp{}, false
	}

	parsedTime, err := time.Parse(timeLayout, isoPart)
	if err != nil {
		return Timestamp{}, false
	}
	counter, err := strconv.ParseUint(counterPart, 16, 16)
	if err != nil {
		return Timestamp{}, false
	}
	if _, err := hex.DecodeString(nodePart); err != nil {
		return Timestamp{}, false
	}

	return Timestamp{
		Millis:  parsedTime.UnixMilli(),
		Counter: uint16(counter),
		Node:    strings.ToLower(nodePart),
	}, true
}

// Since returns a Timestamp suitable as the "since" parameter of a sync
// request: millis parsed from an ISO-8601 string, counter and node zeroed.
func Since(isoString string) (Timestamp, error) {
	parsedTime, err := time.Parse(timeLayout, isoString)
	if err != nil {
		// Accept a bare RFC3339 string too, the common caller input shape.
		parsedTime, err = time.Parse(time.RFC3339, isoString)
		if err != nil {
			return Timestamp{}, fmt.Errorf("hlc: invalid since string %q: %w", isoString, err)
		}
	}
	return Timestamp{
		Millis:  parsedTime.UnixMilli(),
		Counter: 0,
		Node:    strings.Repeat("0", nodeLen),
	}, nil
}

// SinceMillis returns a Timestamp pinned at the given minute/millisecond
// boundary, counter and node zeroed. Used to build the "since" bound from a
// merkle divergence minute (spec §4.E buildIncrementalSyncRequest).
func SinceMillis(millis int64) Timestamp {
	return Timestamp{Millis: millis, Counter: 0, Node: strings.Repeat("0", nodeLen)}
}

// MakeClientID returns 16 lowercase hex characters from a cryptographically
// strong source, suitable as a Timestamp.Node or a client identifier.
func MakeClientID() (string, error) {
	buf := make([]byte, nodeLen/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("hlc: generating client id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
