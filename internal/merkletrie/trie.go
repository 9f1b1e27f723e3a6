// Package merkletrie implements the ternary (radix-3) hash-XOR trie keyed
// by minute-bucket that lets two replicas find their point of divergence in
// O(depth) instead of comparing the full message log (spec §4.C).
package merkletrie

import (
	"strconv"

	"github.com/ledgerline/sync/internal/hlc"
	"github.com/ledgerline/sync/internal/murmur3"
)

// childKeys is the fixed, ordered set of child branches a Node may have.
// Order matters: diff and Prune tie-break ascending on this order.
var childKeys = [3]byte{'0', '1', '2'}

// Node is one level of the trie. Its Hash is the XOR of the murmur3 hashes
// of every timestamp inserted anywhere in its subtree (the root's Hash
// therefore summarizes the whole set, by XOR's commutativity).
type Node struct {
	Hash     int32
	Children map[byte]*Node
}

// Empty returns a fresh, hashless root.
func Empty() *Node {
	return &Node{Children: map[byte]*Node{}}
}

// minuteBucket returns floor(millis/60000), the trie key domain.
func minuteBucket(millis int64) int64 {
	if millis >= 0 {
		return millis / 60_000
	}
	// floor division for negative millis (shouldn't occur past the epoch,
	// but keep the math honest).
	q := millis / 60_000
	if millis%60_000 != 0 {
		q--
	}
	return q
}

// pathFor returns the base-3 digit path (as bytes '0'/'1'/'2', most
// significant digit first) for a minute bucket.
func pathFor(minute int64) []byte {
	if minute == 0 {
		return []byte{'0'}
	}
	var digits []byte
	for minute > 0 {
		digits = append(digits, childKeys[minute%3])
		minute /= 3
	}
	// reverse into most-significant-first order
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return digits
}

// minuteFromPath is the inverse of pathFor.
func minuteFromPath(path []byte) int64 {
	n, err := strconv.ParseInt(string(path), 3, 64)
	if err != nil {
		// path is always built from childKeys digits, so this cannot fail
		// for any path this package produces itself.
		return 0
	}
	return n
}

// Insert folds ts into the trie, XORing its murmur3 hash into every node
// visited along the path from root to leaf, creating intermediate nodes as
// needed. Insert mutates root in place and also returns it, for chaining.
func Insert(root *Node, ts hlc.Timestamp) *Node {
	h := int32(murmur3.SumString(ts.String(), 0))
	path := pathFor(minuteBucket(ts.Millis))

	node := root
	node.Hash ^= h
	for _, digit := range path {
		child, ok := node.Children[digit]
		if !ok {
			child = &Node{Children: map[byte]*Node{}}
			node.Children[digit] = child
		}
		child.Hash ^= h
		node = child
	}
	return root
}

// Build folds Insert over an empty trie for every timestamp in order.
func Build(timestamps []hlc.Timestamp) *Node {
	root := Empty()
	for _, ts := range timestamps {
		Insert(root, ts)
	}
	return root
}

// IsLeaf reports whether node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}
