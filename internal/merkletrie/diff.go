package merkletrie

// Diff finds the earliest minute bucket at which a and b disagree, or nil
// if their hash accumulations are identical. It implements the lockstep
// descent from spec §4.C precisely, including the "one side never saw this
// branch" shortcut via minuteUnder.
func Diff(a, b *Node) *int64 {
	return diffAt(a, b, nil)
}

func diffAt(a, b *Node, prefix []byte) *int64 {
	if hashOf(a) == hashOf(b) {
		return nil
	}

	for _, k := range childKeys {
		ac := childOf(a, k)
		bc := childOf(b, k)
		ha := hashOf(ac)
		hb := hashOf(bc)
		if ha == hb {
			continue
		}
		if ac == nil || bc == nil {
			present := ac
			if present == nil {
				present = bc
			}
			ms := minuteUnder(present, append(append([]byte{}, prefix...), k))
			return &ms
		}
		return diffAt(ac, bc, append(append([]byte{}, prefix...), k))
	}
	// Hashes differ but no child disagrees: this is the leaf case, where
	// both sides hold different timestamps in the same minute bucket, so
	// report the bucket at the current prefix.
	ms := minuteFromPath(prefix) * 60_000
	return &ms
}

func hashOf(n *Node) int32 {
	if n == nil {
		return 0
	}
	return n.Hash
}

func childOf(n *Node, key byte) *Node {
	if n == nil {
		return nil
	}
	return n.Children[key]
}

// minuteUnder descends node always taking the smallest present child key
// until a leaf is reached, then converts the accumulated path back to a
// minute bucket (ms since epoch = minute * 60000).
func minuteUnder(node *Node, prefix []byte) int64 {
	path := append([]byte{}, prefix...)
	for node != nil && !node.IsLeaf() {
		advanced := false
		for _, k := range childKeys {
			if child, ok := node.Children[k]; ok {
				path = append(path, k)
				node = child
				advanced = true
				break
			}
		}
		if !advanced {
			break
		}
	}
	return minuteFromPath(path) * 60_000
}
