package merkletrie

import "sort"

// Prune keeps only the top n children (by hash value, highest signed int32
// first, tie-break ascending on key) at every level of the trie, recursively. It is an
// optional size bound for wire transfer (spec §4.C); it is never required
// for correctness and SyncEngine does not call it automatically (spec §9
// open question).
func Prune(root *Node, n int) *Node {
	pruneNode(root, n)
	return root
}

func pruneNode(node *Node, n int) {
	if node == nil || len(node.Children) <= n {
		for _, child := range node.Children {
			pruneNode(child, n)
		}
		return
	}

	keys := make([]byte, 0, len(node.Children))
	for k := range node.Children {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		hi, hj := node.Children[keys[i]].Hash, node.Children[keys[j]].Hash
		if hi != hj {
			return hi > hj
		}
		return keys[i] < keys[j]
	})

	kept := make(map[byte]*Node, n)
	for _, k := range keys[:n] {
		kept[k] = node.Children[k]
	}
	node.Children = kept

	for _, child := range node.Children {
		pruneNode(child, n)
	}
}
