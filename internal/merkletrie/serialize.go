package merkletrie

import "encoding/json"

// wireNode mirrors spec §3's canonical JSON shape:
// { "hash": i32, "0"?: Node, "1"?: Node, "2"?: Node }. Field declaration
// order fixes the marshaled key order, which is sorted: "0", "1", "2",
// then "hash".
type wireNode struct {
	Zero *wireNode `json:"0,omitempty"`
	One  *wireNode `json:"1,omitempty"`
	Two  *wireNode `json:"2,omitempty"`
	Hash int32     `json:"hash"`
}

func toWire(n *Node) *wireNode {
	if n == nil {
		return nil
	}
	w := &wireNode{Hash: n.Hash}
	w.Zero = toWire(n.Children['0'])
	w.One = toWire(n.Children['1'])
	w.Two = toWire(n.Children['2'])
	return w
}

func fromWire(w *wireNode) *Node {
	if w == nil {
		return nil
	}
	n := &Node{Hash: w.Hash, Children: map[byte]*Node{}}
	if w.Zero != nil {
		n.Children['0'] = fromWire(w.Zero)
	}
	if w.One != nil {
		n.Children['1'] = fromWire(w.One)
	}
	if w.Two != nil {
		n.Children['2'] = fromWire(w.Two)
	}
	return n
}

// Serialize renders the trie as canonical JSON.
func Serialize(root *Node) ([]byte, error) {
	return json.Marshal(toWire(root))
}

// Deserialize is the total inverse of Serialize.
func Deserialize(data []byte) (*Node, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(&w), nil
}

// MarshalJSON implements json.Marshaler with the canonical field order.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(n))
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded := fromWire(&w)
	n.Hash = decoded.Hash
	n.Children = decoded.Children
	return nil
}
