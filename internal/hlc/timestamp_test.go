package hlc

import "testing"

func TestMakeClientIDShape(t *testing.T) {
	id, err := MakeClientID()
	if err != nil {
		t.Fatalf("MakeClientID: %v", err)
	}
	if len(id) != nodeLen {
		t.Fatalf("len(id) = %d, want %d", len(id), nodeLen)
	}
	for _, r := range id {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Fatalf("id %q contains non lowercase-hex rune %q", id, r)
		}
	}
}

func TestSinceMillisZeroedCounterAndNode(t *testing.T) {
	ts := SinceMillis(123456)
	if ts.Millis != 123456 || ts.Counter != 0 {
		t.Fatalf("ts = %+v", ts)
	}
	if ts.Node != Zero.Node {
		t.Fatalf("node = %q, want all-zero", ts.Node)
	}
}

func TestSinceParsesISO(t *testing.T) {
	ts, err := Since("2024-01-02T03:04:05.000Z")
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if ts.Counter != 0 || ts.Node != Zero.Node {
		t.Fatalf("ts = %+v", ts)
	}
}
