package murmur3

import "testing"

func TestSum32KnownVectors(t *testing.T) {
	cases := []struct {
		data []byte
		seed uint32
		want uint32
	}{
		{[]byte(""), 0, 0},
		{[]byte(""), 1, 0x514E28B7},
		{[]byte(""), 0xffffffff, 0x81F16F39},
		{[]byte("test"), 0x9747b28c, 0x704b81dc},
	}
	for _, tc := range cases {
		got := Sum32(tc.data, tc.seed)
		if got != tc.want {
			t.Errorf("Sum32(%q, %#x) = %#x, want %#x", tc.data, tc.seed, got, tc.want)
		}
	}
}

func TestSum32Deterministic(t *testing.T) {
	data := []byte("2024-01-02T03:04:05.000Z-0001-aaaaaaaaaaaaaaaa")
	h1 := Sum32(data, 0)
	h2 := Sum32(data, 0)
	if h1 != h2 {
		t.Fatalf("Sum32 not deterministic: %#x != %#x", h1, h2)
	}
}

func TestSum32SensitiveToInput(t *testing.T) {
	h1 := Sum32([]byte("timestamp-a"), 0)
	h2 := Sum32([]byte("timestamp-b"), 0)
	if h1 == h2 {
		t.Fatalf("distinct inputs hashed to same value %#x", h1)
	}
}

func TestSumStringMatchesSum32(t *testing.T) {
	s := "some-timestamp-string"
	if SumString(s, 0) != Sum32([]byte(s), 0) {
		t.Fatalf("SumString diverges from Sum32")
	}
}

func TestSum32TailLengths(t *testing.T) {
	// Exercise the 1, 2, and 3-byte tail branches alongside whole blocks.
	for n := 0; n < 16; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i + 1)
		}
		// Just confirm no panic and stability across repeated calls.
		h1 := Sum32(data, 0)
		h2 := Sum32(data, 0)
		if h1 != h2 {
			t.Fatalf("len %d: not deterministic", n)
		}
	}
}
