package wad

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"0", 0},
		{"1", 1_000_000_000_000_000_000},
		{"3.0", 3_000_000_000_000_000_000},
		{"0.1", 100_000_000_000_000_000},
		{"0.005", 5_000_000_000_000_000},
		{".5", 500_000_000_000_000_000},
	}

	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", tc.in, err)
		}
		if got.Uint64() != tc.want {
			t.Fatalf("Parse(%q) = %s, want %d", tc.in, got.Dec(), tc.want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "0.0000000000000000001"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q) expected error", in)
		}
	}
}

func TestMulTruncates(t *testing.T) {
	// 3 * 0.005 = 0.015
	amount, _ := Parse("3")
	frac, _ := Parse("0.005")
	got, ok := Mul(amount, frac)
	if !ok {
		t.Fatalf("unexpected overflow")
	}
	want, _ := Parse("0.015")
	if !got.Eq(want) {
		t.Fatalf("Mul = %s, want %s", Format(got), Format(want))
	}

	// floor: 1 wei * 0.5 = 0
	got, ok = Mul(uint256.NewInt(1), frac)
	if !ok || !got.IsZero() {
		t.Fatalf("expected truncation to zero, got %s", got.Dec())
	}
}

func TestMulNilIsZero(t *testing.T) {
	got, ok := Mul(uint256.NewInt(5), nil)
	if !ok || !got.IsZero() {
		t.Fatalf("nil fraction should be zero, got %v %v", got, ok)
	}
}

func TestMulOverflow(t *testing.T) {
	max := new(uint256.Int).Not(uint256.NewInt(0))
	if _, ok := Mul(max, One()); ok {
		t.Fatalf("expected overflow")
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1", "3.5", "16.632", "0.0495"} {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := Format(v); got != s {
			t.Fatalf("Format(Parse(%q)) = %q", s, got)
		}
	}
}

func TestFits128(t *testing.T) {
	max128 := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	max128.SubUint64(max128, 1)
	if !Fits128(max128) {
		t.Fatalf("2^128-1 should fit")
	}
	over := new(uint256.Int).AddUint64(max128, 1)
	if Fits128(over) {
		t.Fatalf("2^128 should not fit")
	}
}
