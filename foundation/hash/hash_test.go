package hash_test

import (
	"testing"

	"github.com/essential-contributions/essential-node/foundation/hash"
)

const (
	success = "✓"
	failed  = "✗"
)

func TestOf_Deterministic(t *testing.T) {
	type thing struct {
		A int
		B string
	}

	t.Log("Given two identical values.")
	{
		v1 := thing{A: 1, B: "x"}
		v2 := thing{A: 1, B: "x"}

		a1, err := hash.Of(v1)
		if err != nil {
			t.Fatalf("\t%s\tshould be able to hash v1 : %v", failed, err)
		}
		t.Logf("\t%s\tshould be able to hash v1.", success)

		a2, err := hash.Of(v2)
		if err != nil {
			t.Fatalf("\t%s\tshould be able to hash v2 : %v", failed, err)
		}
		t.Logf("\t%s\tshould be able to hash v2.", success)

		if a1 != a2 {
			t.Fatalf("\t%s\tshould produce the same address for identical content", failed)
		}
		t.Logf("\t%s\tshould produce the same address for identical content.", success)
	}
}

func TestOf_DistinctContent(t *testing.T) {
	type thing struct{ A int }

	a1, err := hash.Of(thing{A: 1})
	if err != nil {
		t.Fatalf("\t%s\tshould be able to hash : %v", failed, err)
	}
	a2, err := hash.Of(thing{A: 2})
	if err != nil {
		t.Fatalf("\t%s\tshould be able to hash : %v", failed, err)
	}

	if a1 == a2 {
		t.Fatalf("\t%s\tshould produce distinct addresses for distinct content", failed)
	}
	t.Logf("\t%s\tshould produce distinct addresses for distinct content.", success)
}

func TestAddress_StringRoundTrip(t *testing.T) {
	a, err := hash.Of("round trip me")
	if err != nil {
		t.Fatalf("\t%s\tshould be able to hash : %v", failed, err)
	}

	s := a.String()
	back, err := hash.ParseAddress(s)
	if err != nil {
		t.Fatalf("\t%s\tshould be able to parse the rendered address : %v", failed, err)
	}

	if back != a {
		t.Fatalf("\t%s\tshould round-trip through String/ParseAddress", failed)
	}
	t.Logf("\t%s\tshould round-trip through String/ParseAddress.", success)
}

func TestAddress_ZeroSentinel(t *testing.T) {
	var a hash.Address
	if !a.IsZero() {
		t.Fatalf("\t%s\tzero-value Address should report IsZero", failed)
	}
	t.Logf("\t%s\tzero-value Address should report IsZero.", success)
}
