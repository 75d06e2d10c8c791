package store

import (
	"context"
	"testing"
)

func Test_InsertAndGetContract(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	predicateAddr := mustHash(t, "predicate-1")
	c := Contract{
		ContentHash: mustHash(t, "contract-1"),
		Salt:        []byte("salt"),
		CreatedAt:   Timestamp{Secs: 100, Nanos: 0},
		Predicates: []Predicate{
			{ContentHash: predicateAddr, Bytecode: []byte{0x00}},
		},
	}

	if err := st.InsertContract(ctx, c); err != nil {
		t.Fatalf("\t%s\tinserting contract: %v", failed, err)
	}

	got, ok, err := st.GetContract(ctx, c.ContentHash)
	if err != nil || !ok {
		t.Fatalf("\t%s\tfetching contract: ok=%v err=%v", failed, ok, err)
	}
	if len(got.Predicates) != 1 || got.Predicates[0].ContentHash != predicateAddr {
		t.Fatalf("\t%s\tunexpected predicates: %+v", failed, got.Predicates)
	}
	t.Logf("\t%s\tcontract round-trips with its predicates", success)

	if err := st.InsertContract(ctx, c); err != nil {
		t.Fatalf("\t%s\tre-inserting an existing contract should be a no-op: %v", failed, err)
	}

	contracts, err := st.ListContracts(ctx, 0, 200, 10, 0)
	if err != nil {
		t.Fatalf("\t%s\tlisting contracts: %v", failed, err)
	}
	if len(contracts) != 1 {
		t.Fatalf("\t%s\tgot %d contracts, expected 1", failed, len(contracts))
	}
}

func Test_SharedPredicateAcrossContracts(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sharedPredicate := Predicate{ContentHash: mustHash(t, "shared-predicate"), Bytecode: []byte{0x01}}

	c1 := Contract{ContentHash: mustHash(t, "contract-a"), Salt: []byte("a"), Predicates: []Predicate{sharedPredicate}}
	c2 := Contract{ContentHash: mustHash(t, "contract-b"), Salt: []byte("b"), Predicates: []Predicate{sharedPredicate}}

	if err := st.InsertContract(ctx, c1); err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}
	if err := st.InsertContract(ctx, c2); err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}

	got1, _, err := st.GetContract(ctx, c1.ContentHash)
	if err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}
	got2, _, err := st.GetContract(ctx, c2.ContentHash)
	if err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}
	if got1.Predicates[0].ID != got2.Predicates[0].ID {
		t.Fatalf("\t%s\texpected the shared predicate to be deduplicated by content hash", failed)
	}
	t.Logf("\t%s\ttwo contracts sharing a predicate share its row", success)
}
