package fields

import (
	"testing"

	"rtinfer/internal/engine/types"
)

func TestStore_ReadBeforeWrite(t *testing.T) {
	s := NewStore()
	k := Global("$sim9")

	if got := s.Read(k); !types.Equivalent(got, types.NullType) {
		t.Fatalf("unwritten global should read NullType, got %s", got)
	}
	s.Write(k, types.Text)
	s.Write(k, types.SmallInt)

	want := types.Join(types.Text, types.SmallInt, types.NullType)
	if got := s.Read(k); !types.Equivalent(got, want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestStore_WriteWithoutRead(t *testing.T) {
	s := NewStore()
	k := Global("$x")

	if got := s.Write(k, types.Text); !types.Equivalent(got, types.Text) {
		t.Fatalf("first write creates the entry with the written type, got %s", got)
	}
	got := s.Write(k, types.Join(types.SmallInt, types.BigInt))
	if want := types.Join(types.Text, types.SmallInt, types.BigInt); !types.Equivalent(got, want) {
		t.Fatalf("write should return the accumulated type, got %s", got)
	}
}

func TestStore_InstanceKeysAreClassScoped(t *testing.T) {
	s := NewStore()
	a := Instance("TI1", "@foo")
	b := Instance("TI2", "@foo")

	s.Read(a)
	s.Write(a, types.Text)
	s.Read(b)
	s.Write(b, types.SmallInt)

	if got := s.Read(a); !types.Equivalent(got, types.Join(types.NullType, types.Text)) {
		t.Fatalf("TI1 @foo = %s", got)
	}
	if got := s.Read(b); !types.Equivalent(got, types.Join(types.NullType, types.SmallInt)) {
		t.Fatalf("TI2 @foo = %s", got)
	}
	if a.IsGlobal() || !Global("$x").IsGlobal() {
		t.Fatal("key scoping")
	}
}

func TestStore_Generation(t *testing.T) {
	s := NewStore()
	k := Global("$g")

	g0 := s.Generation()
	s.Write(k, types.Text)
	g1 := s.Generation()
	if g1 == g0 {
		t.Fatal("creating an entry should bump the generation")
	}
	s.Write(k, types.Text)
	if s.Generation() != g1 {
		t.Fatal("a write that does not widen must not bump the generation")
	}
	s.Read(k)
	if s.Generation() != g1 {
		t.Fatal("reading an existing entry must not bump the generation")
	}
	s.Write(k, types.Float)
	if s.Generation() == g1 {
		t.Fatal("widening should bump the generation")
	}
}

func TestStore_SeedLookupSnapshot(t *testing.T) {
	s := NewStore()
	s.Seed(Global("$$"), types.SmallInt)
	s.Seed(Global("$$"), types.Text)

	got, ok := s.Lookup(Global("$$"))
	if !ok || !types.Equivalent(got, types.SmallInt) {
		t.Fatalf("seed should not be overridden, got %v", got)
	}
	if _, ok := s.Lookup(Global("$missing")); ok {
		t.Fatal("lookup must not materialise")
	}

	var writes []Key
	s.OnWrite(func(k Key) { writes = append(writes, k) })
	s.Write(Instance("A", "@b"), types.True)

	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].Key != Global("$$") || snap[1].Key.String() != "A#@b" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(writes) != 1 {
		t.Fatalf("write hook calls: %d", len(writes))
	}
}
