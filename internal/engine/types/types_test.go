package types

import "testing"

func TestJoin_FlattensAndDedupes(t *testing.T) {
	inner := Join(SmallInt, BigInt)
	u := Join(inner, SmallInt, Join(Float, inner))

	if u.Len() != 3 {
		t.Fatalf("expected 3 members, got %d (%s)", u.Len(), u)
	}
	for _, m := range u.Members() {
		if _, nested := m.(*Union); nested {
			t.Fatalf("union member %s is itself a union", m)
		}
	}
	if !Equivalent(u, Join(Float, BigInt, SmallInt)) {
		t.Fatalf("member order should not matter: %s", u)
	}
}

func TestEmpty(t *testing.T) {
	if !IsEmpty(Empty) || !IsEmpty(Join()) {
		t.Fatal("empty join must be bottom")
	}
	if IsEmpty(NullType) {
		t.Fatal("NullType is a value, not bottom")
	}
	if got := Join(Empty, Text); !Equivalent(got, Text) {
		t.Fatalf("joining bottom must be identity, got %s", got)
	}
	if Empty.String() != "Empty" {
		t.Fatalf("unexpected rendering %q", Empty.String())
	}
}

func TestEquivalent_BareAndSingleton(t *testing.T) {
	if !Equivalent(Float, Join(Float)) {
		t.Fatal("bare type should equal its singleton union")
	}
	if Equivalent(Boolean, True) {
		t.Fatal("Boolean is wider than True")
	}
	if !Equivalent(Instance("RTI5::Foo"), Join(&ClassType{Name: "RTI5::Foo"})) {
		t.Fatal("class types compare by name and variance")
	}
	if Equivalent(Instance("Foo"), &ClassType{Name: "Foo", Variance: Covariant}) {
		t.Fatal("variance is part of identity")
	}
}

func TestTupleKeyIgnoresSingletonUnions(t *testing.T) {
	a := NewTuple(SmallInt, Join(Text))
	b := NewTuple(Join(SmallInt), Text)
	if !Equivalent(a, b) {
		t.Fatalf("%s and %s should be equal", a, b)
	}
}

func TestUnionContains(t *testing.T) {
	u := Join(SmallInt, BigInt, NullType)
	if !u.Contains(Join(SmallInt, NullType)) {
		t.Fatal("subset should be contained")
	}
	if u.Contains(Text) {
		t.Fatal("Text is not a member")
	}
}

func TestSingletonTarget(t *testing.T) {
	s := SingletonOf("RTI2")
	name, ok := s.SingletonTarget()
	if !ok || name != "RTI2" {
		t.Fatalf("got %q %v", name, ok)
	}
	if _, ok := Instance("RTI2").SingletonTarget(); ok {
		t.Fatal("instance type is not a singleton")
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Type
	}{
		{"SmallInt", SmallInt},
		{"Fixnum | Bignum", Join(SmallInt, BigInt)},
		{"Boolean", Boolean},
		{"Empty", Empty},
		{"RTI5::Foo", Instance("RTI5::Foo")},
		{"#<Class:RTI2>", SingletonOf("RTI2")},
		{"Tuple<SmallInt, Text | NullType>", NewTuple(SmallInt, Join(Text, NullType))},
		{"Tuple<>", NewTuple()},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if !Equivalent(got, tc.want) {
			t.Errorf("Parse(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "Tuple<SmallInt", "SmallInt |", "Text)"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) should fail", bad)
		}
	}
}
