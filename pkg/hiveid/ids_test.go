package hiveid

import "testing"

func TestCellIdTagRoundTrip(t *testing.T) {
	id := NewCellId(CellTag(42))
	if got := id.Tag(); got != 42 {
		t.Fatalf("Tag() = %d, want 42", got)
	}
}

func TestTxIdProjections(t *testing.T) {
	txID := NewTxId(CellTag(7), 1234)
	if got := txID.CellTag(); got != 7 {
		t.Fatalf("CellTag() = %d, want 7", got)
	}
	if got := txID.Counter(); got != 1234 {
		t.Fatalf("Counter() = %d, want 1234", got)
	}
}

func TestNullValues(t *testing.T) {
	if !NullTxId.IsNull() {
		t.Fatal("NullTxId.IsNull() = false")
	}
	if !NullMutationId.IsNull() {
		t.Fatal("NullMutationId.IsNull() = false")
	}
	if NullCellId.Tag() != 0 {
		t.Fatal("NullCellId.Tag() != 0")
	}
}

func TestDeriveCellTagDeterministic(t *testing.T) {
	id := NewCellId(CellTag(1))
	a := DeriveCellTag(id)
	b := DeriveCellTag(id)
	if a != b {
		t.Fatalf("DeriveCellTag not deterministic: %d != %d", a, b)
	}
}

func TestMutationIdParseRoundTrip(t *testing.T) {
	var m MutationId
	m[0] = 0xAB
	m[15] = 0xCD
	parsed, err := ParseMutationId(m.String())
	if err != nil {
		t.Fatalf("ParseMutationId: %v", err)
	}
	if parsed != m {
		t.Fatalf("round trip mismatch: %v != %v", parsed, m)
	}
}

func TestTimestampMapClone(t *testing.T) {
	m := TimestampMap{CellTag(1): Timestamp(100)}
	clone := m.Clone()
	clone[CellTag(2)] = Timestamp(200)
	if _, ok := m[CellTag(2)]; ok {
		t.Fatal("Clone() shares backing map with original")
	}
}
