package mvcc

// VersionedValue is a single MVCC cell: the value bytes together with the id
// of the transaction that wrote them. A TID of 0 means the value is committed
// and no transaction is pending on it. A nil Value represents SQL NULL, which
// is distinct from an empty (zero-length) value.
type VersionedValue struct {
	TID   int64
	Value []byte
}

// Committed reports whether the value has no pending transaction.
func (v VersionedValue) Committed() bool {
	return v.TID == 0
}

// IsNull reports whether the value is SQL NULL.
func (v VersionedValue) IsNull() bool {
	return v.Value == nil
}

// Equal compares tid and value bytes. Nil and empty values are not equal.
func (v VersionedValue) Equal(other VersionedValue) bool {
	if v.TID != other.TID {
		return false
	}
	if v.Value == nil || other.Value == nil {
		return v.Value == nil && other.Value == nil
	}
	if len(v.Value) != len(other.Value) {
		return false
	}
	for i := range v.Value {
		if v.Value[i] != other.Value[i] {
			return false
		}
	}
	return true
}
