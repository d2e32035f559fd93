package types

// Len is the tuple's length. The engine folds it as a literal SmallInt.
func (t *Tuple) Len() int { return len(t.Elems) }

// ElementAt projects the element at index i. Negative indices count from the
// end; an index outside the tuple yields NullType.
func (t *Tuple) ElementAt(i int) Type {
	if i < 0 {
		i += len(t.Elems)
	}
	if i < 0 || i >= len(t.Elems) {
		return NullType
	}
	return t.Elems[i]
}

// Slice projects the range lo..hi (lo...hi when exclusive). Negative bounds
// are resolved against the length. A start outside [0, length] yields
// NullType; the end is clamped to the last element.
func (t *Tuple) Slice(lo, hi int, exclusive bool) Type {
	n := len(t.Elems)
	if lo < 0 {
		lo += n
	}
	if hi < 0 {
		hi += n
	}
	if exclusive {
		hi--
	}
	if lo < 0 || lo > n {
		return NullType
	}
	if hi >= n {
		hi = n - 1
	}
	if hi < lo {
		return &Tuple{}
	}
	return NewTuple(t.Elems[lo : hi+1]...)
}

// Concat appends o's elements after t's.
func (t *Tuple) Concat(o *Tuple) *Tuple {
	elems := make([]Type, 0, len(t.Elems)+len(o.Elems))
	elems = append(elems, t.Elems...)
	elems = append(elems, o.Elems...)
	return &Tuple{Elems: elems}
}

// Replicate repeats the element sequence n times. A non-positive n yields an
// empty tuple. ok is false when the result would hold more than limit
// elements.
func (t *Tuple) Replicate(n int64, limit int) (*Tuple, bool) {
	if n <= 0 || len(t.Elems) == 0 {
		return &Tuple{}, true
	}
	if n > int64(limit/len(t.Elems)) {
		return nil, false
	}
	elems := make([]Type, 0, len(t.Elems)*int(n))
	for i := int64(0); i < n; i++ {
		elems = append(elems, t.Elems...)
	}
	return &Tuple{Elems: elems}, true
}

// ToSequence converts to a sequence, which for a tuple is itself.
func (t *Tuple) ToSequence() *Tuple { return t }

// Reverse returns the elements in reverse order.
func (t *Tuple) Reverse() *Tuple {
	elems := make([]Type, len(t.Elems))
	for i, e := range t.Elems {
		elems[len(t.Elems)-1-i] = e
	}
	return &Tuple{Elems: elems}
}

// ElementUnion joins every element type, the type of an element picked by an
// index that is not known statically.
func (t *Tuple) ElementUnion() *Union {
	return Join(t.Elems...)
}
