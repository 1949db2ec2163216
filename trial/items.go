package trial

// Items is a homogeneous list that remembers whether the caller passed a
// single object or a list, so results can be returned in the same shape.
type Items[T any] struct {
	values []T
	single bool
}

// One wraps a single object.
func One[T any](v T) Items[T] {
	return Items[T]{values: []T{v}, single: true}
}

// Many wraps a list of objects.
func Many[T any](vs ...T) Items[T] {
	return Items[T]{values: append([]T(nil), vs...)}
}

// IsSingle reports whether the items were created with One.
func (it Items[T]) IsSingle() bool { return it.single }

// Len returns the number of objects.
func (it Items[T]) Len() int { return len(it.values) }

// All returns a copy of the objects.
func (it Items[T]) All() []T { return append([]T(nil), it.values...) }

// Single returns the only object when the items were created with One.
func (it Items[T]) Single() (T, bool) {
	var zero T
	if !it.single || len(it.values) != 1 {
		return zero, false
	}
	return it.values[0], true
}

// withShape returns vs in the same arity as it.
func (it Items[T]) withShape(vs []T) Items[T] {
	return Items[T]{values: vs, single: it.single}
}
