package types

// Page returns items[offset:offset+limit], silently truncated at the end of
// the slice. An offset past the end yields an empty, non-nil slice.
//
// The returned slice is a copy so callers cannot mutate ledger storage.
func Page[T any](items []T, offset, limit uint64) []T {
	n := uint64(len(items))
	if offset >= n || limit == 0 {
		return []T{}
	}
	end := n
	if limit < n-offset {
		end = offset + limit
	}
	out := make([]T, end-offset)
	copy(out, items[offset:end])
	return out
}
