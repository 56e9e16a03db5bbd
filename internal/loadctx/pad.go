package loadctx

var buckets = []int{1, 5, 10, 20, 50, 100}

// PaddedSize returns the IN-list length used for n keys: the smallest
// bucket holding n, never more than batch.
func PaddedSize(n, batch int) int {
	if n <= 0 {
		return 0
	}
	size := ((n + 99) / 100) * 100
	for _, b := range buckets {
		if n <= b {
			size = b
			break
		}
	}
	if batch > 0 && size > batch {
		size = batch
	}
	if size < n {
		size = n
	}
	return size
}

// pad repeats the last key until keys has size entries.
func pad(keys [][]any, size int) [][]any {
	if len(keys) == 0 || len(keys) >= size {
		return keys
	}
	out := make([][]any, size)
	copy(out, keys)
	last := keys[len(keys)-1]
	for i := len(keys); i < size; i++ {
		out[i] = last
	}
	return out
}

// chunk splits keys into slices of at most size entries.
func chunk(keys [][]any, size int) [][][]any {
	if size <= 0 {
		size = len(keys)
	}
	var out [][][]any
	for len(keys) > 0 {
		n := min(size, len(keys))
		out = append(out, keys[:n])
		keys = keys[n:]
	}
	return out
}
