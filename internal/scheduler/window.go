package scheduler

// distance is the circular distance between i and cur in a ring of n.
func distance(i, cur, n int) int {
	d := i - cur
	if d < 0 {
		d = -d
	}
	if n-d < d {
		return n - d
	}
	return d
}

func mod(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// window returns the indices cur-reach .. cur+reach wrapped into [0, n), in
// that order, without repeats.
func window(cur, reach, n int) []int {
	size := min(2*reach+1, n)
	out := make([]int, 0, size)
	seen := make(map[int]struct{}, size)

	for i := cur - reach; i <= cur+reach; i++ {
		idx := mod(i, n)
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out
}
