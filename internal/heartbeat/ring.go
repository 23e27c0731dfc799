package heartbeat

// ring holds the most recent latency samples in milliseconds.
type ring struct {
	samples [latencyWindow]int64
	next    int
	n       int
}

func (r *ring) push(v int64) {
	r.samples[r.next] = v
	r.next = (r.next + 1) % latencyWindow
	if r.n < latencyWindow {
		r.n++
	}
}

// values returns the samples oldest first.
func (r *ring) values() []int64 {
	out := make([]int64, 0, r.n)
	start := (r.next - r.n + latencyWindow) % latencyWindow
	for i := range r.n {
		out = append(out, r.samples[(start+i)%latencyWindow])
	}
	return out
}

func (r *ring) average() float64 {
	if r.n == 0 {
		return 0
	}
	var sum int64
	for i := range r.n {
		sum += r.samples[i]
	}
	return float64(sum) / float64(r.n)
}
