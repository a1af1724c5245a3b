package feed

// guard orders requests for one target. Every request takes a sequence
// number; only the newest request's response is applied, and a failure of
// the newest request restores the last state the server confirmed.
type guard[S any] struct {
	latest       uint64
	confirmed    uint64
	inflight     int
	latestFailed bool

	// baseline is the most recent server-confirmed state, or the state
	// before the first request of a burst
	baseline S
}

// begin registers a new request issued from current state
func (g *guard[S]) begin(current S) uint64 {
	if g.inflight == 0 {
		g.baseline = current
	}
	g.latest++
	g.inflight++
	g.latestFailed = false
	return g.latest
}

// succeed records a confirmed state and reports whether it should be
// applied. An older response is applied only when every newer request
// has already failed, since it is then the server's current state.
func (g *guard[S]) succeed(seq uint64, state S) bool {
	g.inflight--
	newer := seq > g.confirmed
	if newer {
		g.confirmed = seq
		g.baseline = state
	}
	if seq == g.latest {
		return true
	}
	return newer && g.latestFailed
}

// fail reports the state to restore after request seq failed, if any
func (g *guard[S]) fail(seq uint64) (S, bool) {
	g.inflight--
	if seq != g.latest {
		var zero S
		return zero, false
	}
	g.latestFailed = true
	return g.baseline, true
}

func (g *guard[S]) idle() bool {
	return g.inflight == 0
}

func guardFor[S any](m map[string]*guard[S], key string) *guard[S] {
	g, ok := m[key]
	if !ok {
		g = &guard[S]{}
		m[key] = g
	}
	return g
}

// releaseGuard forgets g once nothing is in flight for key; the next
// request starts a fresh guard from the record's current state
func releaseGuard[S any](m map[string]*guard[S], key string, g *guard[S]) {
	if g.idle() && m[key] == g {
		delete(m, key)
	}
}
