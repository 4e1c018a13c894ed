package server

import "sync"

// inflight rejects a second concurrent mutation of the same row from the
// same browser session. Different rows, actions and sessions never block
// each other.
type inflight struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{busy: map[string]struct{}{}}
}

func (g *inflight) begin(session, action, id string) (release func(), ok bool) {
	key := session + "|" + action + "|" + id
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, taken := g.busy[key]; taken {
		return nil, false
	}
	g.busy[key] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.busy, key)
		g.mu.Unlock()
	}, true
}
