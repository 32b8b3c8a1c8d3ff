package concurrency

import (
	"log/slog"
	"sort"
	"time"
)

// StartDeadlockDetection launches the background detector goroutine.
func (m *Manager) StartDeadlockDetection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.runCycleDetection(m.stopCh, m.doneCh)
}

// Stop shuts the detector down and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

func (m *Manager) runCycleDetection(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.detectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.detectOnce()
		}
	}
}

// detectOnce rebuilds the waits-for graph from scratch and aborts victims
// until no cycle remains. Runs entirely under the global mutex.
func (m *Manager) detectOnce() {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, txns := m.buildWaitsFor()
	for {
		cycle := findCycle(graph)
		if len(cycle) == 0 {
			return
		}

		// Victim: the youngest (largest id) transaction on the cycle.
		victim := cycle[0]
		for _, id := range cycle[1:] {
			if id > victim {
				victim = id
			}
		}

		slog.Debug("concurrency.deadlock", "cycle", cycle, "victim", victim)
		if txn := txns[victim]; txn != nil {
			txn.SetState(Aborted)
		}

		// The victim may be parked on any queue; wake them all.
		for _, q := range m.lockTable {
			q.cv.Broadcast()
		}

		delete(graph, victim)
		for from, tos := range graph {
			out := tos[:0]
			for _, to := range tos {
				if to != victim {
					out = append(out, to)
				}
			}
			graph[from] = out
		}
	}
}

// buildWaitsFor derives edges from every request queue: an ungranted S waits
// for each granted X, and an ungranted X waits for every granted request.
func (m *Manager) buildWaitsFor() (map[TxnID][]TxnID, map[TxnID]*Transaction) {
	graph := make(map[TxnID][]TxnID)
	txns := make(map[TxnID]*Transaction)

	addEdge := func(from, to TxnID) {
		if from == to {
			return
		}
		for _, cur := range graph[from] {
			if cur == to {
				return
			}
		}
		graph[from] = append(graph[from], to)
	}

	for _, q := range m.lockTable {
		if !q.isWriting && q.readingCount == 0 {
			continue
		}

		var grantedS, grantedX, ungrantedS, ungrantedX []TxnID
		for _, r := range q.requests {
			id := r.txn.ID()
			txns[id] = r.txn
			switch {
			case r.granted && r.mode == Shared:
				grantedS = append(grantedS, id)
			case r.granted:
				grantedX = append(grantedX, id)
			case r.mode == Shared:
				ungrantedS = append(ungrantedS, id)
			default:
				ungrantedX = append(ungrantedX, id)
			}
		}

		for _, a := range ungrantedS {
			for _, b := range grantedX {
				addEdge(a, b)
			}
		}
		for _, a := range ungrantedX {
			for _, b := range grantedS {
				addEdge(a, b)
			}
			for _, b := range grantedX {
				addEdge(a, b)
			}
		}
	}

	return graph, txns
}

// findCycle runs DFS from every node in id order and returns the members of
// the first cycle found, or nil when the graph is acyclic. Starting order is
// deterministic so tests can rely on victim choice.
func findCycle(graph map[TxnID][]TxnID) []TxnID {
	nodes := make([]TxnID, 0, len(graph))
	for id := range graph {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	visited := make(map[TxnID]bool)
	onPath := make(map[TxnID]bool)
	var path []TxnID

	var dfs func(TxnID) []TxnID
	dfs = func(cur TxnID) []TxnID {
		visited[cur] = true
		onPath[cur] = true
		path = append(path, cur)

		for _, next := range graph[cur] {
			if onPath[next] {
				// Cycle: the path suffix starting at next.
				for i, id := range path {
					if id == next {
						return append([]TxnID(nil), path[i:]...)
					}
				}
			}
			if !visited[next] {
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}

		onPath[cur] = false
		path = path[:len(path)-1]
		return nil
	}

	for _, id := range nodes {
		if !visited[id] {
			path = path[:0]
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
