package hnsw

// LevelStats summarizes one layer of the graph.
type LevelStats struct {
	Nodes       int
	Connections int
}

// Stats describes the shape of the graph.
type Stats struct {
	Nodes      int
	MaxLevel   int
	EntryPoint uint32
	Levels     []LevelStats
}

// AvgDegree returns the mean out-degree on the given level.
func (s Stats) AvgDegree(level int) float64 {
	if level >= len(s.Levels) || s.Levels[level].Nodes == 0 {
		return 0
	}
	return float64(s.Levels[level].Connections) / float64(s.Levels[level].Nodes)
}

// Stats collects statistics about the HNSW graph
func (h *HNSW) Stats() Stats {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	st := Stats{
		Nodes:      h.count,
		MaxLevel:   h.maxLevel,
		EntryPoint: h.ep,
		Levels:     make([]LevelStats, h.maxLevel+1),
	}

	for _, node := range h.nodes {
		if node == nil {
			continue
		}
		for level := node.Layer; level >= 0; level-- {
			st.Levels[level].Nodes++
			st.Levels[level].Connections += len(node.Connections[level])
		}
	}

	return st
}
