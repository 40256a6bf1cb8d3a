package graph

import (
	"container/heap"
	"math"
	"sort"

	"github.com/finsight/pulse/pkg/common"
)

const (
	pageRankDamping   = 0.85
	pageRankTolerance = 1e-6
	pageRankMaxIters  = 100
)

// adjacency is a dense integer view of the graph built once per analytics
// call from a snapshot, so the algorithms never touch the live maps.
type adjacency struct {
	ids   []string
	index map[string]int
	out   [][]weightedArc
}

type weightedArc struct {
	to     int
	weight float64
}

func buildAdjacency(nodes []common.FinancialEntity, edges []common.EntityRelation) *adjacency {
	adj := &adjacency{
		ids:   make([]string, 0, len(nodes)),
		index: make(map[string]int, len(nodes)),
	}
	// Sorted ids keep every analytics result deterministic across runs.
	for _, node := range nodes {
		adj.ids = append(adj.ids, node.ID)
	}
	sort.Strings(adj.ids)
	for i, id := range adj.ids {
		adj.index[id] = i
	}
	adj.out = make([][]weightedArc, len(adj.ids))
	for _, edge := range edges {
		src, ok := adj.index[edge.SourceID]
		if !ok {
			continue
		}
		dst, ok := adj.index[edge.TargetID]
		if !ok {
			continue
		}
		w := edge.Weight
		if w <= 0 {
			w = 1
		}
		adj.out[src] = append(adj.out[src], weightedArc{to: dst, weight: w})
	}
	return adj
}

// pageRank runs weighted power iteration. A nil teleport vector means the
// classic uniform restart; otherwise restart mass is distributed per the
// teleport weights (personalized PageRank). Dangling mass follows the same
// teleport distribution.
func pageRank(adj *adjacency, teleport []float64) []float64 {
	n := len(adj.ids)
	if n == 0 {
		return nil
	}

	if teleport == nil {
		teleport = make([]float64, n)
		for i := range teleport {
			teleport[i] = 1.0 / float64(n)
		}
	}

	outWeight := make([]float64, n)
	for i, arcs := range adj.out {
		for _, arc := range arcs {
			outWeight[i] += arc.weight
		}
	}

	rank := make([]float64, n)
	copy(rank, teleport)

	for iter := 0; iter < pageRankMaxIters; iter++ {
		next := make([]float64, n)

		var danglingMass float64
		for i := range rank {
			if outWeight[i] == 0 {
				danglingMass += rank[i]
			}
		}

		for i := range next {
			next[i] = (1-pageRankDamping)*teleport[i] + pageRankDamping*danglingMass*teleport[i]
		}
		for i, arcs := range adj.out {
			if outWeight[i] == 0 {
				continue
			}
			share := pageRankDamping * rank[i] / outWeight[i]
			for _, arc := range arcs {
				next[arc.to] += share * arc.weight
			}
		}

		delta := 0.0
		for i := range next {
			delta += math.Abs(next[i] - rank[i])
		}
		rank = next
		if delta < pageRankTolerance {
			break
		}
	}
	return rank
}

// communities runs modularity-based local moving (the first Louvain phase)
// over the undirected weighted view, repeating passes until no node moves,
// then relabels the surviving communities with dense non-negative ids.
// Isolated nodes end up alone in their own community.
func communities(adj *adjacency) []int {
	n := len(adj.ids)
	if n == 0 {
		return nil
	}

	// Undirected view: fold each arc into both endpoints.
	und := make([]map[int]float64, n)
	for i := range und {
		und[i] = make(map[int]float64)
	}
	var totalWeight float64
	for i, arcs := range adj.out {
		for _, arc := range arcs {
			if arc.to == i {
				continue
			}
			und[i][arc.to] += arc.weight
			und[arc.to][i] += arc.weight
			totalWeight += arc.weight
		}
	}

	comm := make([]int, n)
	for i := range comm {
		comm[i] = i
	}
	if totalWeight == 0 {
		return comm
	}

	degree := make([]float64, n)
	for i, nbrs := range und {
		for _, w := range nbrs {
			degree[i] += w
		}
	}
	commDegree := make([]float64, n)
	copy(commDegree, degree)

	m2 := 2 * totalWeight
	for moved := true; moved; {
		moved = false
		for i := 0; i < n; i++ {
			current := comm[i]

			// Weight from i into each neighboring community.
			linkTo := make(map[int]float64)
			for nbr, w := range und[i] {
				linkTo[comm[nbr]] += w
			}

			commDegree[current] -= degree[i]
			bestComm := current
			bestGain := linkTo[current] - commDegree[current]*degree[i]/m2
			for candidate, link := range linkTo {
				if candidate == current {
					continue
				}
				gain := link - commDegree[candidate]*degree[i]/m2
				if gain > bestGain || (gain == bestGain && candidate < bestComm) {
					bestGain = gain
					bestComm = candidate
				}
			}
			commDegree[bestComm] += degree[i]

			if bestComm != current {
				comm[i] = bestComm
				moved = true
			}
		}
	}

	// Dense relabel in first-appearance order.
	relabel := make(map[int]int)
	for i := range comm {
		if _, ok := relabel[comm[i]]; !ok {
			relabel[comm[i]] = len(relabel)
		}
		comm[i] = relabel[comm[i]]
	}
	return comm
}

// shortestPath runs Dijkstra over the directed graph. Edge cost is the
// inverse of the accumulated weight, so heavily reinforced links read as
// shorter hops. Returns the node sequence from src to dst, or nil when dst
// is unreachable.
func shortestPath(adj *adjacency, src, dst int) []int {
	n := len(adj.ids)
	if src < 0 || dst < 0 || src >= n || dst >= n {
		return nil
	}
	if src == dst {
		return []int{src}
	}

	dist := make([]float64, n)
	prev := make([]int, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[src] = 0

	pq := &nodeHeap{{node: src, dist: 0}}
	for pq.Len() > 0 {
		item := heap.Pop(pq).(nodeDist)
		if item.dist > dist[item.node] {
			continue
		}
		if item.node == dst {
			break
		}
		for _, arc := range adj.out[item.node] {
			cost := 1 / arc.weight
			if d := item.dist + cost; d < dist[arc.to] {
				dist[arc.to] = d
				prev[arc.to] = item.node
				heap.Push(pq, nodeDist{node: arc.to, dist: d})
			}
		}
	}

	if math.IsInf(dist[dst], 1) {
		return nil
	}
	var path []int
	for at := dst; at != -1; at = prev[at] {
		path = append(path, at)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

type nodeDist struct {
	node int
	dist float64
}

type nodeHeap []nodeDist

func (h nodeHeap) Len() int           { return len(h) }
func (h nodeHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h nodeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)        { *h = append(*h, x.(nodeDist)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
