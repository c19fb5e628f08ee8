package routing

import (
	"container/heap"
	"fmt"

	"github.com/example/shared-ride/internal/models"
)

type queueItem struct {
	id   string
	dist float64
}

type minQueue []queueItem

func (q minQueue) Len() int            { return len(q) }
func (q minQueue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q minQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *minQueue) Push(x interface{}) { *q = append(*q, x.(queueItem)) }
func (q *minQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// RunDijkstra finds the minimum-weight path over a caller-supplied road graph.
// Stale queue entries are skipped when popped. The returned distance sums edge
// distances along the chosen chain, not weights.
func RunDijkstra(g *models.Graph, startID, endID string) (*models.PathResult, error) {
	if g == nil || len(g.Nodes) == 0 {
		return nil, ErrNoPath
	}
	if g.Nodes[startID] == nil {
		return nil, fmt.Errorf("start %q: %w", startID, ErrNoPath)
	}
	if g.Nodes[endID] == nil {
		return nil, fmt.Errorf("end %q: %w", endID, ErrNoPath)
	}

	dist := map[string]float64{startID: 0}
	previous := make(map[string]string)
	prevDistance := make(map[string]float64)
	visited := make(map[string]bool)

	q := &minQueue{{id: startID, dist: 0}}
	found := false
	for q.Len() > 0 {
		cur := heap.Pop(q).(queueItem)
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		if cur.id == endID {
			found = true
			break
		}
		// a null node in a decoded graph has no edges to follow
		node := g.Nodes[cur.id]
		if node == nil {
			continue
		}
		for _, e := range node.Edges {
			if e.Weight < 0 {
				return nil, fmt.Errorf("negative edge %s->%s", cur.id, e.TargetID)
			}
			newDist := dist[cur.id] + e.Weight
			if old, seen := dist[e.TargetID]; !seen || newDist < old {
				dist[e.TargetID] = newDist
				previous[e.TargetID] = cur.id
				prevDistance[e.TargetID] = e.Distance
				heap.Push(q, queueItem{id: e.TargetID, dist: newDist})
			}
		}
	}
	if !found {
		return nil, ErrNoPath
	}

	var ids []string
	var total float64
	for at := endID; ; at = previous[at] {
		ids = append(ids, at)
		if at == startID {
			break
		}
		total += prevDistance[at]
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}

	coords := make([]models.Coordinate, 0, len(ids))
	for _, id := range ids {
		if n := g.Nodes[id]; n != nil {
			coords = append(coords, n.Coordinate)
		}
	}
	return &models.PathResult{
		Nodes:         ids,
		Coordinates:   coords,
		TotalWeight:   dist[endID],
		TotalDistance: total,
	}, nil
}
