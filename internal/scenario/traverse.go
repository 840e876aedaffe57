package scenario

import (
	"sort"
	"strings"

	"github.com/vantagegraph/vantage/internal/domain"
)

// graph is the adjacency view of the relationship edges for one traversal.
type graph struct {
	// adjacency holds per-node neighbor lists sorted ascending by neighbor
	// key so expansion order is deterministic.
	adjacency map[string][]graphEdge
}

type graphEdge struct {
	neighbor string
	rel      domain.Relationship
}

func buildGraph(rels []domain.Relationship) *graph {
	adj := map[string][]graphEdge{}
	for _, rel := range rels {
		adj[rel.MarketKeyA] = append(adj[rel.MarketKeyA], graphEdge{neighbor: rel.MarketKeyB, rel: rel})
		adj[rel.MarketKeyB] = append(adj[rel.MarketKeyB], graphEdge{neighbor: rel.MarketKeyA, rel: rel})
	}
	for key := range adj {
		edges := adj[key]
		sort.Slice(edges, func(i, j int) bool { return edges[i].neighbor < edges[j].neighbor })
	}
	return &graph{adjacency: adj}
}

// impact is one propagated effect reached by the traversal.
type impact struct {
	MarketKey      string
	Order          int
	Direction      domain.Direction
	Cumulative     float64
	EdgeConfidence float64
	Path           []string
	Rel            domain.Relationship
}

// propagate runs the bounded breadth-first traversal from origin. Each market
// key is expanded at most once, so the first path to reach a node wins. Paths
// whose cumulative confidence falls below minConfidence are discarded without
// expansion.
func (g *graph) propagate(origin string, dir domain.Direction, maxDepth int, minConfidence float64) []impact {
	type frame struct {
		key   string
		dir   domain.Direction
		depth int
		path  []string
		cum   float64
	}

	queue := []frame{{key: origin, dir: dir, path: []string{origin}, cum: 1}}
	visited := map[string]bool{origin: true}
	var impacts []impact

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if f.depth >= maxDepth {
			continue
		}
		for _, e := range g.adjacency[f.key] {
			if visited[e.neighbor] {
				continue
			}
			cum := f.cum * e.rel.ConfidenceScore.Frac()
			if cum < minConfidence {
				continue
			}
			visited[e.neighbor] = true

			path := make([]string, 0, len(f.path)+1)
			path = append(path, f.path...)
			path = append(path, e.neighbor)
			nd := propagateDirection(f.dir, e.rel)

			impacts = append(impacts, impact{
				MarketKey:      e.neighbor,
				Order:          f.depth + 1,
				Direction:      nd,
				Cumulative:     cum,
				EdgeConfidence: e.rel.ConfidenceScore.Frac(),
				Path:           path,
				Rel:            e.rel,
			})
			queue = append(queue, frame{key: e.neighbor, dir: nd, depth: f.depth + 1, path: path, cum: cum})
		}
	}

	sort.SliceStable(impacts, func(i, j int) bool {
		if impacts[i].Cumulative != impacts[j].Cumulative {
			return impacts[i].Cumulative > impacts[j].Cumulative
		}
		return impacts[i].MarketKey < impacts[j].MarketKey
	})
	return impacts
}

// propagateDirection applies the direction algebra for one edge: equivalent
// and implied edges pass the direction through, mutually exclusive edges flip
// it, and correlated edges flip it only when the analyst judged the link
// negative.
func propagateDirection(d domain.Direction, rel domain.Relationship) domain.Direction {
	t := string(rel.Type)
	switch {
	case t == string(domain.RelEquivalent):
		return d
	case strings.HasPrefix(t, "implied"):
		return d
	case t == string(domain.RelMutuallyExclusive):
		return d.Flip()
	case t == string(domain.RelCorrelated):
		if rel.ImpactDirection == domain.ImpactNegative {
			return d.Flip()
		}
		return d
	}
	return d
}
