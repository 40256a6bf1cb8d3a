package graph

import (
	"fmt"
	"sort"

	"github.com/finsight/pulse/pkg/common"
)

// GraphExport is the json-format export: plain node and edge lists plus
// summary stats.
type GraphExport struct {
	Nodes []common.FinancialEntity `json:"nodes"`
	Edges []common.EntityRelation  `json:"edges"`
	Stats GraphStats               `json:"stats"`
}

// CytoscapeExport mirrors the elements shape the Cytoscape.js frontend
// consumes directly.
type CytoscapeExport struct {
	Elements CytoscapeElements `json:"elements"`
	Stats    GraphStats        `json:"stats"`
}

type CytoscapeElements struct {
	Nodes []CytoscapeNode `json:"nodes"`
	Edges []CytoscapeEdge `json:"edges"`
}

type CytoscapeNode struct {
	Data CytoscapeNodeData `json:"data"`
}

type CytoscapeNodeData struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

type CytoscapeEdge struct {
	Data CytoscapeEdgeData `json:"data"`
}

type CytoscapeEdgeData struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// ExportGraph serializes the graph in the requested format: "json" (default
// when empty) or "cytoscape". Output ordering is deterministic.
func (b *KnowledgeGraphBuilder) ExportGraph(format string) (any, error) {
	nodes, edges := b.graph.snapshot()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SourceID != edges[j].SourceID {
			return edges[i].SourceID < edges[j].SourceID
		}
		if edges[i].TargetID != edges[j].TargetID {
			return edges[i].TargetID < edges[j].TargetID
		}
		return edges[i].Type < edges[j].Type
	})
	stats := GraphStats{NodeCount: len(nodes), EdgeCount: len(edges)}

	switch format {
	case "", "json":
		return &GraphExport{Nodes: nodes, Edges: edges, Stats: stats}, nil
	case "cytoscape":
		export := &CytoscapeExport{Stats: stats}
		for _, node := range nodes {
			export.Elements.Nodes = append(export.Elements.Nodes, CytoscapeNode{
				Data: CytoscapeNodeData{ID: node.ID, Label: node.Name, Type: string(node.Type)},
			})
		}
		for _, edge := range edges {
			export.Elements.Edges = append(export.Elements.Edges, CytoscapeEdge{
				Data: CytoscapeEdgeData{
					ID:     fmt.Sprintf("%s-%s-%s", edge.SourceID, edge.TargetID, edge.Type),
					Source: edge.SourceID,
					Target: edge.TargetID,
					Label:  string(edge.Type),
					Weight: edge.Weight,
				},
			})
		}
		return export, nil
	default:
		return nil, fmt.Errorf("graph: unknown export format %q", format)
	}
}
