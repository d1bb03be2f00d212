// Copyright 2020 Fugue, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package graph

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Node defines NodeID() which is used to identify a Node in a Graph
type Node interface {
	NodeID() string
}

// simpleNode presents the graph.Node interface of the underlying graph
// library for one of our Nodes
type simpleNode struct {
	id   int64
	node Node
}

func (n *simpleNode) ID() int64 {
	return n.id
}

// Graph is a directed graph used to order rules by their dependencies
type Graph struct {
	graph   *simple.DirectedGraph
	nodes   map[string]Node
	wrapped map[string]*simpleNode
	index   int64
}

// NewGraph returns an empty Graph
func NewGraph() *Graph {
	return &Graph{
		graph:   simple.NewDirectedGraph(),
		nodes:   map[string]Node{},
		wrapped: map[string]*simpleNode{},
	}
}

// Add one or more Nodes to the Graph. Adding a Node twice has no effect.
func (g *Graph) Add(nodes ...Node) *Graph {
	for _, n := range nodes {
		g.add(n)
	}
	return g
}

func (g *Graph) add(n Node) *simpleNode {
	nodeID := n.NodeID()
	if wrapped, found := g.wrapped[nodeID]; found {
		return wrapped
	}
	g.index++
	wrapped := &simpleNode{id: g.index, node: n}
	g.nodes[nodeID] = n
	g.wrapped[nodeID] = wrapped
	g.graph.AddNode(wrapped)
	return wrapped
}

// Remove a Node from the Graph along with its edges
func (g *Graph) Remove(n Node) *Graph {
	nodeID := n.NodeID()
	if wrapped, found := g.wrapped[nodeID]; found {
		g.graph.RemoveNode(wrapped.id)
		delete(g.nodes, nodeID)
		delete(g.wrapped, nodeID)
	}
	return g
}

// Connect declares a directional link between two nodes in the Graph,
// adding either node if not yet present
func (g *Graph) Connect(from, to Node) *Graph {
	f := g.add(from)
	t := g.add(to)
	if f.id != t.id {
		g.graph.SetEdge(simple.Edge{F: f, T: t})
	}
	return g
}

// Count returns the number of Nodes in the Graph
func (g *Graph) Count() int {
	return len(g.nodes)
}

// GetNode returns the Node with the specified ID and a boolean indicating
// whether it was found
func (g *Graph) GetNode(nodeID string) (Node, bool) {
	if node, found := g.nodes[nodeID]; found {
		return node, true
	}
	return nil, false
}

// From returns all nodes that can be reached directly from the given Node
func (g *Graph) From(n Node) []Node {
	wrapped, ok := g.wrapped[n.NodeID()]
	if !ok {
		return nil
	}
	return nodesFromIterator(g.graph.From(wrapped.id))
}

// To returns all nodes that directly reach the given Node
func (g *Graph) To(n Node) []Node {
	wrapped, ok := g.wrapped[n.NodeID()]
	if !ok {
		return nil
	}
	return nodesFromIterator(g.graph.To(wrapped.id))
}

// Sort returns a topological sort of the Graph. An error indicates the
// graph contains at least one cycle.
func (g *Graph) Sort() ([]Node, error) {
	sorted, err := topo.Sort(g.graph)
	if err != nil {
		return nil, err
	}
	resolved := make([]Node, len(sorted))
	for i, n := range sorted {
		resolved[i] = n.(*simpleNode).node
	}
	return resolved, nil
}

func nodesFromIterator(iter graph.Nodes) []Node {
	nodes := make([]Node, 0, iter.Len())
	for iter.Next() {
		nodes = append(nodes, iter.Node().(*simpleNode).node)
	}
	return nodes
}
