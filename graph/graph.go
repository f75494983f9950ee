// Package graph runs a typed state through a directed graph of steps and
// condition nodes.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/telemetry"
)

// NodeType represents the type of a node in the graph
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEnd       NodeType = "end"
	NodeTypeStep      NodeType = "step"
	NodeTypeCondition NodeType = "condition"
)

// NodeFunc is the function executed by a node
type NodeFunc[S any] func(context.Context, S) (S, error)

// ConditionFunc evaluates a condition and returns the branch key
type ConditionFunc[S any] func(context.Context, S) (string, error)

// Node represents a node in the execution graph
type Node[S any] struct {
	Name           string
	Type           NodeType
	Execute        NodeFunc[S]
	Condition      ConditionFunc[S]  // Only for condition nodes
	NextNodes      []string          // Outgoing edges (order defines default)
	NextMap        map[string]string // For condition nodes: condition result -> next node
	WaitAllParents bool              // Whether execution waits for all parents to finish
}

// Graph represents an execution flow graph
type Graph[S any] struct {
	name      string
	nodes     map[string]*Node[S]
	startNode string
	endNode   string
	maxVisits int
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewGraph creates a new graph
func NewGraph[S any](name string) *Graph[S] {
	return &Graph[S]{
		name:      name,
		nodes:     make(map[string]*Node[S]),
		maxVisits: 10,
		tracer:    telemetry.Tracer("graph"),
		logger:    logging.WithComponent("graph"),
	}
}

// Name returns the graph name used in spans and logs.
func (g *Graph[S]) Name() string { return g.name }

// SetLogger replaces the node logger.
func (g *Graph[S]) SetLogger(l *slog.Logger) {
	if l != nil {
		g.logger = l
	}
}

func (g *Graph[S]) validateNode(node *Node[S]) {
	if node.Name == "" {
		panic("node name cannot be empty")
	}

	switch node.Type {
	case NodeTypeCondition:
		if node.Condition == nil {
			panic(fmt.Sprintf("condition node %s must have non-nil Condition function", node.Name))
		}
	case NodeTypeStart, NodeTypeEnd:
		// pass-through when Execute is nil
	default:
		if node.Execute == nil {
			panic(fmt.Sprintf("node %s of type %s must have non-nil Execute function", node.Name, node.Type))
		}
	}
}

// AddNode adds a node to the graph
func (g *Graph[S]) AddNode(node *Node[S]) {
	if _, exists := g.nodes[node.Name]; exists {
		panic(fmt.Sprintf("node %s already exists", node.Name))
	}

	g.validateNode(node)
	g.nodes[node.Name] = node

	if node.Type == NodeTypeStart {
		g.startNode = node.Name
	}
	if node.Type == NodeTypeEnd {
		g.endNode = node.Name
	}
}

func (n *Node[S]) addNext(name string) {
	n.NextNodes = append(n.NextNodes, name)
}

func (n *Node[S]) nextList() []string {
	if n == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var result []string
	for _, child := range n.NextNodes {
		if _, ok := seen[child]; ok {
			continue
		}
		seen[child] = struct{}{}
		result = append(result, child)
	}
	return result
}

// SetStartNode sets the start node
func (g *Graph[S]) SetStartNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.startNode = name
}

// SetEndNode sets the end node
func (g *Graph[S]) SetEndNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.endNode = name
}

// Execute runs the graph starting from the configured start node.
// Algorithm outline:
//  1. Pre-compute how many unique parents each node has (needed for fork-join semantics).
//  2. Use a queue to perform breadth-first scheduling: dequeue a node, execute it, determine
//     which children are activated, and propagate signals to them.
//  3. handleChildSignal inspects whether the current parent actually triggered a child
//     (participated) and whether the child waits for all parents before enqueuing it.
//
// The state returned by each node is handed to the next one. Context
// cancellation is checked before every node.
func (g *Graph[S]) Execute(ctx context.Context, state S) (S, error) {
	if g.startNode == "" {
		return state, fmt.Errorf("start node not set")
	}

	ctx, span := g.tracer.Start(ctx, "graph."+g.name)
	var runErr error
	defer func() { telemetry.End(span, runErr) }()

	expectedParents := g.buildParentCounts()
	completedParents := make(map[string]int)
	parentHits := make(map[string]int)
	awaiting := make(map[string]bool)
	queue := []string{g.startNode}
	awaiting[g.startNode] = true
	visited := make(map[string]int)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			runErr = err
			return state, err
		}

		currentNode := queue[0]
		queue = queue[1:]
		awaiting[currentNode] = false

		node, exists := g.nodes[currentNode]
		if !exists {
			runErr = fmt.Errorf("node %s not found", currentNode)
			return state, runErr
		}

		visited[currentNode]++
		if visited[currentNode] > g.maxVisits {
			runErr = fmt.Errorf("infinite loop detected at node %s", currentNode)
			return state, runErr
		}

		if node.Type == NodeTypeEnd {
			state, runErr = g.runNode(ctx, node, state)
			return state, runErr
		}

		var nextNodes []string
		var err error
		state, nextNodes, err = g.resolveNextNodes(ctx, node, state)
		if err != nil {
			runErr = err
			return state, err
		}

		allChildren := g.staticChildren(node)
		triggered := make(map[string]struct{}, len(nextNodes))

		for _, child := range nextNodes {
			triggered[child] = struct{}{}
			if err := g.handleChildSignal(child, true, parentHits, completedParents, expectedParents, awaiting, &queue); err != nil {
				runErr = err
				return state, err
			}
		}
		for _, child := range allChildren {
			if _, ok := triggered[child]; ok {
				continue
			}
			if err := g.handleChildSignal(child, false, parentHits, completedParents, expectedParents, awaiting, &queue); err != nil {
				runErr = err
				return state, err
			}
		}

		parentHits[currentNode] = 0
		completedParents[currentNode] = 0
	}

	return state, nil
}

func (g *Graph[S]) runNode(ctx context.Context, node *Node[S], state S) (S, error) {
	if node.Execute == nil {
		return state, nil
	}
	ctx, span := g.tracer.Start(ctx, "node."+node.Name,
		trace.WithAttributes(attribute.String("graph.node.type", string(node.Type))))
	start := time.Now()
	next, err := node.Execute(ctx, state)
	telemetry.End(span, err)
	if err != nil {
		g.logger.ErrorContext(ctx, "node failed", "graph", g.name, "node", node.Name, "error", err)
		return state, fmt.Errorf("error executing node %s: %w", node.Name, err)
	}
	g.logger.DebugContext(ctx, "node completed", "graph", g.name, "node", node.Name, "duration", time.Since(start))
	return next, nil
}

func (g *Graph[S]) resolveNextNodes(ctx context.Context, node *Node[S], state S) (S, []string, error) {
	switch node.Type {
	case NodeTypeCondition:
		result, err := node.Condition(ctx, state)
		if err != nil {
			return state, nil, fmt.Errorf("error evaluating condition at node %s: %w", node.Name, err)
		}
		nextNode := node.NextMap[result]
		if nextNode == "" {
			return state, nil, fmt.Errorf("no next node specified for node %s (branch %q)", node.Name, result)
		}
		g.logger.DebugContext(ctx, "condition resolved", "graph", g.name, "node", node.Name, "branch", result, "next", nextNode)
		return state, []string{nextNode}, nil
	default:
		next, err := g.runNode(ctx, node, state)
		if err != nil {
			return state, nil, err
		}
		nextNodes := node.nextList()
		if len(nextNodes) == 0 {
			return next, nil, fmt.Errorf("no next node specified for node %s", node.Name)
		}
		return next, nextNodes, nil
	}
}

func (g *Graph[S]) handleChildSignal(child string, participated bool, parentHits map[string]int, completedParents map[string]int, expectedParents map[string]int, awaiting map[string]bool, queue *[]string) error {
	target, exists := g.nodes[child]
	if !exists {
		return fmt.Errorf("node %s not found", child)
	}

	if target.WaitAllParents {
		if participated {
			parentHits[child]++
		}
		completedParents[child]++
		required := expectedParents[child]
		if required <= 0 {
			required = 1
		}
		if completedParents[child] < required || parentHits[child] == 0 || awaiting[child] {
			return nil
		}
		awaiting[child] = true
		*queue = append(*queue, child)
		return nil
	}

	if !participated {
		return nil
	}
	parentHits[child]++
	if awaiting[child] {
		return nil
	}
	awaiting[child] = true
	*queue = append(*queue, child)
	return nil
}

func (g *Graph[S]) buildParentCounts() map[string]int {
	counts := make(map[string]int)
	for _, node := range g.nodes {
		for _, child := range g.staticChildren(node) {
			counts[child]++
		}
	}
	return counts
}

func (g *Graph[S]) staticChildren(node *Node[S]) []string {
	if node == nil {
		return nil
	}

	seen := make(map[string]struct{})
	add := func(out *[]string, name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		*out = append(*out, name)
	}

	var result []string
	if node.Type == NodeTypeCondition {
		for _, child := range node.NextMap {
			add(&result, child)
		}
	}
	for _, child := range node.NextNodes {
		add(&result, child)
	}
	return result
}

// GetNode returns a node by name
func (g *Graph[S]) GetNode(name string) (*Node[S], error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("node %s not found", name)
	}
	return node, nil
}

// SetMaxVisits sets the maximum number of visits to a node
func (g *Graph[S]) SetMaxVisits(maxVisits int) {
	g.maxVisits = maxVisits
}

// Builder helps build graphs fluently
type Builder[S any] struct {
	graph *Graph[S]
}

// NewBuilder creates a new graph builder
func NewBuilder[S any](name string) *Builder[S] {
	return &Builder[S]{graph: NewGraph[S](name)}
}

// AddNode adds a node to the graph
func (b *Builder[S]) AddNode(name string, nodeType NodeType, execute NodeFunc[S]) *Builder[S] {
	b.graph.AddNode(&Node[S]{
		Name:    name,
		Type:    nodeType,
		Execute: execute,
	})
	return b
}

// AddStep adds a step node.
func (b *Builder[S]) AddStep(name string, execute NodeFunc[S]) *Builder[S] {
	return b.AddNode(name, NodeTypeStep, execute)
}

// AddConditionNode adds a condition node
func (b *Builder[S]) AddConditionNode(name string, condition ConditionFunc[S], nextMap map[string]string) *Builder[S] {
	b.graph.AddNode(&Node[S]{
		Name:      name,
		Type:      NodeTypeCondition,
		Condition: condition,
		NextMap:   nextMap,
	})
	return b
}

// AddEdge connects two nodes
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	if node, exists := b.graph.nodes[from]; exists {
		node.addNext(to)
	}
	return b
}

// RequireAllParents marks a node to wait for all of its parents before executing.
func (b *Builder[S]) RequireAllParents(name string) *Builder[S] {
	node, exists := b.graph.nodes[name]
	if !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	node.WaitAllParents = true
	return b
}

// SetStart sets the start node
func (b *Builder[S]) SetStart(name string) *Builder[S] {
	b.graph.SetStartNode(name)
	return b
}

// SetEnd sets the end node
func (b *Builder[S]) SetEnd(name string) *Builder[S] {
	b.graph.SetEndNode(name)
	return b
}

// SetMaxVisits sets the maximum number of visits to a node
func (b *Builder[S]) SetMaxVisits(maxVisits int) *Builder[S] {
	b.graph.SetMaxVisits(maxVisits)
	return b
}

// WithLogger sets the node logger.
func (b *Builder[S]) WithLogger(l *slog.Logger) *Builder[S] {
	b.graph.SetLogger(l)
	return b
}

// Build returns the constructed graph
func (b *Builder[S]) Build() *Graph[S] {
	return b.graph
}
