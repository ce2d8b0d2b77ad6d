// Package pgraph provides the edge index of a patch: a directed multigraph of
// machines connected by channel-addressed edges.
//
// # Overview
//
// Unlike a processing DAG, a patch graph is edited live and may contain
// cycles at any time. pgraph does not reject cycles. Instead it reports which
// edges lie on one, so the router can suppress delivery across exactly those
// edges and the UI can flag them.
//
//	g := pgraph.NewGraph()
//	_ = g.AddEdge(&pgraph.Edge{ID: "l1", From: "A", To: "B"})
//	_ = g.AddEdge(&pgraph.Edge{ID: "l2", From: "B", To: "A"})
//
//	report := g.DetectCycles()
//	report.Found()        // true
//	report.Contains("l1") // true
//
// # Edges
//
// An edge connects (From, FromChannel) to (To, ToChannel). Several edges may
// connect the same pair of nodes on different channels; all of them are kept
// under the (From, To) key in registration order. At most one edge may exist
// per ((From, FromChannel), (To, ToChannel)) endpoint pair.
//
// # Cycle Marking
//
// DetectCycles walks the graph with an iterative depth-first search, so deep
// chains never grow the goroutine stack. The traversal computes strongly
// connected components: an edge u -> v lies on a directed cycle exactly when
// u and v share a component. Edges leading into a cycle from outside it (or
// out of it) are never marked.
//
// Traversal order is deterministic: nodes in insertion order, children in
// edge-registration order.
//
// Complexity: O(V + E) per call.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use. The router serializes all access.
package pgraph
