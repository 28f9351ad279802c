// Package contextgraph implements the hotword biasing trie used during
// decoding.
//
// A Graph is immutable once built and may be shared by any number of streams
// and read concurrently without locking.
package contextgraph

// Node is one state of the graph. A nil *Node is treated as the root.
type Node struct {
	token      int
	tokenScore float32
	nodeScore  float32
	level      int
	isEnd      bool
	next       map[int]*Node
	fail       *Node
}

// Level is the depth of the node; the root is 0.
func (n *Node) Level() int {
	if n == nil {
		return 0
	}
	return n.level
}

// Graph is a weighted trie over token-id phrases with Aho-Corasick fail links.
type Graph struct {
	root    *Node
	phrases [][]int
	weight  float32
}

// Build inserts every phrase as a path from the root. Shared prefixes share
// nodes and each node accumulates weight along its path. Empty phrases are
// ignored.
func Build(phrases [][]int, weight float32) *Graph {
	g := &Graph{
		root:   &Node{token: -1, next: make(map[int]*Node)},
		weight: weight,
	}
	for _, p := range phrases {
		if len(p) == 0 {
			continue
		}
		g.phrases = append(g.phrases, append([]int(nil), p...))
		g.insert(p)
	}
	g.fillFail()
	return g
}

func (g *Graph) insert(phrase []int) {
	node := g.root
	for i, tok := range phrase {
		child, ok := node.next[tok]
		if !ok {
			child = &Node{
				token:      tok,
				tokenScore: g.weight,
				nodeScore:  node.nodeScore + g.weight,
				level:      i + 1,
				next:       make(map[int]*Node),
			}
			node.next[tok] = child
		}
		if i == len(phrase)-1 {
			child.isEnd = true
		}
		node = child
	}
}

// fillFail links every node to its longest proper suffix present in the trie.
func (g *Graph) fillFail() {
	queue := make([]*Node, 0, len(g.root.next))
	for _, child := range g.root.next {
		child.fail = g.root
		queue = append(queue, child)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for tok, child := range cur.next {
			f := cur.fail
			for {
				if n, ok := f.next[tok]; ok {
					child.fail = n
					break
				}
				if f == g.root {
					child.fail = g.root
					break
				}
				f = f.fail
			}
			queue = append(queue, child)
		}
	}
}

// Len returns the number of phrases in the graph.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.phrases)
}

// Phrases returns a copy of the phrases the graph was built from.
func (g *Graph) Phrases() [][]int {
	if g == nil {
		return nil
	}
	out := make([][]int, len(g.phrases))
	for i, p := range g.phrases {
		out[i] = append([]int(nil), p...)
	}
	return out
}

// Score advances cur by token and returns the new state with the bias delta.
//
// Following an edge yields that edge's token score. Otherwise the fail chain
// is walked to the longest matching suffix (or the root) and the delta is the
// difference of cumulative scores, which takes back the bonus of an abandoned
// partial match. Completing a phrase returns the cursor to the root and keeps
// the bonus.
func (g *Graph) Score(cur *Node, token int) (*Node, float32) {
	if cur == nil {
		cur = g.root
	}

	var next *Node
	if child, ok := cur.next[token]; ok {
		next = child
		if next.isEnd {
			return g.root, next.tokenScore
		}
		return next, next.tokenScore
	}

	n := cur
	for next == nil {
		if n == g.root {
			next = g.root
			break
		}
		n = n.fail
		if child, ok := n.next[token]; ok {
			next = child
		}
	}

	delta := next.nodeScore - cur.nodeScore
	if next.isEnd {
		return g.root, delta
	}
	return next, delta
}

// Finalize abandons any partial match at cur.
func (g *Graph) Finalize(cur *Node) (*Node, float32) {
	if cur == nil {
		return g.root, 0
	}
	return g.root, -cur.nodeScore
}

// Merge builds a graph seeded with a's phrases followed by b's. Either input
// may be nil. The result is nil when neither graph holds a phrase.
func Merge(a, b *Graph, weight float32) *Graph {
	phrases := append(a.Phrases(), b.Phrases()...)
	if len(phrases) == 0 {
		return nil
	}
	return Build(phrases, weight)
}
