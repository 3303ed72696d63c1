package cpu

// The NodeLinker owns the edge discipline of the graph. Successor and
// predecessor maps are always mutated in pairs, so at no observable boundary
// does one direction disagree with the other.
type NodeLinker struct{}

// Link records that execution flowed from prev to curr. At most one edge
// exists per (prev, target address); a different node already on that key is
// the branch retargeting case and gets overwritten, losing its back-edge.
func (NodeLinker) Link(prev, curr Node) {
	key := curr.Address().Linear()
	if old, ok := prev.Successors()[key]; ok {
		if old == curr {
			return
		}
		delete(old.Predecessors(), prev)
	}
	prev.Successors()[key] = curr
	curr.Predecessors()[prev] = LinkSuccessor
}

// InsertIntermediatePredecessor reroutes every predecessor of existing to
// point at intermediate instead, then hangs existing under intermediate as a
// candidate. This is how a selector takes over an address: whoever used to
// jump straight to the instruction now goes through the selector.
func (NodeLinker) InsertIntermediatePredecessor(existing, intermediate Node) {
	preds := make([]Node, 0, len(existing.Predecessors()))
	for p := range existing.Predecessors() {
		if p != intermediate {
			preds = append(preds, p)
		}
	}
	for _, p := range preds {
		for k, s := range p.Successors() {
			if s == existing {
				p.Successors()[k] = intermediate
			}
		}
		delete(existing.Predecessors(), p)
		intermediate.Predecessors()[p] = LinkSuccessor
	}
	existing.Predecessors()[intermediate] = LinkSelectorCandidate
}

// graphEdges is the graph's seat on the ReplacerRegistry: when the reducer
// folds old into new, every edge touching old moves over. Eviction
// (new == nil) leaves edges alone; stale successors are the arbiter's cue.
type graphEdges struct{}

func (graphEdges) Replace(old, new *ParsedInstruction) {
	if new == nil {
		return
	}
	for p, kind := range old.pred {
		for k, s := range p.Successors() {
			if s == Node(old) {
				p.Successors()[k] = new
			}
		}
		new.pred[p] = kind
		delete(old.pred, p)
	}
	for k, s := range old.succ {
		if _, taken := new.succ[k]; !taken {
			new.succ[k] = s
			s.Predecessors()[new] = s.Predecessors()[Node(old)]
		}
		delete(s.Predecessors(), Node(old))
		delete(old.succ, k)
	}
}
