package thread

// Normalize flattens a nested payload into records in level-major order: every
// comment at depth d precedes every comment at depth d+1, and siblings keep
// the order in which their parents were visited.
//
// Each pass consumes one whole tree level, so the loop runs depth-of-tree
// times. Shapes it cannot read are dropped without error.
func Normalize(root Replies) []Record {
	var out []Record
	level := root.Things()
	for depth := 0; len(level) > 0; depth++ {
		var next []Thing
		for _, node := range unwrapEnvelopes(level) {
			if node.Kind != KindComment {
				continue
			}
			rec, ok := node.record(depth)
			if !ok {
				continue
			}
			out = append(out, rec)
			next = append(next, node.Data.Replies.Things()...)
		}
		level = next
	}
	if out == nil {
		return []Record{}
	}
	return out
}

// unwrapEnvelopes replaces Listing envelopes by their children, in place
// order, without moving them to another level.
func unwrapEnvelopes(level []Thing) []Thing {
	out := make([]Thing, 0, len(level))
	pending := level
	for len(pending) > 0 {
		node := pending[0]
		pending = pending[1:]
		if node.isEnvelope() {
			children := append([]Thing(nil), node.Data.Children.Things()...)
			pending = append(children, pending...)
			continue
		}
		out = append(out, node)
	}
	return out
}
