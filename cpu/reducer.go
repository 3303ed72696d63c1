package cpu

// The SignatureReducer merges instruction instances that are the same
// instruction in every identity byte and differ only in data bytes -- the
// classic case being an immediate that the program rewrites between phases.
// The survivor keeps one node in the graph; the differing fields lose their
// UseValue bit so the executor reads them from live memory instead.
type SignatureReducer struct {
	registry *ReplacerRegistry
}

func NewSignatureReducer(registry *ReplacerRegistry) *SignatureReducer {
	return &SignatureReducer{registry: registry}
}

// ReduceToOne folds b into a if they share an opcode family and a final
// signature. Returns the survivor, or nil when the two are genuinely
// different instructions. On success every reference to b -- caches, graph
// edges, selector candidate sets -- is rewritten to a through the registry.
func (r *SignatureReducer) ReduceToOne(a, b *ParsedInstruction) *ParsedInstruction {
	if a == b {
		return a
	}
	if a.Def.Family != b.Def.Family {
		return nil
	}
	if !a.sigFinal.Equal(b.sigFinal) {
		return nil
	}
	if len(a.fields) != len(b.fields) {
		return nil
	}

	for i, fa := range a.fields {
		fb := b.fields[i]
		if fa.SameValueAndPosition(fb) {
			continue
		}
		if fa.Final() {
			// equal final signatures should make this unreachable
			return nil
		}
		fa.ClearUseValue()
		a.sig.ClearRange(a.fieldOffset(fa), int(fa.ByteLength()))
	}

	logger.Logf("reduced %s into %s", b, a)
	r.registry.ReplaceAll(b, a)
	return a
}

// ReduceAll folds an arbitrary list by grouping on (family, final
// signature) and reducing each group to its first member. The returned
// survivors keep first-seen order. Idempotent: a second pass rewrites
// nothing.
func (r *SignatureReducer) ReduceAll(list []*ParsedInstruction) []*ParsedInstruction {
	type key struct {
		fam Family
		sig string
	}
	survivors := map[key]*ParsedInstruction{}
	var out []*ParsedInstruction
	for _, inst := range list {
		k := key{inst.Def.Family, inst.sigFinal.String()}
		first, ok := survivors[k]
		if !ok {
			survivors[k] = inst
			out = append(out, inst)
			continue
		}
		r.ReduceToOne(first, inst)
	}
	return out
}
