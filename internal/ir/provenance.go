package ir

// PointerInfo is the provenance metadata attached to a pointer-typed value:
// alignment, the known valid byte range relative to the pointer, the
// originating allocation, a static offset from that allocation, and two
// flags used by InstCombine to fold comparisons and prove distinctness.
type PointerInfo struct {
	Align      int
	ValidStart int64
	ValidEnd   int64
	HasRange   bool
	Origin     Value // the allocating instruction/global this pointer derives from
	Offset     int64 // static byte offset from Origin, when known
	NonNull    bool
	NoEscape   bool
}

// merge combines provenance from two incoming edges (phi/select): fields
// that disagree collapse to the unknown value rather than being guessed.
func (p PointerInfo) merge(o PointerInfo) PointerInfo {
	out := PointerInfo{}
	if p.Align != 0 && p.Align == o.Align {
		out.Align = p.Align
	}
	if p.HasRange && o.HasRange && p.ValidStart == o.ValidStart && p.ValidEnd == o.ValidEnd {
		out.ValidStart, out.ValidEnd, out.HasRange = p.ValidStart, p.ValidEnd, true
	}
	if p.Origin != nil && p.Origin == o.Origin && p.Offset == o.Offset {
		out.Origin, out.Offset = p.Origin, p.Offset
	}
	out.NonNull = p.NonNull && o.NonNull
	out.NoEscape = p.NoEscape && o.NoEscape
	return out
}

// offsetBy returns provenance shifted by a further constant byte offset, as
// produced by a GEP with a fully constant index chain.
func (p PointerInfo) offsetBy(delta int64) PointerInfo {
	out := p
	if out.Origin != nil {
		out.Offset += delta
	}
	if out.HasRange {
		out.ValidStart -= delta
		out.ValidEnd -= delta
	}
	return out
}

// ProvenanceMap is a per-function side table computed by ComputeProvenance;
// it is invalidated the same way dominance and the LNF are, on any CFG or
// instruction mutation.
type ProvenanceMap struct {
	info map[Value]PointerInfo
}

func (m *ProvenanceMap) Get(v Value) (PointerInfo, bool) {
	if m == nil {
		return PointerInfo{}, false
	}
	p, ok := m.info[v]
	return p, ok
}

// Distinct reports whether a and b are provably distinct pointers because
// they derive from different allocations, or from the same allocation at
// different static offsets. Used by InstCombine to fold pointer comparisons
// (S6: `alloca == alloca → false` when the allocas differ).
func (m *ProvenanceMap) Distinct(a, b Value) bool {
	pa, oka := m.Get(a)
	pb, okb := m.Get(b)
	if !oka || !okb || pa.Origin == nil || pb.Origin == nil {
		return false
	}
	if pa.Origin != pb.Origin {
		return true
	}
	return pa.Offset != pb.Offset
}

// ComputeProvenance walks f's instructions in block order (sufficient: the
// only backward edges are through phi, handled by a fixed-point pass) and
// derives provenance for every pointer-typed value reachable from an
// AllocaInst or GlobalVariable.
func ComputeProvenance(f *Function) *ProvenanceMap {
	m := &ProvenanceMap{info: make(map[Value]PointerInfo)}
	changed := true
	for pass := 0; changed && pass < len(f.Blocks)+1; pass++ {
		changed = false
		for _, bb := range f.Blocks {
			for _, inst := range bb.Insts {
				if provenanceStep(m, inst) {
					changed = true
				}
			}
		}
	}
	return m
}

func provenanceStep(m *ProvenanceMap, inst Instruction) bool {
	var next PointerInfo
	switch x := inst.(type) {
	case *AllocaInst:
		next = PointerInfo{Align: x.AllocType.Align(), HasRange: true, ValidStart: 0, ValidEnd: int64(x.AllocType.Size()), Origin: x, NonNull: true, NoEscape: true}
	case *GEPInst:
		base, ok := m.Get(x.Base)
		if !ok {
			if g, isGlobal := x.Base.(*GlobalVariable); isGlobal {
				base = PointerInfo{Align: g.Ty.Align(), HasRange: true, ValidEnd: int64(g.Ty.Size()), Origin: g, NonNull: true}
			} else {
				return false
			}
		}
		delta, constOnly := gepConstOffset(x)
		if !constOnly {
			next = PointerInfo{Origin: nil, Align: base.Align}
			break
		}
		next = base.offsetBy(delta)
	case *PhiInst:
		have := false
		for _, in := range x.Incoming {
			p, ok := m.Get(in.Value)
			if !ok {
				have = false
				break
			}
			if !have {
				next, have = p, true
			} else {
				next = next.merge(p)
			}
		}
		if !have {
			return false
		}
	case *SelectInst:
		pt, okT := m.Get(x.Then)
		pe, okE := m.Get(x.Else)
		if !okT || !okE {
			return false
		}
		next = pt.merge(pe)
	case *ConvertInst:
		if x.Op != OpBitcast {
			return false
		}
		p, ok := m.Get(x.Src)
		if !ok {
			return false
		}
		next = p
	default:
		return false
	}
	r := inst.Result()
	if r == nil {
		return false
	}
	old, existed := m.info[r]
	if existed && old == next {
		return false
	}
	m.info[r] = next
	return true
}

// gepConstOffset returns the total byte offset of a GEP whose index chain is
// entirely constant, and false if any index is dynamic.
func gepConstOffset(g *GEPInst) (int64, bool) {
	ty := g.BaseType
	var offset int64
	for _, idx := range g.Indices {
		if idx.Value != nil {
			return 0, false
		}
		switch t := ty.(type) {
		case *StructType:
			if idx.Const < 0 || idx.Const >= len(t.Members) {
				return 0, false
			}
			offset += int64(t.Members[idx.Const].Offset)
			ty = t.Members[idx.Const].Type
		case *ArrayType:
			offset += int64(idx.Const) * int64(t.Elem.Size())
			ty = t.Elem
		default:
			offset += int64(idx.Const) * int64(ty.Size())
		}
	}
	return offset, true
}
