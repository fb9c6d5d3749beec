package opt

import (
	"fmt"
	"strings"

	"scatha/internal/ir"
	"scatha/internal/pass"
)

func init() {
	pass.Register("sroa", pass.AsModulePass(&SROA{}), pass.CategorySimplification)
}

// SROA splits an aggregate-typed alloca into one alloca per element it is
// actually addressed at, when every use is a getelementptr through a chain
// of constant indices — recursing through struct members and array elements
// alike, so an array-of-structs alloca indexed two levels deep (array index,
// then struct field) splits exactly as a bare struct does — followed only by
// loads/stores of that element's whole value. It is grounded on the same
// alloca/load/store shape the teacher's Builder constructs for `let`
// bindings (builder.go), generalized from scalars to aggregates; running
// mem2reg afterward promotes the resulting per-element allocas to SSA
// values. Covers S3.
type SROA struct{}

func (SROA) Name() string        { return "sroa" }
func (SROA) Description() string { return "splits aggregate allocas into one alloca per accessed element" }

func (s *SROA) RunOnFunction(ctx *ir.Context, f *ir.Function) bool {
	changed := false
	entry := f.Entry()
	if entry == nil {
		return false
	}
	for _, b := range f.Blocks {
		for _, inst := range append([]ir.Instruction(nil), b.Insts...) {
			a, ok := inst.(*ir.AllocaInst)
			if !ok {
				continue
			}
			switch a.AllocType.(type) {
			case *ir.StructType, *ir.ArrayType:
			default:
				continue
			}
			groups, ok := splittableGEPs(a)
			if !ok || len(groups) == 0 {
				continue
			}
			s.split(ctx, a, groups)
			changed = true
		}
	}
	return changed
}

// gepGroup collects every use of an alloca's address that resolves to the
// same constant-index path; those uses share one freshly allocated member
// alloca of elemType.
type gepGroup struct {
	key      string
	elemType ir.Type
	geps     []*ir.GEPInst
}

// splittableGEPs reports whether every use of a is a GEP through a chain of
// constant indices (no dynamic index) terminating in a load or a store of
// the element's whole value, recursing through struct members and array
// elements alike — the precondition under which the aggregate never needs
// to exist as a single memory object. Distinct GEPs that resolve to the same
// element path share one member alloca; if one resolved path is a strict
// prefix of another (a partial-depth access overlapping a deeper one), the
// alloca is left alone, since splitting would silently drop the aliasing
// between them.
func splittableGEPs(a *ir.AllocaInst) ([]*gepGroup, bool) {
	byKey := map[string]*gepGroup{}
	var order []string
	for _, u := range a.Uses() {
		g, ok := u.User.(*ir.GEPInst)
		if !ok {
			return nil, false
		}
		elemType, key, ok := resolveConstantPath(a.AllocType, g.Indices)
		if !ok || !onlyLoadStoreUsers(g) {
			return nil, false
		}
		grp, ok := byKey[key]
		if !ok {
			grp = &gepGroup{key: key, elemType: elemType}
			byKey[key] = grp
			order = append(order, key)
		}
		grp.geps = append(grp.geps, g)
	}
	for i, a := range order {
		for j, b := range order {
			if i != j && strings.HasPrefix(b, a+"/") {
				return nil, false
			}
		}
	}
	groups := make([]*gepGroup, len(order))
	for i, k := range order {
		groups[i] = byKey[k]
	}
	return groups, true
}

// resolveConstantPath walks t through idxs, requiring every index be
// constant, and returns the element type reached plus a string key unique to
// that index path (an empty path never qualifies: a GEP with no indices is
// just the base pointer, not an element access SROA can split on).
func resolveConstantPath(t ir.Type, idxs []ir.GEPIndex) (ir.Type, string, bool) {
	if len(idxs) == 0 {
		return nil, "", false
	}
	key := ""
	for _, idx := range idxs {
		if idx.Value != nil {
			return nil, "", false
		}
		switch tt := t.(type) {
		case *ir.StructType:
			if idx.Const < 0 || idx.Const >= len(tt.Members) {
				return nil, "", false
			}
			t = tt.Members[idx.Const].Type
		case *ir.ArrayType:
			if idx.Const < 0 || idx.Const >= tt.Count {
				return nil, "", false
			}
			t = tt.Elem
		default:
			return nil, "", false
		}
		key += fmt.Sprintf("/%d", idx.Const)
	}
	return t, key, true
}

func onlyLoadStoreUsers(g *ir.GEPInst) bool {
	for _, gu := range g.Uses() {
		switch gu.User.(type) {
		case *ir.LoadInst, *ir.StoreInst:
		default:
			return false
		}
	}
	return true
}

// split replaces a with one alloca per distinct constant-index path recorded
// in groups, placed immediately before the original alloca, and retargets
// every surviving GEP's users to load/store the member alloca directly
// instead of indirecting through a GEP.
func (s *SROA) split(ctx *ir.Context, a *ir.AllocaInst, groups []*gepGroup) {
	b := a.Block()
	f := b.Parent
	for _, grp := range groups {
		member := ir.NewBuilder(ctx, f, b).Alloca(grp.elemType)
		b.Erase(member) // undo the tail append; re-insert before the original alloca
		b.InsertBefore(a, member)
		for _, g := range grp.geps {
			ir.ReplaceAllUsesWith(g, member)
			g.Block().Erase(g)
		}
	}
	b.Erase(a)
}
