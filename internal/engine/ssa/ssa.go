// # internal/engine/ssa/ssa.go
package ssa

import (
	"fmt"
	"sort"

	"rtinfer/internal/engine/cfg"
)

// Binding is one SSA version of a local. Version 0 means the variable has no
// definition on the path; it reads as nil.
type Binding struct {
	Name    string
	Version int
}

// Undefined reports whether b has no reaching definition.
func (b Binding) Undefined() bool { return b.Version == 0 }

func (b Binding) String() string {
	return fmt.Sprintf("%s.%d", b.Name, b.Version)
}

// Phi merges the versions of Var reaching a join block. Operands are aligned
// with Form.Preds of the block.
type Phi struct {
	Var      string
	Def      Binding
	Operands []Binding
}

// Form is a control-flow graph in SSA form.
type Form struct {
	Graph *cfg.Graph
	// Preds lists predecessors per block, in the order phi operands use.
	Preds [][]int
	// Order is the reverse post-order of reachable blocks.
	Order []int
	// Idom is the immediate dominator per block; the entry maps to itself and
	// unreachable blocks to -1.
	Idom     []int
	Frontier [][]int
	Phis     [][]*Phi
	// Uses holds, per block and op, the binding of each entry of Op.Reads.
	Uses [][][]Binding
	// Defs holds, per block and op, the bindings introduced by Op.Defs().
	Defs [][][]Binding
}

// Convert rewrites g into SSA form with pruned phi placement.
func Convert(g *cfg.Graph) *Form {
	n := len(g.Blocks)
	f := &Form{
		Graph: g,
		Preds: g.Preds(),
		Phis:  make([][]*Phi, n),
		Uses:  make([][][]Binding, n),
		Defs:  make([][][]Binding, n),
	}
	f.Order = reversePostOrder(g)
	f.Idom = dominators(g, f.Preds, f.Order)
	f.Frontier = frontiers(f.Preds, f.Idom)
	f.placePhis(liveIn(g, f.Order))
	f.rename()
	return f
}

// Reachable reports whether block b is reachable from the entry.
func (f *Form) Reachable(b int) bool {
	return f.Idom[b] >= 0
}

// Dominates reports whether a dominates b.
func (f *Form) Dominates(a, b int) bool {
	if !f.Reachable(b) {
		return false
	}
	for {
		if a == b {
			return true
		}
		next := f.Idom[b]
		if next == b {
			return false
		}
		b = next
	}
}

// reversePostOrder visits successors last to first. A loop header lists its
// body before its exit, so the body precedes everything after the loop.
func reversePostOrder(g *cfg.Graph) []int {
	seen := make([]bool, len(g.Blocks))
	var post []int
	var visit func(b int)
	visit = func(b int) {
		seen[b] = true
		succs := g.Blocks[b].Succs
		for i := len(succs) - 1; i >= 0; i-- {
			if to := succs[i].To; !seen[to] {
				visit(to)
			}
		}
		post = append(post, b)
	}
	visit(g.Entry)
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// dominators is the iterative algorithm of Cooper, Harvey and Kennedy.
func dominators(g *cfg.Graph, preds [][]int, order []int) []int {
	idom := make([]int, len(g.Blocks))
	for i := range idom {
		idom[i] = -1
	}
	rank := make([]int, len(g.Blocks))
	for i, b := range order {
		rank[b] = i
	}
	idom[g.Entry] = g.Entry

	intersect := func(a, b int) int {
		for a != b {
			for rank[a] > rank[b] {
				a = idom[a]
			}
			for rank[b] > rank[a] {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, b := range order {
			if b == g.Entry {
				continue
			}
			newIdom := -1
			for _, p := range preds[b] {
				if idom[p] < 0 {
					continue
				}
				if newIdom < 0 {
					newIdom = p
					continue
				}
				newIdom = intersect(p, newIdom)
			}
			if newIdom >= 0 && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	return idom
}

func frontiers(preds [][]int, idom []int) [][]int {
	df := make([][]int, len(preds))
	for b, ps := range preds {
		if idom[b] < 0 || len(ps) < 2 {
			continue
		}
		for _, p := range ps {
			if idom[p] < 0 {
				continue
			}
			for runner := p; runner != idom[b]; runner = idom[runner] {
				if !contains(df[runner], b) {
					df[runner] = append(df[runner], b)
				}
				if idom[runner] == runner {
					break
				}
			}
		}
	}
	for _, d := range df {
		sort.Ints(d)
	}
	return df
}

func contains(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

type varSet map[string]bool

// liveIn computes the variables live on entry to each block.
func liveIn(g *cfg.Graph, order []int) []varSet {
	n := len(g.Blocks)
	use := make([]varSet, n)
	def := make([]varSet, n)
	for _, b := range g.Blocks {
		use[b.ID], def[b.ID] = varSet{}, varSet{}
		for i := range b.Ops {
			op := &b.Ops[i]
			for _, r := range op.Reads {
				if !def[b.ID][r.Var] {
					use[b.ID][r.Var] = true
				}
			}
			for _, d := range op.Defs() {
				def[b.ID][d] = true
			}
		}
	}

	in := make([]varSet, n)
	for i := range in {
		in[i] = varSet{}
	}
	for changed := true; changed; {
		changed = false
		for i := len(order) - 1; i >= 0; i-- {
			b := g.Blocks[order[i]]
			next := varSet{}
			for v := range use[b.ID] {
				next[v] = true
			}
			for _, e := range b.Succs {
				for v := range in[e.To] {
					if !def[b.ID][v] {
						next[v] = true
					}
				}
			}
			if len(next) != len(in[b.ID]) {
				in[b.ID] = next
				changed = true
			}
		}
	}
	return in
}

func (f *Form) placePhis(live []varSet) {
	g := f.Graph
	defSites := make(map[string][]int)
	for _, b := range f.Order {
		for i := range g.Blocks[b].Ops {
			for _, d := range g.Blocks[b].Ops[i].Defs() {
				sites := defSites[d]
				if len(sites) == 0 || sites[len(sites)-1] != b {
					defSites[d] = append(sites, b)
				}
			}
		}
	}

	names := make([]string, 0, len(defSites))
	for name := range defSites {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, v := range names {
		hasPhi := make(map[int]bool)
		queued := make(map[int]bool)
		work := append([]int(nil), defSites[v]...)
		for _, b := range work {
			queued[b] = true
		}
		for len(work) > 0 {
			b := work[0]
			work = work[1:]
			for _, d := range f.Frontier[b] {
				if hasPhi[d] || !live[d][v] {
					continue
				}
				hasPhi[d] = true
				f.Phis[d] = append(f.Phis[d], &Phi{Var: v, Operands: make([]Binding, len(f.Preds[d]))})
				if !queued[d] {
					queued[d] = true
					work = append(work, d)
				}
			}
		}
	}
}

func (f *Form) rename() {
	g := f.Graph
	children := make([][]int, len(g.Blocks))
	for _, b := range f.Order {
		if b != g.Entry && f.Idom[b] >= 0 {
			children[f.Idom[b]] = append(children[f.Idom[b]], b)
		}
	}

	counter := make(map[string]int)
	stacks := make(map[string][]Binding)
	top := func(v string) Binding {
		s := stacks[v]
		if len(s) == 0 {
			return Binding{Name: v}
		}
		return s[len(s)-1]
	}
	push := func(v string) Binding {
		counter[v]++
		b := Binding{Name: v, Version: counter[v]}
		stacks[v] = append(stacks[v], b)
		return b
	}

	var walk func(b int)
	walk = func(b int) {
		var pushed []string
		for _, p := range f.Phis[b] {
			p.Def = push(p.Var)
			pushed = append(pushed, p.Var)
		}

		blk := g.Blocks[b]
		f.Uses[b] = make([][]Binding, len(blk.Ops))
		f.Defs[b] = make([][]Binding, len(blk.Ops))
		for i := range blk.Ops {
			op := &blk.Ops[i]
			uses := make([]Binding, len(op.Reads))
			for j, r := range op.Reads {
				uses[j] = top(r.Var)
			}
			f.Uses[b][i] = uses
			for _, d := range op.Defs() {
				f.Defs[b][i] = append(f.Defs[b][i], push(d))
				pushed = append(pushed, d)
			}
		}

		for _, e := range blk.Succs {
			for k, p := range f.Preds[e.To] {
				if p != b {
					continue
				}
				for _, phi := range f.Phis[e.To] {
					phi.Operands[k] = top(phi.Var)
				}
			}
		}

		for _, c := range children[b] {
			walk(c)
		}
		for _, v := range pushed {
			stacks[v] = stacks[v][:len(stacks[v])-1]
		}
	}
	walk(g.Entry)
}
