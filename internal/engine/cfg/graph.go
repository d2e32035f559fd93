// # internal/engine/cfg/graph.go
package cfg

import (
	"fmt"
	"strings"

	"rtinfer/internal/engine/syntax"
)

// EdgeKind tags a control transfer between blocks.
type EdgeKind uint8

const (
	Fallthrough EdgeKind = iota
	BranchTrue
	BranchFalse
	LoopBack
)

func (k EdgeKind) String() string {
	switch k {
	case BranchTrue:
		return "true"
	case BranchFalse:
		return "false"
	case LoopBack:
		return "loop"
	default:
		return "fall"
	}
}

// OpKind classifies an operation.
type OpKind uint8

const (
	// OpParam binds formal parameter Index to Var.
	OpParam OpKind = iota
	// OpAssign evaluates Node and binds the result to Var.
	OpAssign
	// OpMultiAssign destructures Node into Targets.
	OpMultiAssign
	// OpEval evaluates Node for its effects.
	OpEval
	// OpBranch evaluates the condition Node; the block ends in a split.
	OpBranch
	// OpReturn evaluates Node (NoNode yields nil) and leaves the method.
	OpReturn
	// OpCopy binds the current value of From to Var.
	OpCopy
	// OpUnknown is syntax the builder does not model.
	OpUnknown
)

var opNames = [...]string{"param", "assign", "massign", "eval", "branch", "return", "copy", "unknown"}

func (k OpKind) String() string {
	if int(k) < len(opNames) {
		return opNames[k]
	}
	return "op?"
}

// Read is a local variable use. Node is the syntax node whose value is the
// variable; NoNode marks the implicit read of Op.From.
type Read struct {
	Node syntax.NodeID
	Var  string
}

// Target is one destination of a multiple assignment. Var is set for locals;
// Node is the target node for fields, attributes and element writes.
type Target struct {
	Var    string
	Node   syntax.NodeID
	Rest   bool
	Nested []Target
}

// Op is one operation in a basic block.
type Op struct {
	Kind     OpKind
	Node     syntax.NodeID
	Site     syntax.NodeID
	Var      string
	From     string
	Operator string
	Index    int
	Targets  []Target
	Reads    []Read
}

// Defs lists the local variables op assigns, in binding order.
func (op *Op) Defs() []string {
	switch op.Kind {
	case OpParam, OpAssign, OpCopy:
		return []string{op.Var}
	case OpMultiAssign:
		var out []string
		var walk func([]Target)
		walk = func(ts []Target) {
			for _, t := range ts {
				if len(t.Nested) > 0 {
					walk(t.Nested)
					continue
				}
				if t.Var != "" {
					out = append(out, t.Var)
				}
			}
		}
		walk(op.Targets)
		return out
	}
	return nil
}

// Edge is a directed control transfer.
type Edge struct {
	To   int
	Kind EdgeKind
}

// Block is a straight-line run of operations.
type Block struct {
	ID    int
	Ops   []Op
	Succs []Edge
	Exit  bool
}

// Graph is the control-flow graph of one method body.
type Graph struct {
	Blocks []*Block
	Entry  int
	Exits  []int
	// Temps maps control constructs used as values to the synthetic local
	// holding their result.
	Temps map[syntax.NodeID]string
	// Locals lists the lexical locals of the method in declaration order.
	Locals []string
}

// Preds computes the predecessor lists, ordered by predecessor id.
func (g *Graph) Preds() [][]int {
	out := make([][]int, len(g.Blocks))
	for _, b := range g.Blocks {
		for _, e := range b.Succs {
			out[e.To] = append(out[e.To], b.ID)
		}
	}
	return out
}

// EdgeKindOf returns the kind of the edge from -> to.
func (g *Graph) EdgeKindOf(from, to int) (EdgeKind, bool) {
	for _, e := range g.Blocks[from].Succs {
		if e.To == to {
			return e.Kind, true
		}
	}
	return 0, false
}

// Dump renders the graph for debugging and tests.
func (g *Graph) Dump(tree *syntax.Tree) string {
	var sb strings.Builder
	for _, b := range g.Blocks {
		fmt.Fprintf(&sb, "b%d", b.ID)
		if b.Exit {
			sb.WriteString(" exit")
		}
		sb.WriteString(":\n")
		for _, op := range b.Ops {
			fmt.Fprintf(&sb, "  %s", op.Kind)
			if op.Var != "" {
				fmt.Fprintf(&sb, " %s", op.Var)
			}
			if op.From != "" {
				fmt.Fprintf(&sb, " <- %s", op.From)
			}
			if op.Node.Valid() {
				fmt.Fprintf(&sb, " [%s@%d]", tree.Kind(op.Node), tree.Line(op.Node))
			}
			sb.WriteString("\n")
		}
		for _, e := range b.Succs {
			fmt.Fprintf(&sb, "  -> b%d (%s)\n", e.To, e.Kind)
		}
	}
	return sb.String()
}
