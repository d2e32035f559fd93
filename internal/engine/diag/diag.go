// # internal/engine/diag/diag.go
package diag

import (
	"fmt"
	"sort"

	"rtinfer/internal/engine/syntax"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Kind classifies a diagnostic.
type Kind string

const (
	// UnresolvedOperation: no overload accepts the operand types at a call.
	UnresolvedOperation Kind = "UnresolvedOperationError"
	// ContractViolation: a conversion method may return a type outside its
	// contract.
	ContractViolation Kind = "OverloadContractViolation"
)

// Diagnostic is an immutable finding attached to a syntax node.
type Diagnostic struct {
	Kind      Kind
	Message   string
	Line      int
	Node      syntax.NodeID
	File      string
	Secondary string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s:%d: %s: %s", d.File, d.Line, d.Kind, d.Message)
}

// SecondaryError carries the optional hint shown under the message.
func (d Diagnostic) SecondaryError() string {
	return d.Secondary
}

type dedupeKey struct {
	kind    Kind
	node    syntax.NodeID
	message string
}

// Sink collects diagnostics for an analysis session and indexes them by the
// node they are attached to.
type Sink struct {
	list   []Diagnostic
	byNode map[syntax.NodeID][]int
	seen   map[dedupeKey]bool
	hook   func(Diagnostic)
}

// NewSink returns an empty sink.
func NewSink() *Sink {
	return &Sink{
		byNode: make(map[syntax.NodeID][]int),
		seen:   make(map[dedupeKey]bool),
	}
}

// OnReport registers a callback run once for every new diagnostic.
func (s *Sink) OnReport(fn func(Diagnostic)) {
	s.hook = fn
}

// Report records d unless an identical diagnostic is already attached to the
// same node. It returns whether d was new.
func (s *Sink) Report(d Diagnostic) bool {
	k := dedupeKey{d.Kind, d.Node, d.Message}
	if s.seen[k] {
		return false
	}
	s.seen[k] = true
	s.list = append(s.list, d)
	s.byNode[d.Node] = append(s.byNode[d.Node], len(s.list)-1)
	if s.hook != nil {
		s.hook(d)
	}
	return true
}

// All returns every diagnostic ordered by file and line.
func (s *Sink) All() []Diagnostic {
	out := make([]Diagnostic, len(s.list))
	copy(out, s.list)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// ForNode returns the diagnostics attached to id in report order.
func (s *Sink) ForNode(id syntax.NodeID) []Diagnostic {
	idx := s.byNode[id]
	out := make([]Diagnostic, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.list[i])
	}
	return out
}

// OfKind filters diagnostics by kind.
func (s *Sink) OfKind(k Kind) []Diagnostic {
	var out []Diagnostic
	for _, d := range s.All() {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

// Len is the number of distinct diagnostics.
func (s *Sink) Len() int {
	return len(s.list)
}

// Reset drops every diagnostic.
func (s *Sink) Reset() {
	s.list = nil
	s.byNode = make(map[syntax.NodeID][]int)
	s.seen = make(map[dedupeKey]bool)
}

// ClosestName returns the candidate nearest to name by edit distance, or ""
// when every candidate would need a complete rewrite.
func ClosestName(name string, candidates []string) string {
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	nameRunes := []rune(name)
	closest := ""
	closestDistance := len(nameRunes)
	for _, c := range sorted {
		if c == name {
			continue
		}
		distance := levenshtein.DistanceForStrings(nameRunes, []rune(c), levenshtein.DefaultOptions)
		if distance < closestDistance && distance < len([]rune(c)) {
			closest = c
			closestDistance = distance
		}
	}
	return closest
}
