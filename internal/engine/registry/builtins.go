package registry

import (
	_ "embed"
	"fmt"
	"strings"

	"rtinfer/internal/engine/types"

	"github.com/BurntSushi/toml"
)

//go:embed corelib.toml
var corelibTOML string

// Receivers with special meaning in the overload table.
const (
	ReceiverObject = "Object"
	ReceiverKernel = "Kernel"
	ReceiverClass  = "Class"
)

// Pattern matches one operand position.
type Pattern struct {
	Any  bool
	Type *types.Union
}

// Matches reports whether every member of t is accepted.
func (p Pattern) Matches(t types.Type) bool {
	if p.Any {
		return true
	}
	return p.Type.Contains(t)
}

func (p Pattern) String() string {
	if p.Any {
		return "any"
	}
	return p.Type.String()
}

// Overload is one declared behaviour of a built-in method.
type Overload struct {
	Receiver   string
	Name       string
	Params     []Pattern
	Rest       *Pattern
	Result     types.Type
	ResultSelf bool
}

// Accepts reports whether the concrete operand list fits the overload.
func (o Overload) Accepts(args []types.Type) bool {
	if len(args) < len(o.Params) {
		return false
	}
	if len(args) > len(o.Params) && o.Rest == nil {
		return false
	}
	for i, a := range args {
		if i < len(o.Params) {
			if !o.Params[i].Matches(a) {
				return false
			}
			continue
		}
		if !o.Rest.Matches(a) {
			return false
		}
	}
	return true
}

// ResultFor returns the overload's result for a concrete receiver.
func (o Overload) ResultFor(recv types.Type) types.Type {
	if o.ResultSelf {
		return recv
	}
	return o.Result
}

// Signature renders the overload for diagnostics.
func (o Overload) Signature() string {
	parts := make([]string, 0, len(o.Params)+1)
	for _, p := range o.Params {
		parts = append(parts, p.String())
	}
	if o.Rest != nil {
		parts = append(parts, "*"+o.Rest.String())
	}
	return fmt.Sprintf("%s#%s(%s)", o.Receiver, o.Name, strings.Join(parts, ", "))
}

// Builtins indexes overloads by receiver and method name.
type Builtins struct {
	table map[string]map[string][]Overload
}

type corelibFile struct {
	Overload []corelibEntry `toml:"overload"`
}

type corelibEntry struct {
	Receiver string   `toml:"receiver"`
	Methods  []string `toml:"methods"`
	Params   []string `toml:"params"`
	Rest     string   `toml:"rest"`
	Result   string   `toml:"result"`
}

// LoadBuiltins decodes an overload table in the corelib TOML format.
func LoadBuiltins(data string) (*Builtins, error) {
	var file corelibFile
	if _, err := toml.Decode(data, &file); err != nil {
		return nil, fmt.Errorf("decode overload table: %w", err)
	}

	b := &Builtins{table: make(map[string]map[string][]Overload)}
	for i, e := range file.Overload {
		if e.Receiver == "" || len(e.Methods) == 0 {
			return nil, fmt.Errorf("overload entry %d: receiver and methods are required", i)
		}
		params := make([]Pattern, 0, len(e.Params))
		for _, raw := range e.Params {
			p, err := parsePattern(raw)
			if err != nil {
				return nil, fmt.Errorf("overload entry %d (%s): %w", i, e.Receiver, err)
			}
			params = append(params, p)
		}
		var rest *Pattern
		if e.Rest != "" {
			p, err := parsePattern(e.Rest)
			if err != nil {
				return nil, fmt.Errorf("overload entry %d (%s): %w", i, e.Receiver, err)
			}
			rest = &p
		}
		ov := Overload{Receiver: e.Receiver, Params: params, Rest: rest}
		if e.Result == "self" {
			ov.ResultSelf = true
		} else {
			res, err := types.Parse(e.Result)
			if err != nil {
				return nil, fmt.Errorf("overload entry %d (%s): %w", i, e.Receiver, err)
			}
			ov.Result = res
		}
		for _, name := range e.Methods {
			ov.Name = name
			b.add(ov)
		}
	}
	return b, nil
}

func parsePattern(raw string) (Pattern, error) {
	if raw == "any" {
		return Pattern{Any: true}, nil
	}
	t, err := types.Parse(raw)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Type: types.AsUnion(t)}, nil
}

func (b *Builtins) add(ov Overload) {
	byName, ok := b.table[ov.Receiver]
	if !ok {
		byName = make(map[string][]Overload)
		b.table[ov.Receiver] = byName
	}
	byName[ov.Name] = append(byName[ov.Name], ov)
}

// For returns overloads declared directly on receiver.
func (b *Builtins) For(receiver, name string) []Overload {
	return b.table[receiver][name]
}

// Names lists every method name declared on receiver.
func (b *Builtins) Names(receiver string) []string {
	var out []string
	for name := range b.table[receiver] {
		out = append(out, name)
	}
	return out
}

// receiverKey picks the table row for a concrete receiver type.
func receiverKey(recv types.Type) string {
	switch r := recv.(type) {
	case types.Primitive:
		return r.String()
	case *types.ClassType:
		if _, ok := r.SingletonTarget(); ok {
			return ReceiverClass
		}
	}
	return ""
}

// Overloads returns the candidate built-in overloads for a concrete receiver,
// most specific first. Kernel functions are included only for implicit-self
// calls.
func (b *Builtins) Overloads(recv types.Type, name string, implicitSelf bool) []Overload {
	var out []Overload
	if key := receiverKey(recv); key != "" {
		out = append(out, b.For(key, name)...)
	}
	out = append(out, b.For(ReceiverObject, name)...)
	if implicitSelf {
		out = append(out, b.For(ReceiverKernel, name)...)
	}
	return out
}
