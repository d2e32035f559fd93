package types

import (
	"fmt"
	"strings"
	"unicode"
)

var primitiveByName = func() map[string]Primitive {
	out := make(map[string]Primitive, len(primitiveNames)*2)
	for p, name := range primitiveNames {
		out[name] = p
	}
	// Ruby spellings are accepted as aliases.
	for p, name := range rubyNames {
		out[name] = p
	}
	out["Integer"] = SmallInt
	out["Nil"] = NullType
	return out
}()

// Parse reads a type expression such as "SmallInt | BigInt",
// "Tuple<Text, Symbolic>", "Boolean", "Empty" or a class name like "RTI5::Foo".
func Parse(s string) (Type, error) {
	p := &typeParser{src: s}
	t, err := p.union()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("unexpected %q at offset %d in type %q", p.src[p.pos:], p.pos, s)
	}
	return t, nil
}

// MustParse is Parse for fixtures known to be valid.
func MustParse(s string) Type {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *typeParser) union() (Type, error) {
	var parts []Type
	for {
		t, err := p.atom()
		if err != nil {
			return nil, err
		}
		parts = append(parts, t)
		if p.peek() != '|' {
			break
		}
		p.pos++
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return Join(parts...), nil
}

func (p *typeParser) atom() (Type, error) {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], singletonPrefix) {
		end := strings.IndexByte(p.src[p.pos:], '>')
		if end < 0 {
			return nil, fmt.Errorf("unterminated singleton class in %q", p.src)
		}
		name := p.src[p.pos : p.pos+end+1]
		p.pos += end + 1
		return Instance(name), nil
	}
	name := p.ident()
	if name == "" {
		return nil, fmt.Errorf("expected a type name at offset %d in %q", p.pos, p.src)
	}
	switch name {
	case "Empty":
		return Empty, nil
	case "Boolean":
		return Boolean, nil
	case "Tuple":
		return p.tuple()
	}
	if prim, ok := primitiveByName[name]; ok {
		return prim, nil
	}
	return Instance(name), nil
}

func (p *typeParser) tuple() (Type, error) {
	if p.peek() != '<' {
		return nil, fmt.Errorf("expected '<' after Tuple in %q", p.src)
	}
	p.pos++
	var elems []Type
	if p.peek() == '>' {
		p.pos++
		return &Tuple{}, nil
	}
	for {
		t, err := p.union()
		if err != nil {
			return nil, err
		}
		elems = append(elems, t)
		switch p.peek() {
		case ',':
			p.pos++
		case '>':
			p.pos++
			return &Tuple{Elems: elems}, nil
		default:
			return nil, fmt.Errorf("unterminated tuple in %q", p.src)
		}
	}
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == ':' {
			p.pos++
			continue
		}
		break
	}
	return strings.TrimSpace(p.src[start:p.pos])
}
