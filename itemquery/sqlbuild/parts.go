package sqlbuild

import (
	"strconv"
	"strings"
)

type partKind int

const (
	textPart partKind = iota
	paramPart
	arrayPart
)

type part struct {
	kind  partKind
	text  string
	value any
	items []int64
}

// Parts is a SQL fragment kept as a token list, so that table aliases can be
// renamed and bound values stay next to their markers.
type Parts struct {
	parts []part
}

func NewParts() *Parts {
	return &Parts{}
}

func (p *Parts) Append(texts ...string) *Parts {
	for _, text := range texts {
		if text != "" {
			p.parts = append(p.parts, part{kind: textPart, text: text})
		}
	}
	return p
}

// Column appends alias.column with the alias kept as its own token.
func (p *Parts) Column(alias, column string) *Parts {
	return p.Append(alias, "."+column)
}

// Param appends a bind marker for value.
func (p *Parts) Param(value any) *Parts {
	p.parts = append(p.parts, part{kind: paramPart, value: value})
	return p
}

// Params appends comma separated bind markers.
func (p *Parts) Params(values ...any) *Parts {
	for i, v := range values {
		if i > 0 {
			p.Append(", ")
		}
		p.Param(v)
	}
	return p
}

// Array appends a parenthesized single-column subquery over items. The
// dialect decides how the array is bound.
func (p *Parts) Array(items []int64) *Parts {
	p.parts = append(p.parts, part{kind: arrayPart, items: items})
	return p
}

func (p *Parts) IsEmpty() bool {
	return len(p.parts) == 0
}

func (p *Parts) Clone() *Parts {
	return &Parts{parts: append([]part(nil), p.parts...)}
}

// RenameAliases returns a copy with text tokens replaced according to renames.
func (p *Parts) RenameAliases(renames map[string]string) *Parts {
	out := p.Clone()
	for i, pt := range out.parts {
		if pt.kind != textPart {
			continue
		}
		if renamed, ok := renames[pt.text]; ok {
			out.parts[i].text = renamed
		}
	}
	return out
}

func (p *Parts) write(w *strings.Builder, args *[]any, d Dialect) {
	for _, pt := range p.parts {
		switch pt.kind {
		case textPart:
			w.WriteString(pt.text)
		case paramPart:
			w.WriteString("?")
			*args = append(*args, pt.value)
		case arrayPart:
			w.WriteString(d.ArrayFragment())
			*args = append(*args, d.ArrayParam(pt.items))
		}
	}
}

// String renders the fragment with ? markers; arrays are summarized.
func (p *Parts) String() string {
	var w strings.Builder
	for _, pt := range p.parts {
		switch pt.kind {
		case textPart:
			w.WriteString(pt.text)
		case paramPart:
			w.WriteString("?")
		case arrayPart:
			w.WriteString("[" + strconv.Itoa(len(pt.items)) + " items]")
		}
	}
	return w.String()
}
