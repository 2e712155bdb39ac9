package predicate

import (
	"sort"

	"github.com/pkg/errors"
)

type Type string

const (
	TypeString    Type = "string"
	TypeInteger   Type = "integer"
	TypeDecimal   Type = "decimal"
	TypeBool      Type = "bool"
	TypeReference Type = "reference"
)

// DefaultColumn holds the value of an attribute table unless configured otherwise.
const DefaultColumn = "value"

// Attribute describes where the values of a named item attribute are stored.
// Every attribute table has an item column; Multi attributes may hold several
// rows per item.
type Attribute struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Table  string `mapstructure:"table" yaml:"table"`
	Column string `mapstructure:"column" yaml:"column"`
	Type   Type   `mapstructure:"type" yaml:"type"`
	Multi  bool   `mapstructure:"multi" yaml:"multi"`
}

// IsInteger reports whether the values of the attribute are item ids or
// other integers.
func (a *Attribute) IsInteger() bool {
	return a.Type == TypeInteger || a.Type == TypeReference
}

type Catalog struct {
	attributes map[string]*Attribute
}

func NewCatalog(attributes ...Attribute) (*Catalog, error) {
	c := &Catalog{attributes: make(map[string]*Attribute, len(attributes))}
	for _, a := range attributes {
		if err := c.add(a); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(a Attribute) error {
	if a.Name == "" {
		return errors.New("attribute without a name")
	}
	if _, ok := c.attributes[a.Name]; ok {
		return errors.Errorf("duplicate attribute %q", a.Name)
	}
	if a.Table == "" {
		a.Table = "attr_" + a.Name
	}
	if a.Column == "" {
		a.Column = DefaultColumn
	}
	switch a.Type {
	case "":
		a.Type = TypeString
	case TypeString, TypeInteger, TypeDecimal, TypeBool, TypeReference:
	default:
		return errors.Errorf("attribute %q has unknown type %q", a.Name, a.Type)
	}
	c.attributes[a.Name] = &a
	return nil
}

func (c *Catalog) Lookup(name string) (*Attribute, bool) {
	a, ok := c.attributes[name]
	return a, ok
}

// Attributes returns the attributes sorted by name.
func (c *Catalog) Attributes() []*Attribute {
	out := make([]*Attribute, 0, len(c.attributes))
	for _, a := range c.attributes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
