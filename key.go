package jsbridge

import (
	"strconv"

	"github.com/dop251/goja"
)

type keyKind uint8

const (
	keyName keyKind = iota
	keyIndex
	keySymbol
)

// PropertyKey names an object property: a string, an array index or a symbol.
type PropertyKey struct {
	kind  keyKind
	name  string
	index int64
	sym   *goja.Symbol
}

// NameKey returns a string property key.
func NameKey(name string) PropertyKey {
	return PropertyKey{kind: keyName, name: name}
}

// IndexKey returns a numeric property key.
func IndexKey(index int64) PropertyKey {
	return PropertyKey{kind: keyIndex, index: index}
}

// SymbolKey returns a symbol property key.
func SymbolKey(s Symbol) PropertyKey {
	sym, _ := s.v.ref.(*goja.Symbol)
	return PropertyKey{kind: keySymbol, sym: sym}
}

// IsSymbol reports whether the key is a symbol.
func (k PropertyKey) IsSymbol() bool {
	return k.kind == keySymbol
}

// String returns the property name. Symbol keys render as their description.
func (k PropertyKey) String() string {
	switch k.kind {
	case keyIndex:
		return strconv.FormatInt(k.index, 10)
	case keySymbol:
		if k.sym == nil {
			return "Symbol()"
		}
		return k.sym.String()
	}
	return k.name
}

func (k PropertyKey) get(obj *goja.Object) goja.Value {
	if k.kind == keySymbol {
		return obj.GetSymbol(k.sym)
	}
	return obj.Get(k.String())
}

func (k PropertyKey) set(obj *goja.Object, v goja.Value) error {
	if k.kind == keySymbol {
		return obj.SetSymbol(k.sym, v)
	}
	return obj.Set(k.String(), v)
}

func (k PropertyKey) delete(obj *goja.Object) error {
	if k.kind == keySymbol {
		return obj.DeleteSymbol(k.sym)
	}
	return obj.Delete(k.String())
}
