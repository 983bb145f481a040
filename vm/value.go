package vm

import (
	"math"
	"strconv"
)

// ValueType tags the contents of a Value.
type ValueType uint8

const (
	TypeNil ValueType = iota
	TypeFalse
	TypeTrue
	TypeFixnum
	TypeSymbol
	TypeFloat
	TypeString
	TypeObject
)

var valueTypeNames = [...]string{
	TypeNil:    "nil",
	TypeFalse:  "false",
	TypeTrue:   "true",
	TypeFixnum: "fixnum",
	TypeSymbol: "symbol",
	TypeFloat:  "float",
	TypeString: "string",
	TypeObject: "object",
}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// Value is an interpreter value. Fixnums, symbols and the special constants
// are immediates; floats and strings are immediates here but become
// heap-boxed when stored in a code unit's literal pool; objects point into
// the collector's heap.
type Value struct {
	tt  ValueType
	n   uint64
	s   string
	obj *Object
}

// Pre-defined special values
var (
	Nil   = Value{tt: TypeNil}
	True  = Value{tt: TypeTrue}
	False = Value{tt: TypeFalse}
)

// FromFixnum returns an integer value.
func FromFixnum(i int64) Value {
	return Value{tt: TypeFixnum, n: uint64(i)}
}

// FromSymbol returns a symbol value for an interned id.
func FromSymbol(id uint32) Value {
	return Value{tt: TypeSymbol, n: uint64(id)}
}

// FromFloat returns a float value.
func FromFloat(f float64) Value {
	return Value{tt: TypeFloat, n: math.Float64bits(f)}
}

// FromString returns a string value.
func FromString(s string) Value {
	return Value{tt: TypeString, s: s}
}

// FromObject returns a value referencing a heap object. A nil object is Nil.
func FromObject(o *Object) Value {
	if o == nil {
		return Nil
	}
	return Value{tt: TypeObject, obj: o}
}

func (v Value) Type() ValueType { return v.tt }
func (v Value) IsNil() bool     { return v.tt == TypeNil }
func (v Value) Fixnum() int64   { return int64(v.n) }
func (v Value) Symbol() uint32  { return uint32(v.n) }
func (v Value) Float() float64  { return math.Float64frombits(v.n) }
func (v Value) Str() string     { return v.s }
func (v Value) Object() *Object { return v.obj }

// boxed reports whether a literal of this value lives on the heap.
func (v Value) boxed() bool {
	return v.tt == TypeString || v.tt == TypeFloat
}

func (v Value) String() string {
	switch v.tt {
	case TypeFixnum:
		return strconv.FormatInt(v.Fixnum(), 10)
	case TypeSymbol:
		return ":" + strconv.FormatUint(uint64(v.Symbol()), 10)
	case TypeFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case TypeString:
		return strconv.Quote(v.s)
	case TypeObject:
		return v.obj.String()
	default:
		return v.tt.String()
	}
}
