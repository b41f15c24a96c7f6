// Package wire implements WireValue, the tagged union spanning the subset
// of the Candid-style wire protocol Icarus speaks, and its lossless
// conversion to and from JSON.
package wire

import "fmt"

// Kind tags the variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNat
	KindInt
	KindFloat
	KindText
	KindVec
	KindRecord
	KindOpt
	KindVariant
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNat:
		return "nat"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindVec:
		return "vec"
	case KindRecord:
		return "record"
	case KindOpt:
		return "opt"
	case KindVariant:
		return "variant"
	default:
		return "unknown"
	}
}

// Value is an immutable WireValue. Exactly one of the typed fields is
// meaningful, selected by Kind. Record fields preserve insertion order in
// recordKeys/recordVals parallel slices; ToJSON returns records as a map,
// which encoding/json serializes with keys in lexicographic order.
type Value struct {
	kind Kind

	boolVal  bool
	natVal   uint64
	intVal   int64
	floatVal float64
	textVal  string

	vecVal []Value

	recordKeys []string
	recordVals []Value

	optVal *Value

	variantTag     string
	variantPayload *Value
}

func Null() Value             { return Value{kind: KindNull} }
func Bool(b bool) Value       { return Value{kind: KindBool, boolVal: b} }
func Nat(n uint64) Value      { return Value{kind: KindNat, natVal: n} }
func Int(i int64) Value       { return Value{kind: KindInt, intVal: i} }
func Float(f float64) Value   { return Value{kind: KindFloat, floatVal: f} }
func Text(s string) Value     { return Value{kind: KindText, textVal: s} }
func Vec(items []Value) Value { return Value{kind: KindVec, vecVal: items} }

// Opt wraps v as a present optional value. OptNone returns the absent form.
func Opt(v Value) Value { cp := v; return Value{kind: KindOpt, optVal: &cp} }
func OptNone() Value    { return Value{kind: KindOpt, optVal: nil} }

func Variant(tag string, payload Value) Value {
	cp := payload
	return Value{kind: KindVariant, variantTag: tag, variantPayload: &cp}
}

// NewRecord builds a Record value preserving the given insertion order.
// keys and vals must be the same length; duplicate keys are not permitted
// by callers (the schema/mapper layer enforces uniqueness upstream).
func NewRecord(keys []string, vals []Value) Value {
	return Value{kind: KindRecord, recordKeys: append([]string(nil), keys...), recordVals: append([]Value(nil), vals...)}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolVal, true
}

func (v Value) AsNat() (uint64, bool) {
	if v.kind != KindNat {
		return 0, false
	}
	return v.natVal, true
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.intVal, true
}

func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.floatVal, true
}

func (v Value) AsText() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.textVal, true
}

func (v Value) AsVec() ([]Value, bool) {
	if v.kind != KindVec {
		return nil, false
	}
	return v.vecVal, true
}

// RecordFields returns the record's keys and values in insertion order.
func (v Value) RecordFields() ([]string, []Value, bool) {
	if v.kind != KindRecord {
		return nil, nil, false
	}
	return v.recordKeys, v.recordVals, true
}

// RecordGet returns the value for key within a Record, if present.
func (v Value) RecordGet(key string) (Value, bool) {
	if v.kind != KindRecord {
		return Value{}, false
	}
	for i, k := range v.recordKeys {
		if k == key {
			return v.recordVals[i], true
		}
	}
	return Value{}, false
}

func (v Value) AsOpt() (*Value, bool) {
	if v.kind != KindOpt {
		return nil, false
	}
	return v.optVal, true
}

func (v Value) AsVariant() (string, Value, bool) {
	if v.kind != KindVariant {
		return "", Value{}, false
	}
	if v.variantPayload == nil {
		return v.variantTag, Value{}, true
	}
	return v.variantTag, *v.variantPayload, true
}

// sortedIndices returns index order for a lexicographic walk of keys, used
// by FromJSON to build records in deterministic field order.
func sortedIndices(keys []string) []int {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	// simple insertion sort: record lists are small (typical tool arity <= 4)
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && keys[idx[j-1]] > keys[idx[j]]; j-- {
			idx[j-1], idx[j] = idx[j], idx[j-1]
		}
	}
	return idx
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.boolVal)
	case KindNat:
		return fmt.Sprintf("%d", v.natVal)
	case KindInt:
		return fmt.Sprintf("%d", v.intVal)
	case KindFloat:
		return fmt.Sprintf("%g", v.floatVal)
	case KindText:
		return v.textVal
	default:
		return v.kind.String()
	}
}
