package wire

import (
	"fmt"
	"math"
	"strconv"
)

// safeIntMax is the largest integer magnitude a JSON number can carry
// without loss of precision when decoded as a float64 (2^53 - 1).
const safeIntMax = 1<<53 - 1

// typeTag names the "$type" wrapper discriminants used for values that have
// no canonical JSON representation.
const (
	typeTagNat     = "nat"
	typeTagInt     = "int"
	typeTagVariant = "variant"
)

// ToJSON converts a wire Value into a JSON-compatible Go value
// (map[string]any, []any, string, float64, bool, nil), wrapping values that
// have no canonical JSON form in a {"$type":...} envelope so no information
// is silently lost (a Nat beyond the JSON safe-integer range, or a
// Variant, which has no canonical JSON shape at all).
func ToJSON(v Value) (any, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.boolVal, nil
	case KindNat:
		if v.natVal <= safeIntMax {
			return float64(v.natVal), nil
		}
		return map[string]any{"$type": typeTagNat, "value": strconv.FormatUint(v.natVal, 10)}, nil
	case KindInt:
		if v.intVal <= safeIntMax && v.intVal >= -safeIntMax {
			return float64(v.intVal), nil
		}
		return map[string]any{"$type": typeTagInt, "value": strconv.FormatInt(v.intVal, 10)}, nil
	case KindFloat:
		if math.IsNaN(v.floatVal) || math.IsInf(v.floatVal, 0) {
			return nil, fmt.Errorf("wire: non-finite float has no JSON representation")
		}
		return v.floatVal, nil
	case KindText:
		return v.textVal, nil
	case KindVec:
		out := make([]any, len(v.vecVal))
		for i, item := range v.vecVal {
			j, err := ToJSON(item)
			if err != nil {
				return nil, err
			}
			out[i] = j
		}
		return out, nil
	case KindRecord:
		out := make(map[string]any, len(v.recordKeys))
		for i, k := range v.recordKeys {
			j, err := ToJSON(v.recordVals[i])
			if err != nil {
				return nil, err
			}
			out[k] = j
		}
		return out, nil
	case KindOpt:
		if v.optVal == nil {
			return nil, nil
		}
		return ToJSON(*v.optVal)
	case KindVariant:
		payload := any(nil)
		if v.variantPayload != nil {
			j, err := ToJSON(*v.variantPayload)
			if err != nil {
				return nil, err
			}
			payload = j
		}
		return map[string]any{"$type": typeTagVariant, "tag": v.variantTag, "payload": payload}, nil
	default:
		return nil, fmt.Errorf("wire: unknown kind %v", v.kind)
	}
}

// FromJSON infers a Value from a generic JSON-decoded Go value, recognizing
// the "$type" escape-hatch wrapper. Without a declared schema, plain JSON
// numbers without a fractional part decode as Int and numbers with one
// decode as Float; callers that know the declared wire type (the parameter
// mapper) should prefer the schema-aware conversion in package mapper
// instead of relying on this inference.
func FromJSON(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case string:
		return Text(x), nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return Int(int64(x)), nil
		}
		return Float(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, elem := range x {
			v, err := FromJSON(elem)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Vec(items), nil
	case map[string]any:
		if tag, ok := x["$type"]; ok {
			return fromTypeTag(tag, x)
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		idx := sortedIndices(keys)
		sortedKeys := make([]string, len(keys))
		vals := make([]Value, len(keys))
		for i, j := range idx {
			sortedKeys[i] = keys[j]
			v, err := FromJSON(x[keys[j]])
			if err != nil {
				return Value{}, err
			}
			vals[i] = v
		}
		return NewRecord(sortedKeys, vals), nil
	default:
		return Value{}, fmt.Errorf("wire: cannot infer wire type from %T", raw)
	}
}

func fromTypeTag(tag any, obj map[string]any) (Value, error) {
	name, ok := tag.(string)
	if !ok {
		return Value{}, fmt.Errorf("wire: $type must be a string")
	}
	switch name {
	case typeTagNat:
		s, ok := obj["value"].(string)
		if !ok {
			return Value{}, fmt.Errorf("wire: $type nat missing string value")
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("wire: $type nat invalid: %w", err)
		}
		return Nat(n), nil
	case typeTagInt:
		s, ok := obj["value"].(string)
		if !ok {
			return Value{}, fmt.Errorf("wire: $type int missing string value")
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("wire: $type int invalid: %w", err)
		}
		return Int(n), nil
	case typeTagVariant:
		tagName, ok := obj["tag"].(string)
		if !ok {
			return Value{}, fmt.Errorf("wire: $type variant missing tag")
		}
		payload, err := FromJSON(obj["payload"])
		if err != nil {
			return Value{}, err
		}
		return Variant(tagName, payload), nil
	default:
		return Value{}, fmt.Errorf("wire: unknown $type %q", name)
	}
}
