// Package mapper implements translation between a tool's JSON "arguments"
// object and the single wire.Value a canister call expects, in either of
// the three declared styles (Empty, Positional, Record), plus the inverse
// conversion of a call's wire result back to JSON.
package mapper

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/icarus-mcp/icarus/internal/icaruserr"
	"github.com/icarus-mcp/icarus/internal/schema"
	"github.com/icarus-mcp/icarus/internal/wire"
)

// ToCallArg converts the raw JSON "arguments" object of a tools/call request
// into the single wire.Value the canister call expects, per t's declared
// ParamStyle. No canister call is attempted if this returns an error.
func ToCallArg(t *schema.Tool, argumentsJSON json.RawMessage) (wire.Value, error) {
	obj, err := decodeArgsObject(argumentsJSON)
	if err != nil {
		return wire.Value{}, err
	}

	if err := t.ValidateArgs(obj); err != nil {
		return wire.Value{}, validationSchema("arguments do not satisfy the declared schema").
			WithContext("error", err.Error())
	}

	switch t.Style.Kind {
	case schema.StyleEmpty:
		return mapEmpty(obj)
	case schema.StylePositional:
		return mapPositional(t, obj)
	case schema.StyleRecord:
		return mapRecord(t, obj)
	default:
		return wire.Value{}, invariantf("tool %q has an unrecognized param style", t.Name.String())
	}
}

// FromCallResult converts a canister call's wire result back into the JSON
// text placed in a tools/call response's content block. Values with no canonical JSON form use wire.ToJSON's
// "$type" escape hatch, so no information is silently lost.
func FromCallResult(v wire.Value) (json.RawMessage, error) {
	j, err := wire.ToJSON(v)
	if err != nil {
		return nil, icaruserr.Wrap(icaruserr.KindInternal, icaruserr.TagInternalDecode, icaruserr.SeverityFatal, "result has no JSON representation", err)
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, icaruserr.Wrap(icaruserr.KindInternal, icaruserr.TagInternalDecode, icaruserr.SeverityFatal, "failed to marshal result", err)
	}
	return raw, nil
}

func decodeArgsObject(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, validationSchema("arguments must be a JSON object").WithContext("error", err.Error())
	}
	return obj, nil
}

func mapEmpty(obj map[string]any) (wire.Value, error) {
	if len(obj) != 0 {
		return wire.Value{}, validationSchema("tool takes no arguments").WithContext("extra_fields", keysOf(obj))
	}
	return wire.Null(), nil
}

func mapPositional(t *schema.Tool, obj map[string]any) (wire.Value, error) {
	style := t.Style
	if extra := extraKeys(obj, style.Order); len(extra) > 0 {
		return wire.Value{}, validationSchema("unexpected argument").WithContext("extra_fields", extra)
	}

	values := make([]wire.Value, len(style.Order))
	for i, name := range style.Order {
		param, ok := t.Params.ByName(name)
		if !ok {
			return wire.Value{}, invariantf("tool %q declares positional order name %q with no matching parameter", t.Name.String(), name)
		}
		raw, present := obj[name]
		if !present {
			if param.Required {
				return wire.Value{}, validationSchema("missing required argument").WithContext("field", name)
			}
			values[i] = wire.OptNone()
			continue
		}
		v, err := convert(param, raw)
		if err != nil {
			return wire.Value{}, err
		}
		values[i] = v
	}
	return wire.Vec(values), nil
}

func mapRecord(t *schema.Tool, obj map[string]any) (wire.Value, error) {
	param, ok := t.Params.ByName(t.Style.RecordField)
	if !ok {
		return wire.Value{}, invariantf("tool %q declares record field %q with no matching parameter", t.Name.String(), t.Style.RecordField)
	}
	v, err := convertObject(param, obj)
	if err != nil {
		return wire.Value{}, err
	}
	return v, nil
}

// convert dispatches a raw JSON value to its declared wire type,
// enforcing schema constraints after type conversion.
func convert(p schema.ToolParameter, raw any) (wire.Value, error) {
	if raw == nil {
		return convertNull(p)
	}
	switch p.Type {
	case schema.TypeString:
		return convertString(p, raw)
	case schema.TypeInteger:
		return convertInteger(p, raw)
	case schema.TypeNumber:
		return convertNumber(p, raw)
	case schema.TypeBoolean:
		return convertBoolean(p, raw)
	case schema.TypeArray:
		return convertArray(p, raw)
	case schema.TypeObject:
		obj, ok := raw.(map[string]any)
		if !ok {
			return wire.Value{}, typeMismatch(p.Name, "object", raw)
		}
		return convertObject(p, obj)
	case schema.TypeNull:
		return convertNull(p)
	default:
		return wire.Value{}, invariantf("parameter %q has an unrecognized declared type %q", p.Name, p.Type)
	}
}

func convertNull(p schema.ToolParameter) (wire.Value, error) {
	if p.WireType == "opt" {
		return wire.OptNone(), nil
	}
	return wire.Null(), nil
}

func convertString(p schema.ToolParameter, raw any) (wire.Value, error) {
	s, ok := raw.(string)
	if !ok {
		return wire.Value{}, typeMismatch(p.Name, "string", raw)
	}
	if p.WireType == "variant" {
		if len(p.VariantTags) > 0 && !containsString(p.VariantTags, s) {
			return wire.Value{}, validationSchema("value is not one of the declared variant tags").
				WithContext("field", p.Name).WithContext("got", s).WithContext("allowed", p.VariantTags)
		}
		return wire.Variant(s, wire.Null()), nil
	}
	if err := checkStringConstraints(p, s); err != nil {
		return wire.Value{}, err
	}
	return wire.Text(s), nil
}

func checkStringConstraints(p schema.ToolParameter, s string) error {
	length := len([]rune(s))
	if p.MinLength != nil && length < *p.MinLength {
		return validationRange("string shorter than minLength").WithContext("field", p.Name).WithContext("minLength", *p.MinLength)
	}
	if p.MaxLength != nil && length > *p.MaxLength {
		return validationRange("string longer than maxLength").WithContext("field", p.Name).WithContext("maxLength", *p.MaxLength)
	}
	if p.Pattern != nil {
		ok, err := matchPattern(*p.Pattern, s)
		if err != nil {
			return validationSchema("declared pattern failed to compile").WithContext("field", p.Name).WithContext("error", err.Error())
		}
		if !ok {
			return validationRange("string does not match declared pattern").WithContext("field", p.Name).WithContext("pattern", *p.Pattern)
		}
	}
	return nil
}

func convertInteger(p schema.ToolParameter, raw any) (wire.Value, error) {
	f, ok := raw.(float64)
	if !ok {
		return wire.Value{}, typeMismatch(p.Name, "integer", raw)
	}
	if f != math.Trunc(f) {
		return wire.Value{}, validationSchema("expected an integer, got a non-integral number").WithContext("field", p.Name)
	}
	if err := checkNumericRange(p, f); err != nil {
		return wire.Value{}, err
	}
	if p.WireType == "nat" {
		if f < 0 {
			return wire.Value{}, validationRange("nat parameter rejects negative values").WithContext("field", p.Name)
		}
		return wire.Nat(uint64(f)), nil
	}
	return wire.Int(int64(f)), nil
}

func convertNumber(p schema.ToolParameter, raw any) (wire.Value, error) {
	f, ok := raw.(float64)
	if !ok {
		return wire.Value{}, typeMismatch(p.Name, "number", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return wire.Value{}, validationSchema("non-finite numbers are not permitted").WithContext("field", p.Name)
	}
	if err := checkNumericRange(p, f); err != nil {
		return wire.Value{}, err
	}
	return wire.Float(f), nil
}

func checkNumericRange(p schema.ToolParameter, f float64) error {
	if p.Minimum != nil && f < *p.Minimum {
		return validationRange("value below declared minimum").WithContext("field", p.Name).WithContext("minimum", *p.Minimum)
	}
	if p.Maximum != nil && f > *p.Maximum {
		return validationRange("value above declared maximum").WithContext("field", p.Name).WithContext("maximum", *p.Maximum)
	}
	return nil
}

func convertBoolean(p schema.ToolParameter, raw any) (wire.Value, error) {
	b, ok := raw.(bool)
	if !ok {
		return wire.Value{}, typeMismatch(p.Name, "boolean", raw)
	}
	return wire.Bool(b), nil
}

func convertArray(p schema.ToolParameter, raw any) (wire.Value, error) {
	arr, ok := raw.([]any)
	if !ok {
		return wire.Value{}, typeMismatch(p.Name, "array", raw)
	}
	if p.Items == nil {
		return wire.Value{}, invariantf("array parameter %q declares no item schema", p.Name)
	}
	items := make([]wire.Value, len(arr))
	for i, elem := range arr {
		v, err := convert(*p.Items, elem)
		if err != nil {
			return wire.Value{}, err
		}
		items[i] = v
	}
	return wire.Vec(items), nil
}

func convertObject(p schema.ToolParameter, obj map[string]any) (wire.Value, error) {
	if extra := extraKeys(obj, objectFieldNames(p)); len(extra) > 0 {
		return wire.Value{}, validationSchema("unexpected field").WithContext("field", p.Name).WithContext("extra_fields", extra)
	}

	required := make(map[string]struct{}, len(p.RequiredProps))
	for _, r := range p.RequiredProps {
		required[r] = struct{}{}
	}

	keys := make([]string, len(p.Properties))
	vals := make([]wire.Value, len(p.Properties))
	n := 0
	for _, sub := range p.Properties {
		raw, present := obj[sub.Name]
		if !present {
			if _, isRequired := required[sub.Name]; isRequired || sub.Required {
				return wire.Value{}, validationSchema("missing required field").WithContext("field", sub.Name)
			}
			continue
		}
		v, err := convert(sub, raw)
		if err != nil {
			return wire.Value{}, err
		}
		keys[n] = sub.Name
		vals[n] = v
		n++
	}
	rec := wire.NewRecord(keys[:n], vals[:n])
	if p.WireType == "opt" {
		return wire.Opt(rec), nil
	}
	return rec, nil
}

func objectFieldNames(p schema.ToolParameter) []string {
	out := make([]string, len(p.Properties))
	for i, sub := range p.Properties {
		out[i] = sub.Name
	}
	return out
}

func extraKeys(obj map[string]any, allowed []string) []string {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		allowedSet[a] = struct{}{}
	}
	var extra []string
	for k := range obj {
		if _, ok := allowedSet[k]; !ok {
			extra = append(extra, k)
		}
	}
	return extra
}

func keysOf(obj map[string]any) []string {
	out := make([]string, 0, len(obj))
	for k := range obj {
		out = append(out, k)
	}
	return out
}

func containsString(hay []string, needle string) bool {
	for _, h := range hay {
		if h == needle {
			return true
		}
	}
	return false
}

func typeMismatch(field, expected string, got any) *icaruserr.Error {
	return validationSchema("argument has the wrong type").
		WithContext("field", field).WithContext("expected", expected).WithContext("got", jsonTypeName(got))
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func validationSchema(msg string) *icaruserr.Error {
	return icaruserr.New(icaruserr.KindValidation, icaruserr.TagValidationSchema, icaruserr.SeverityUser, msg)
}

func validationRange(msg string) *icaruserr.Error {
	return icaruserr.New(icaruserr.KindValidation, icaruserr.TagValidationRange, icaruserr.SeverityUser, msg)
}

func invariantf(format string, args ...any) *icaruserr.Error {
	return icaruserr.New(icaruserr.KindInternal, icaruserr.TagInternalInvariant, icaruserr.SeverityFatal, fmt.Sprintf(format, args...))
}
