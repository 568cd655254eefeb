package expr

import (
	"bytes"
	"encoding/json"
	"math"
	"math/big"
	"sort"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/zclconf/go-cty/cty"
)

// stateValue copies the run data into an object value. Values are converted
// by kind so the expression never sees host objects, only data. Keys holding
// values with no data representation are left out.
func stateValue(data map[string]any) (cty.Value, error) {
	if len(data) == 0 {
		return cty.EmptyObjectVal, nil
	}
	attrs := make(map[string]cty.Value, len(data))
	for k, v := range data {
		cv, err := ToValue(v)
		if err != nil {
			log.Debugf("state key %q hidden from expressions: %v", k, err)
			continue
		}
		attrs[k] = cv
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal, nil
	}
	return cty.ObjectVal(attrs), nil
}

// ToValue converts a native Go value into a cty value. Structs and other
// composite types go through their JSON representation.
func ToValue(v any) (cty.Value, error) {
	switch tv := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return tv, nil
	case bool:
		return cty.BoolVal(tv), nil
	case string:
		return cty.StringVal(tv), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return cty.NumberIntVal(cast.ToInt64(tv)), nil
	case uint64:
		return cty.NumberUIntVal(tv), nil
	case float32, float64:
		f := cast.ToFloat64(tv)
		if math.IsNaN(f) {
			return cty.NilVal, errors.NotValidf("NaN")
		}
		return cty.NumberFloatVal(f), nil
	case json.Number:
		f, ok := new(big.Float).SetString(tv.String())
		if !ok {
			return cty.NilVal, errors.NotValidf("number %q", tv.String())
		}
		return cty.NumberVal(f), nil
	case []any:
		return tupleValue(tv)
	case map[string]any:
		return objectValue(tv)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return cty.NilVal, errors.Annotatef(err, "unsupported value of type %T", v)
	}
	var native any
	decoder := json.NewDecoder(bytes.NewReader(b))
	decoder.UseNumber()
	if err := decoder.Decode(&native); err != nil {
		return cty.NilVal, errors.Trace(err)
	}
	return ToValue(native)
}

func tupleValue(items []any) (cty.Value, error) {
	if len(items) == 0 {
		return cty.EmptyTupleVal, nil
	}
	vals := make([]cty.Value, 0, len(items))
	for i, item := range items {
		cv, err := ToValue(item)
		if err != nil {
			return cty.NilVal, errors.Annotatef(err, "index %d", i)
		}
		vals = append(vals, cv)
	}
	return cty.TupleVal(vals), nil
}

func objectValue(m map[string]any) (cty.Value, error) {
	if len(m) == 0 {
		return cty.EmptyObjectVal, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make(map[string]cty.Value, len(m))
	for _, k := range keys {
		cv, err := ToValue(m[k])
		if err != nil {
			return cty.NilVal, errors.Annotatef(err, "key %q", k)
		}
		attrs[k] = cv
	}
	return cty.ObjectVal(attrs), nil
}

// ToNative converts a cty value back into plain Go values: float64 numbers,
// []any tuples and lists, map[string]any objects and maps.
func ToNative(v cty.Value) any {
	if v.IsNull() || !v.IsKnown() {
		return nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString()
	case ty == cty.Bool:
		return v.True()
	case ty == cty.Number:
		if bf := v.AsBigFloat(); bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i
			}
		}
		f, _ := v.AsBigFloat().Float64()
		return f
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			out = append(out, ToNative(elem))
		}
		return out
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			out[key.AsString()] = ToNative(elem)
		}
		return out
	}
	return nil
}
