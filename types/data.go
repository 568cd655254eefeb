package types

import (
	"encoding/json"
	"reflect"

	"github.com/juju/errors"
	"github.com/spf13/cast"

	"github.com/warriorguo/graphflow/utils"
)

type Data map[string]any

func (d *Data) Get(key string) (any, bool) {
	v, exists := (*d)[key]
	return v, exists
}

// GetDefault mirrors the `state.get(key, default)` accessor of the
// condition language.
func (d *Data) GetDefault(key string, def any) any {
	if v, exists := d.Get(key); exists {
		return v
	}
	return def
}

func (d *Data) GetString(key string) (string, bool) {
	v, exists := d.Get(key)
	return cast.ToString(v), exists
}

func (d *Data) GetInt(key string) (int, bool) {
	v, exists := d.Get(key)
	return cast.ToInt(v), exists
}

func (d *Data) GetBool(key string) (bool, bool) {
	v, exists := d.Get(key)
	return cast.ToBool(v), exists
}

func (d *Data) GetFloat64(key string) (float64, bool) {
	v, exists := d.Get(key)
	return cast.ToFloat64(v), exists
}

func (d *Data) GetSlice(key string) ([]any, bool) {
	v, exists := d.Get(key)
	return cast.ToSlice(v), exists
}

func (d *Data) GetStringMap(key string) (map[string]any, bool) {
	v, exists := d.Get(key)
	return cast.ToStringMap(v), exists
}

func (d *Data) GetStruct(key string, s any) error {
	v, exists := d.Get(key)
	if !exists {
		return errors.NotFoundf("key %s", key)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Annotate(err, "marshal failed")
	}
	return json.Unmarshal(b, s)
}

func (d *Data) Set(key string, value any) {
	if *d == nil {
		*d = Data{}
	}
	(*d)[key] = value
}

// Merge copies every entry of m into d, overwriting on key collision.
func (d *Data) Merge(m map[string]any) {
	for k, v := range m {
		d.Set(k, v)
	}
}

// Clone returns a shallow copy of d; values are shared.
func (d Data) Clone() Data {
	return utils.CloneMap(d)
}

// AsMapping reports whether v is a mapping with string keys and returns it
// as a map[string]any. Tool results that are mappings merge into the run
// data, everything else is stored as a scalar.
func AsMapping(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case nil:
		return nil, false
	case Data:
		return m, true
	case map[string]any:
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}
