package masters

import (
	"reflect"
	"strings"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// OmitAbsentFields converts a record struct into a store payload keyed by
// its firestore tags. Nil pointers, slices and maps are dropped so that a
// merge write leaves the stored value alone; empty strings are kept.
func OmitAbsentFields(record any) map[string]any {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return map[string]any{}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return map[string]any{}
	}
	return omitStruct(v)
}

func omitStruct(v reflect.Value) map[string]any {
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := fieldName(field)
		if name == "" {
			continue
		}
		value, ok := present(v.Field(i))
		if !ok {
			continue
		}
		out[name] = value
	}
	return out
}

func fieldName(field reflect.StructField) string {
	tag, ok := field.Tag.Lookup("firestore")
	if !ok {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

func present(v reflect.Value) (any, bool) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, false
		}
		return present(v.Elem())
	case reflect.Slice, reflect.Map:
		if v.IsNil() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Struct:
		if v.Type() == timeType {
			return v.Interface(), true
		}
		return omitStruct(v), true
	default:
		return v.Interface(), true
	}
}
