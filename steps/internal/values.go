package internal

import "reflect"

// Spread turns forwarded arguments into a collection.
// A single slice argument is expanded into its elements, any other shape is used as is.
func Spread(args []interface{}) []interface{} {
	if len(args) != 1 {
		return append([]interface{}(nil), args...)
	}
	if vals, ok := args[0].([]interface{}); ok {
		return append([]interface{}(nil), vals...)
	}
	rv := reflect.ValueOf(args[0])
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []interface{}{args[0]}
	}
	vals := make([]interface{}, rv.Len())
	for i := range vals {
		vals[i] = rv.Index(i).Interface()
	}
	return vals
}

// Collapse turns the values passed to next or join into a single result
func Collapse(vals []interface{}) interface{} {
	switch len(vals) {
	case 0:
		return nil
	case 1:
		return vals[0]
	default:
		return append([]interface{}(nil), vals...)
	}
}
