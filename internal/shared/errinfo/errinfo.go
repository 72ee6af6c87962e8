// Package errinfo normalizes arbitrary thrown or returned values into a flat
// shape suitable for structured logs.
package errinfo

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Info is the normalized form of an error value. Error is empty only when the
// value itself was nil.
type Info struct {
	Error string
	Stack string
	Props map[string]any
}

// Stacker is implemented by errors that carry their own stack trace
type Stacker interface {
	Stack() string
}

// Propser is implemented by errors exposing extra primitive fields
type Propser interface {
	Props() map[string]any
}

var excludedProps = map[string]bool{"message": true, "stack": true, "name": true}

// Extract normalizes v. A response.error string wins; otherwise nested .error
// values are unwrapped until a value is its own .error. The message is then
// the value's string conversion, falling back to .message, .name and finally
// "Unknown". JavaScript values must be extracted on their runtime's goroutine.
func Extract(v any) Info {
	if v == nil {
		return Info{}
	}
	if ex, ok := v.(*goja.Exception); ok {
		info := Extract(ex.Value())
		if info.Stack == "" {
			info.Stack = ex.String()
		}
		return info
	}

	return Info{
		Error: message(unwrap(v)),
		Stack: stackOf(v),
		Props: propsOf(v),
	}
}

// Fields renders the info as zap fields
func (i Info) Fields() []zap.Field {
	fields := []zap.Field{zap.String("error", i.Error)}
	if i.Stack != "" {
		fields = append(fields, zap.String("stack", i.Stack))
	}
	if len(i.Props) > 0 {
		fields = append(fields, zap.Any("props", i.Props))
	}
	return fields
}

// fielder gives uniform keyed access to maps and JS objects
type fielder interface {
	get(key string) (any, bool)
	keys() []string
}

type mapFields map[string]any

func (m mapFields) get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func (m mapFields) keys() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type objectFields struct{ obj *goja.Object }

func (o objectFields) get(key string) (any, bool) {
	v := o.obj.Get(key)
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	if obj, ok := v.(*goja.Object); ok {
		return obj, true
	}
	return v.Export(), true
}

func (o objectFields) keys() []string {
	return o.obj.Keys()
}

func fieldsOf(v any) (fielder, bool) {
	switch t := v.(type) {
	case map[string]any:
		return mapFields(t), true
	case *goja.Object:
		return objectFields{obj: t}, true
	case goja.Value:
		if obj, ok := t.(*goja.Object); ok {
			return objectFields{obj: obj}, true
		}
	}
	return nil, false
}

func unwrap(v any) any {
	f, ok := fieldsOf(v)
	if !ok {
		if gv, isValue := v.(goja.Value); isValue {
			return gv.Export()
		}
		return v
	}
	if resp, ok := f.get("response"); ok {
		if rf, ok := fieldsOf(resp); ok {
			if s, ok := rf.get("error"); ok {
				if str, ok := s.(string); ok {
					return str
				}
			}
		}
	}
	if inner, ok := f.get("error"); ok && inner != nil {
		if same(inner, v) {
			return v
		}
		return unwrap(inner)
	}
	return v
}

func same(a, b any) bool {
	if oa, ok := a.(*goja.Object); ok {
		ob, ok := b.(*goja.Object)
		return ok && oa == ob
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() == reflect.Map && rb.Kind() == reflect.Map {
		return ra.Pointer() == rb.Pointer()
	}
	return false
}

func message(v any) string {
	if obj, ok := v.(*goja.Object); ok {
		if s := objectString(obj); s != "" {
			return s
		}
		return fieldMessage(objectFields{obj: obj})
	}
	switch t := v.(type) {
	case nil:
		return "Unknown"
	case string:
		return t
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return fmt.Sprint(t)
	}
	if f, ok := fieldsOf(v); ok {
		return fieldMessage(f)
	}
	return "Unknown"
}

// objectString runs the object's own toString, so thrown errors keep their
// type ("TypeError: boom"). It returns "" when toString is missing, throws,
// yields a non-string or the generic "[object Object]".
func objectString(obj *goja.Object) (s string) {
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()
	toString, ok := goja.AssertFunction(obj.Get("toString"))
	if !ok {
		return ""
	}
	v, err := toString(obj)
	if err != nil || v == nil {
		return ""
	}
	str, ok := v.Export().(string)
	if !ok || str == "[object Object]" {
		return ""
	}
	return str
}

func fieldMessage(f fielder) string {
	for _, key := range []string{"message", "name"} {
		if s, ok := f.get(key); ok {
			if str, ok := s.(string); ok && str != "" {
				return str
			}
		}
	}
	return "Unknown"
}

func stackOf(v any) string {
	var st Stacker
	if err, ok := v.(error); ok && errors.As(err, &st) {
		return st.Stack()
	}
	if f, ok := fieldsOf(v); ok {
		if s, ok := f.get("stack"); ok {
			if str, ok := s.(string); ok {
				return str
			}
		}
	}
	return ""
}

func propsOf(v any) map[string]any {
	props := make(map[string]any)
	if err, ok := v.(error); ok {
		var p Propser
		if errors.As(err, &p) {
			for k, val := range p.Props() {
				if !excludedProps[k] && isPrimitive(val) {
					props[k] = val
				}
			}
		}
	}
	if f, ok := fieldsOf(v); ok {
		for _, k := range f.keys() {
			if excludedProps[k] {
				continue
			}
			if val, ok := f.get(k); ok && isPrimitive(val) {
				props[k] = val
			}
		}
	}
	if len(props) == 0 {
		return nil
	}
	return props
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, string, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return true
	}
	return false
}
