package render

import (
	"fmt"
	"math"

	"github.com/dop251/goja"
)

// toResult validates what the render callback settled with. Keys other than
// body, status and headers are ignored.
func toResult(_ *goja.Runtime, v goja.Value) (*Result, error) {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return nil, fmt.Errorf("%w: expected an object, got %s", ErrInvalidResult, describe(v))
	}

	body, ok := export(obj.Get("body")).(string)
	if !ok {
		return nil, fmt.Errorf("%w: body must be a string", ErrInvalidResult)
	}

	status, err := toStatus(obj.Get("status"))
	if err != nil {
		return nil, err
	}

	headers, err := toHeaders(obj.Get("headers"))
	if err != nil {
		return nil, err
	}
	return &Result{Body: body, Status: status, Headers: headers}, nil
}

func toStatus(v goja.Value) (int, error) {
	var status int64
	switch n := export(v).(type) {
	case int64:
		status = n
	case float64:
		if math.Trunc(n) != n || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%w: status must be an integer, got %v", ErrInvalidResult, n)
		}
		status = int64(n)
	default:
		return 0, fmt.Errorf("%w: status must be a number, got %s", ErrInvalidResult, describe(v))
	}
	if status < 100 || status > 599 {
		return 0, fmt.Errorf("%w: status %d is out of range", ErrInvalidResult, status)
	}
	return int(status), nil
}

func toHeaders(v goja.Value) (map[string]string, error) {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil || obj.ClassName() == "Array" {
		return nil, fmt.Errorf("%w: headers must be an object, got %s", ErrInvalidResult, describe(v))
	}
	keys := obj.Keys()
	headers := make(map[string]string, len(keys))
	for _, k := range keys {
		s, ok := export(obj.Get(k)).(string)
		if !ok {
			return nil, fmt.Errorf("%w: header %q must be a string", ErrInvalidResult, k)
		}
		headers[k] = s
	}
	return headers, nil
}

func describe(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	return v.ExportType().String()
}

func export(v goja.Value) any {
	if v == nil {
		return nil
	}
	return v.Export()
}
