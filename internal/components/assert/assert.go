package assert

import (
	"fmt"
	"reflect"
)

// NotNil panics when value is nil, including typed nil pointers, maps,
// slices, funcs and channels hidden behind an interface.
func NotNil(value any) {
	if value == nil {
		panic("expected value to be not nil")
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			panic("expected value to be not nil")
		}
	}
}

func NotEmptyStr(str string) {
	if str == "" {
		panic("expected string to be non-empty")
	}
}

func Positive(n int) {
	if n <= 0 {
		panic(fmt.Sprintf("expected positive number, got %d", n))
	}
}
