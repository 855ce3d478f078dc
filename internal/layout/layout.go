// Package layout validates that a record type has a fixed, pointer-free
// memory layout, so segment storage can be addressed, zeroed and copied as
// raw bytes.
package layout

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrIndirection is returned when a type contains a pointer or another
// reference-carrying kind.
var ErrIndirection = errors.New("layout: type contains indirections")

// Info describes the memory layout of a validated record type.
type Info struct {
	Type  reflect.Type
	Size  uintptr
	Align uintptr
}

// Of validates T and returns its layout.
func Of[T any]() (Info, error) {
	t := reflect.TypeFor[T]()
	if err := Check(t); err != nil {
		return Info{}, err
	}
	return Info{Type: t, Size: t.Size(), Align: uintptr(t.Align())}, nil
}

// Check walks t and fails on the first field whose kind is not plain data.
func Check(t reflect.Type) error {
	return check(t, t.String())
}

func check(t reflect.Type, path string) error {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return nil
	case reflect.Array:
		return check(t.Elem(), path+"[]")
	case reflect.Struct:
		for i := range t.NumField() {
			f := t.Field(i)
			if err := check(f.Type, path+"."+f.Name); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s has kind %s", ErrIndirection, path, t.Kind())
	}
}
