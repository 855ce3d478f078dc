package segpool

import (
	"reflect"
	"sync"
)

// defaults holds one lazily built *Pool[T] per record type.
var defaults sync.Map

// Default returns the process-wide pool for T, creating it with the minimum
// capacity on first use. It is never closed.
//
// Default panics if T is not a fixed-layout type. Like every Pool, the
// returned pool is not safe for concurrent use.
func Default[T any]() *Pool[T] {
	key := reflect.TypeFor[T]()
	if v, ok := defaults.Load(key); ok {
		return v.(*Pool[T])
	}

	p, err := New[T]()
	if err != nil {
		panic(err)
	}
	v, _ := defaults.LoadOrStore(key, p)
	return v.(*Pool[T])
}
