package streamidx

import (
	"fmt"
	"reflect"

	"github.com/calvinalkan/streamidx/pkg/durastore"
)

// Persistable is implemented by HashIndex, ValueIndex, and anything else
// that can flush its dirty state to a durable store.
type Persistable interface {
	Persist() error
}

// Checkpoint walks the exported fields of agg (a pointer to a struct
// composed of HashIndex/ValueIndex fields), persists each one that
// implements Persistable, and then checkpoints the store, returning the
// new checkpoint directory.
//
// This is the Go equivalent of the original's derive-macro-generated
// checkpoint method: Go has no macros, so the field walk happens at
// call time via reflection instead of at compile time via code
// generation. agg must be a non-nil pointer to a struct.
func Checkpoint(store *durastore.Store, agg any) (string, error) {
	if store == nil {
		return "", fmt.Errorf("%w: store is nil", ErrInvalidOption)
	}

	v := reflect.ValueOf(agg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return "", fmt.Errorf("%w: Checkpoint requires a non-nil pointer to a struct, got %s", ErrInvalidOption, v.Kind())
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return "", fmt.Errorf("%w: Checkpoint requires a pointer to a struct, got pointer to %s", ErrInvalidOption, v.Kind())
	}

	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).PkgPath != "" {
			continue // unexported field
		}

		p, ok := asPersistable(v.Field(i))
		if !ok {
			continue
		}

		if err := p.Persist(); err != nil {
			return "", fmt.Errorf("streamidx: persist field %q: %w", t.Field(i).Name, err)
		}
	}

	return store.Checkpoint()
}

func asPersistable(field reflect.Value) (Persistable, bool) {
	if field.Kind() == reflect.Ptr && field.IsNil() {
		return nil, false
	}

	if p, ok := field.Interface().(Persistable); ok {
		return p, true
	}

	return nil, false
}
