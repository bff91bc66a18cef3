// Package classify sorts arbitrary Go values into the shapes a document can
// hold: scalars, sequences, mappings and shared containers.
//
// Classify is a pure function. Anything it cannot place is rejected with an
// *Error rather than coerced.
package classify

import (
	"fmt"
	"reflect"

	"github.com/roach88/ydoc/internal/engine"
	"github.com/roach88/ydoc/internal/ir"
)

// MaxDepth bounds how deeply sequences and mappings may nest.
const MaxDepth = 256

// Classified is the closed set of value shapes.
// Only Scalar, Sequence, Mapping and SharedContainer implement it.
type Classified interface {
	classified() // Sealed
}

// Scalar is an engine-native atomic value: null, bool, number, string or bytes.
type Scalar struct {
	Value ir.IRValue
}

// Sequence is an ordered list of classified values.
type Sequence []Classified

// Mapping associates string keys with classified values.
type Mapping map[string]Classified

// SharedContainer wraps a container handle, preliminary or integrated.
type SharedContainer struct {
	Handle Shared
}

func (Scalar) classified()          {}
func (Sequence) classified()        {}
func (Mapping) classified()         {}
func (SharedContainer) classified() {}

// Shared is the capability that marks a value as a shared container handle.
// Values are recognized by this method set, not by concrete type.
type Shared interface {
	SharedKind() engine.Kind
	IsPreliminary() bool
}

// Error reports a value that has no document representation.
type Error struct {
	// Path locates the offending value inside the classified input,
	// e.g. "[2].tags[0]". Empty for the top-level value.
	Path string
	// Type is the Go type of the offending value.
	Type string
	// Reason is set when the type is supported but the value is not.
	Reason string
}

func (e *Error) Error() string {
	where := ""
	if e.Path != "" {
		where = " at " + e.Path
	}
	if e.Reason != "" {
		return fmt.Sprintf("unsupported value of type %s%s: %s", e.Type, where, e.Reason)
	}
	return fmt.Sprintf("unsupported type %s%s", e.Type, where)
}

// Classify inspects v and returns its shape.
//
// Checks run in a fixed order: bool, integers, floats, string, []byte, nil,
// shared containers, slices and arrays, maps with string keys. Anything else
// is an *Error.
func Classify(v any) (Classified, error) {
	return classify(v, "", 0)
}

func classify(v any, path string, depth int) (Classified, error) {
	if depth > MaxDepth {
		return nil, &Error{Path: path, Type: fmt.Sprintf("%T", v), Reason: fmt.Sprintf("nesting exceeds %d levels", MaxDepth)}
	}
	switch val := v.(type) {
	case bool:
		return Scalar{Value: ir.IRBool(val)}, nil
	case int:
		return Scalar{Value: ir.FromInt(int64(val))}, nil
	case int8:
		return Scalar{Value: ir.FromInt(int64(val))}, nil
	case int16:
		return Scalar{Value: ir.FromInt(int64(val))}, nil
	case int32:
		return Scalar{Value: ir.FromInt(int64(val))}, nil
	case int64:
		return Scalar{Value: ir.FromInt(val)}, nil
	case uint8:
		return Scalar{Value: ir.FromInt(int64(val))}, nil
	case uint16:
		return Scalar{Value: ir.FromInt(int64(val))}, nil
	case uint32:
		return Scalar{Value: ir.FromInt(int64(val))}, nil
	case uint:
		return unsigned(uint64(val), path)
	case uint64:
		return unsigned(val, path)
	case float32:
		return Scalar{Value: ir.IRNumber(val)}, nil
	case float64:
		return Scalar{Value: ir.IRNumber(val)}, nil
	case string:
		return Scalar{Value: ir.IRString(val)}, nil
	case []byte:
		return Scalar{Value: ir.IRBuffer(append([]byte(nil), val...))}, nil
	case nil:
		return Scalar{Value: ir.IRNull{}}, nil
	case Shared:
		if rv := reflect.ValueOf(val); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, &Error{Path: path, Type: fmt.Sprintf("%T", v), Reason: "nil container handle"}
		}
		if !isContainerKind(val.SharedKind()) {
			return nil, &Error{Path: path, Type: fmt.Sprintf("%T", v), Reason: "not a container kind"}
		}
		return SharedContainer{Handle: val}, nil
	case ir.IRValue:
		return fromIR(val, path, depth)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		seq := make(Sequence, rv.Len())
		for i := range seq {
			c, err := classify(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i), depth+1)
			if err != nil {
				return nil, err
			}
			seq[i] = c
		}
		return seq, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &Error{Path: path, Type: fmt.Sprintf("%T", v), Reason: "map keys must be strings"}
		}
		m := make(Mapping, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			c, err := classify(iter.Value().Interface(), joinKey(path, key), depth+1)
			if err != nil {
				return nil, err
			}
			m[key] = c
		}
		return m, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return Scalar{Value: ir.IRNull{}}, nil
		}
	}
	return nil, &Error{Path: path, Type: fmt.Sprintf("%T", v)}
}

func unsigned(n uint64, path string) (Classified, error) {
	v, err := ir.FromUint(n)
	if err != nil {
		return nil, &Error{Path: path, Type: "uint64", Reason: err.Error()}
	}
	return Scalar{Value: v}, nil
}

// fromIR keeps already-lowered values as they are, splitting arrays and
// objects so they are treated like their Go counterparts.
func fromIR(v ir.IRValue, path string, depth int) (Classified, error) {
	switch val := v.(type) {
	case ir.IRArray:
		seq := make(Sequence, len(val))
		for i, elem := range val {
			c, err := classify(elem, fmt.Sprintf("%s[%d]", path, i), depth+1)
			if err != nil {
				return nil, err
			}
			seq[i] = c
		}
		return seq, nil
	case ir.IRObject:
		m := make(Mapping, len(val))
		for k, elem := range val {
			c, err := classify(elem, joinKey(path, k), depth+1)
			if err != nil {
				return nil, err
			}
			m[k] = c
		}
		return m, nil
	default:
		return Scalar{Value: v}, nil
	}
}

func isContainerKind(k engine.Kind) bool {
	switch k {
	case engine.KindArray, engine.KindMap, engine.KindText, engine.KindXMLElement, engine.KindXMLText:
		return true
	}
	return false
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// IsPlain reports whether c contains no shared containers at any depth.
func IsPlain(c Classified) bool {
	switch val := c.(type) {
	case Scalar:
		return true
	case Sequence:
		for _, elem := range val {
			if !IsPlain(elem) {
				return false
			}
		}
		return true
	case Mapping:
		for _, elem := range val {
			if !IsPlain(elem) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Lower converts a plain classified value into its engine-native form.
// It fails when c contains a shared container.
func Lower(c Classified) (ir.IRValue, error) {
	switch val := c.(type) {
	case Scalar:
		return val.Value, nil
	case Sequence:
		arr := make(ir.IRArray, len(val))
		for i, elem := range val {
			v, err := Lower(elem)
			if err != nil {
				return nil, err
			}
			arr[i] = v
		}
		return arr, nil
	case Mapping:
		obj := make(ir.IRObject, len(val))
		for k, elem := range val {
			v, err := Lower(elem)
			if err != nil {
				return nil, err
			}
			obj[k] = v
		}
		return obj, nil
	case SharedContainer:
		return nil, &Error{
			Type:   fmt.Sprintf("%T", val.Handle),
			Reason: "shared containers cannot be nested inside plain lists or maps",
		}
	default:
		return nil, &Error{Type: fmt.Sprintf("%T", c)}
	}
}
