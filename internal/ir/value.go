package ir

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"unicode/utf16"
)

// MaxSafeInteger is the largest integer a float Number represents exactly.
// Integers beyond ±MaxSafeInteger are stored as IRBigInt.
const MaxSafeInteger = 1<<53 - 1

// IRValue is a sealed interface representing the engine's native content values.
// Only IRNull, IRBool, IRNumber, IRBigInt, IRString, IRBuffer, IRArray and
// IRObject implement this.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents a null value.
// Using an explicit type ensures all IRValues satisfy the sealed interface.
type IRNull struct{}

func (IRNull) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRNumber represents a float64 number.
// Integers up to MaxSafeInteger in magnitude round-trip exactly.
type IRNumber float64

func (IRNumber) irValue() {}

// IRBigInt represents an integer outside the safe float range.
type IRBigInt int64

func (IRBigInt) irValue() {}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRBuffer represents an opaque binary blob.
type IRBuffer []byte

func (IRBuffer) irValue() {}

// IRArray represents an array of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// FromInt lowers an integer into the engine's number representation.
// Values inside the safe float range become IRNumber, anything larger IRBigInt.
func FromInt(n int64) IRValue {
	if n > MaxSafeInteger || n < -MaxSafeInteger {
		return IRBigInt(n)
	}
	return IRNumber(n)
}

// FromUint lowers an unsigned integer. Values above math.MaxInt64 have no
// representation and return an error.
func FromUint(n uint64) (IRValue, error) {
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("unsigned integer %d overflows int64", n)
	}
	return FromInt(int64(n)), nil
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, CompareKeys)
	return keys
}

// CompareKeys compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func CompareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	// If all compared units are equal, shorter string comes first
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Equal reports whether two values are structurally identical.
// IRNumber and IRBigInt never compare equal to each other.
func Equal(a, b IRValue) bool {
	switch av := a.(type) {
	case IRNull:
		_, ok := b.(IRNull)
		return ok
	case IRBool:
		bv, ok := b.(IRBool)
		return ok && av == bv
	case IRNumber:
		bv, ok := b.(IRNumber)
		return ok && (av == bv || (math.IsNaN(float64(av)) && math.IsNaN(float64(bv))))
	case IRBigInt:
		bv, ok := b.(IRBigInt)
		return ok && av == bv
	case IRString:
		bv, ok := b.(IRString)
		return ok && av == bv
	case IRBuffer:
		bv, ok := b.(IRBuffer)
		return ok && bytes.Equal(av, bv)
	case IRArray:
		bv, ok := b.(IRArray)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case IRObject:
		bv, ok := b.(IRObject)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !Equal(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ToNative converts an IRValue into plain Go values:
// nil, bool, float64, int64, string, []byte, []any and map[string]any.
func ToNative(v IRValue) any {
	switch val := v.(type) {
	case IRNull, nil:
		return nil
	case IRBool:
		return bool(val)
	case IRNumber:
		return float64(val)
	case IRBigInt:
		return int64(val)
	case IRString:
		return string(val)
	case IRBuffer:
		return []byte(val)
	case IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToNative(elem)
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToNative(elem)
		}
		return out
	default:
		return nil
	}
}

// FromNative converts decoded JSON/YAML-style Go values into an IRValue.
// Accepts nil, bool, all integer and float kinds, string, []byte,
// []any, map[string]any and map[any]any with string keys.
func FromNative(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case int:
		return FromInt(int64(val)), nil
	case int8:
		return FromInt(int64(val)), nil
	case int16:
		return FromInt(int64(val)), nil
	case int32:
		return FromInt(int64(val)), nil
	case int64:
		return FromInt(val), nil
	case uint:
		return FromUint(uint64(val))
	case uint8:
		return FromInt(int64(val)), nil
	case uint16:
		return FromInt(int64(val)), nil
	case uint32:
		return FromInt(int64(val)), nil
	case uint64:
		return FromUint(val)
	case float32:
		return IRNumber(val), nil
	case float64:
		return IRNumber(val), nil
	case string:
		return IRString(val), nil
	case []byte:
		return IRBuffer(bytes.Clone(val)), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	case map[any]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v: keys must be strings", k)
			}
			irElem, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", key, err)
			}
			obj[key] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
