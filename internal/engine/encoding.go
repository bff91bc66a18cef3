package engine

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/roach88/ydoc/internal/ir"
)

// Tags of encoded ir values.
const (
	anyBuffer byte = 116
	anyArray  byte = 117
	anyObject byte = 118
	anyString byte = 119
	anyTrue   byte = 120
	anyFalse  byte = 121
	anyBigInt byte = 122
	anyNumber byte = 123
	anyNull   byte = 126
)

// maxLength bounds every decoded length so a corrupt prefix cannot make the
// decoder allocate unbounded memory.
const maxLength = 1 << 28

// maxDepth bounds nesting of decoded values.
const maxDepth = 512

type encoder struct {
	buf []byte
}

func (e *encoder) bytes() []byte { return e.buf }

func (e *encoder) writeByte(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) writeVarUint(n uint64) { e.buf = binary.AppendUvarint(e.buf, n) }

func (e *encoder) writeVarString(s string) {
	e.writeVarUint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) writeVarBytes(b []byte) {
	e.writeVarUint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) writeID(id ID) {
	e.writeVarUint(id.Client)
	e.writeVarUint(id.Clock)
}

func (e *encoder) writeAny(v ir.IRValue) {
	switch val := v.(type) {
	case ir.IRBool:
		if val {
			e.writeByte(anyTrue)
		} else {
			e.writeByte(anyFalse)
		}
	case ir.IRNumber:
		e.writeByte(anyNumber)
		e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(float64(val)))
	case ir.IRBigInt:
		e.writeByte(anyBigInt)
		e.buf = binary.BigEndian.AppendUint64(e.buf, uint64(val))
	case ir.IRString:
		e.writeByte(anyString)
		e.writeVarString(string(val))
	case ir.IRBuffer:
		e.writeByte(anyBuffer)
		e.writeVarBytes(val)
	case ir.IRArray:
		e.writeByte(anyArray)
		e.writeVarUint(uint64(len(val)))
		for _, elem := range val {
			e.writeAny(elem)
		}
	case ir.IRObject:
		e.writeByte(anyObject)
		keys := val.SortedKeys()
		e.writeVarUint(uint64(len(keys)))
		for _, k := range keys {
			e.writeVarString(k)
			e.writeAny(val[k])
		}
	default:
		e.writeByte(anyNull)
	}
}

type decoder struct {
	data []byte
	pos  int
}

func newDecoder(data []byte) *decoder {
	return &decoder{data: data}
}

func (d *decoder) done() bool { return d.pos >= len(d.data) }

func (d *decoder) remaining() int { return len(d.data) - d.pos }

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, newEncodingError("unexpected end of input at offset %d", d.pos)
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readVarUint() (uint64, error) {
	n, size := binary.Uvarint(d.data[d.pos:])
	if size <= 0 {
		return 0, newEncodingError("malformed varint at offset %d", d.pos)
	}
	d.pos += size
	return n, nil
}

// readLen reads a varuint used as a count or byte length.
func (d *decoder) readLen() (int, error) {
	n, err := d.readVarUint()
	if err != nil {
		return 0, err
	}
	if n > maxLength {
		return 0, newEncodingError("length %d exceeds limit", n)
	}
	return int(n), nil
}

func (d *decoder) readN(n int) ([]byte, error) {
	if n > d.remaining() {
		return nil, newEncodingError("need %d bytes at offset %d, have %d", n, d.pos, d.remaining())
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) readVarString() (string, error) {
	n, err := d.readLen()
	if err != nil {
		return "", err
	}
	b, err := d.readN(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", newEncodingError("invalid UTF-8 string at offset %d", d.pos-n)
	}
	return string(b), nil
}

func (d *decoder) readVarBytes() ([]byte, error) {
	n, err := d.readLen()
	if err != nil {
		return nil, err
	}
	b, err := d.readN(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (d *decoder) readID() (ID, error) {
	client, err := d.readVarUint()
	if err != nil {
		return ID{}, err
	}
	clock, err := d.readVarUint()
	if err != nil {
		return ID{}, err
	}
	return ID{Client: client, Clock: clock}, nil
}

func (d *decoder) readAny() (ir.IRValue, error) {
	return d.readAnyDepth(0)
}

func (d *decoder) readAnyDepth(depth int) (ir.IRValue, error) {
	if depth > maxDepth {
		return nil, newEncodingError("value nesting exceeds %d levels", maxDepth)
	}
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case anyNull:
		return ir.IRNull{}, nil
	case anyTrue:
		return ir.IRBool(true), nil
	case anyFalse:
		return ir.IRBool(false), nil
	case anyNumber:
		b, err := d.readN(8)
		if err != nil {
			return nil, err
		}
		return ir.IRNumber(math.Float64frombits(binary.BigEndian.Uint64(b))), nil
	case anyBigInt:
		b, err := d.readN(8)
		if err != nil {
			return nil, err
		}
		return ir.IRBigInt(int64(binary.BigEndian.Uint64(b))), nil
	case anyString:
		s, err := d.readVarString()
		if err != nil {
			return nil, err
		}
		return ir.IRString(s), nil
	case anyBuffer:
		b, err := d.readVarBytes()
		if err != nil {
			return nil, err
		}
		return ir.IRBuffer(b), nil
	case anyArray:
		n, err := d.readLen()
		if err != nil {
			return nil, err
		}
		arr := make(ir.IRArray, 0, min(n, d.remaining()))
		for i := 0; i < n; i++ {
			elem, err := d.readAnyDepth(depth + 1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case anyObject:
		n, err := d.readLen()
		if err != nil {
			return nil, err
		}
		obj := make(ir.IRObject, min(n, d.remaining()))
		for i := 0; i < n; i++ {
			key, err := d.readVarString()
			if err != nil {
				return nil, err
			}
			val, err := d.readAnyDepth(depth + 1)
			if err != nil {
				return nil, err
			}
			obj[key] = val
		}
		return obj, nil
	default:
		return nil, newEncodingError("unknown value tag %d at offset %d", tag, d.pos-1)
	}
}
