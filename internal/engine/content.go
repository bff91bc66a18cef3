package engine

import (
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/roach88/ydoc/internal/ir"
)

// Kind identifies the shape of a shared container.
type Kind uint8

const (
	// KindUndefined is a root created by a remote update before any local
	// code asked for it by kind.
	KindUndefined Kind = iota
	KindArray
	KindMap
	KindText
	KindXMLElement
	KindXMLText
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindText:
		return "text"
	case KindXMLElement:
		return "xml_element"
	case KindXMLText:
		return "xml_text"
	default:
		return "undefined"
	}
}

// ParseKind converts a kind name produced by Kind.String back into a Kind.
func ParseKind(s string) (Kind, error) {
	for k := KindArray; k <= KindXMLText; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return KindUndefined, fmt.Errorf("unknown container kind %q", s)
}

// OffsetKind selects the unit text positions are counted in.
type OffsetKind uint8

const (
	// OffsetBytes counts UTF-8 bytes.
	OffsetBytes OffsetKind = iota
	// OffsetUTF16 counts UTF-16 code units.
	OffsetUTF16
	// OffsetUTF32 counts code points.
	OffsetUTF32
)

// ParseOffsetKind accepts utf8, utf16 and utf32 case-insensitively,
// ignoring dashes ("UTF-16" is utf16).
func ParseOffsetKind(s string) (OffsetKind, error) {
	clean := strings.ReplaceAll(strings.ToLower(s), "-", "")
	switch clean {
	case "utf8":
		return OffsetBytes, nil
	case "utf16":
		return OffsetUTF16, nil
	case "utf32":
		return OffsetUTF32, nil
	default:
		return OffsetBytes, fmt.Errorf("'%s' is not a valid offset kind (utf8, utf16, or utf32)", clean)
	}
}

// String returns the canonical offset kind name.
func (k OffsetKind) String() string {
	switch k {
	case OffsetUTF16:
		return "utf16"
	case OffsetUTF32:
		return "utf32"
	default:
		return "utf8"
	}
}

// runeLen returns how many offset units r occupies.
func (k OffsetKind) runeLen(r rune) int {
	switch k {
	case OffsetUTF16:
		return utf16.RuneLen(r)
	case OffsetUTF32:
		return 1
	default:
		return utf8.RuneLen(r)
	}
}

// StringLen measures s in offset units.
func (k OffsetKind) StringLen(s string) int {
	if k == OffsetBytes {
		return len(s)
	}
	n := 0
	for _, r := range s {
		n += k.runeLen(r)
	}
	return n
}

// contentTag is the on-the-wire tag of an item's content.
type contentTag byte

const (
	tagDeleted contentTag = 1
	tagString  contentTag = 4
	tagEmbed   contentTag = 5
	tagFormat  contentTag = 6
	tagType    contentTag = 7
	tagAny     contentTag = 8
)

// content is what one unit item holds.
type content interface {
	tag() contentTag
	// length is the number of offset units the content occupies.
	length(k OffsetKind) int
	// value is what readers see: an ir.IRValue or a *Branch.
	value() any
}

type anyContent struct{ v ir.IRValue }

func (anyContent) tag() contentTag { return tagAny }
func (anyContent) length(OffsetKind) int { return 1 }
func (c anyContent) value() any { return c.v }

type stringContent struct{ r rune }

func (stringContent) tag() contentTag { return tagString }
func (c stringContent) length(k OffsetKind) int { return k.runeLen(c.r) }
func (c stringContent) value() any { return ir.IRString(string(c.r)) }

type embedContent struct{ v ir.IRValue }

func (embedContent) tag() contentTag { return tagEmbed }
func (embedContent) length(OffsetKind) int { return 1 }
func (c embedContent) value() any { return c.v }

type typeContent struct{ branch *Branch }

func (typeContent) tag() contentTag { return tagType }
func (typeContent) length(OffsetKind) int { return 1 }
func (c typeContent) value() any { return c.branch }

// deletedContent replaces the content of garbage-collected items.
type deletedContent struct{}

func (deletedContent) tag() contentTag { return tagDeleted }
func (deletedContent) length(OffsetKind) int { return 1 }
func (deletedContent) value() any { return nil }
