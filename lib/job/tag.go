package job

import (
	"strconv"
)

type tagKind uint8

const (
	tagKindInt = tagKind(iota + 1)
	tagKindString
)

// Tag labels jobs so that workers can ask whether any job of a group is
// still in flight. A Tag is either a small integer or a string; the two
// never compare equal, so IntTag(1) and StringTag("1") are different tags.
// The zero Tag is not a valid tag.
type Tag struct {
	kind tagKind
	num  int
	str  string
}

// IntTag creates a Tag from an integer.
func IntTag(n int) Tag {
	return Tag{kind: tagKindInt, num: n}
}

// StringTag creates a Tag from a string.
func StringTag(s string) Tag {
	return Tag{kind: tagKindString, str: s}
}

// IsInt tells whether the tag was created by IntTag.
func (t Tag) IsInt() bool {
	return t.kind == tagKindInt
}

// Int returns the integer value of an IntTag.
func (t Tag) Int() (int, bool) {
	return t.num, t.kind == tagKindInt
}

// Valid tells whether the tag was built with one of the constructors.
func (t Tag) Valid() bool {
	return t.kind == tagKindInt || t.kind == tagKindString
}

func (t Tag) String() string {
	switch t.kind {
	case tagKindInt:
		return strconv.Itoa(t.num)
	case tagKindString:
		return t.str
	default:
		return "<invalid-tag>"
	}
}

// Tags is a convenience constructor for a list of string tags.
func Tags(names ...string) []Tag {
	ret := make([]Tag, 0, len(names))
	for _, name := range names {
		ret = append(ret, StringTag(name))
	}
	return ret
}
