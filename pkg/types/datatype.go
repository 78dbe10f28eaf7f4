// Package types implements the scalar data-type enumeration and the
// tensor and parameter-map building blocks used throughout the core.
package types

import "fmt"

// DataType is an enumerated scalar type with a fixed byte size.
type DataType uint8

// The supported scalar types. Fp16 is transported as a raw 16-bit value;
// Bytes is a variable-length byte string and its Size() is meaningless
// (callers must use the owned byte slice length instead).
const (
	Bool DataType = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Fp16
	Fp32
	Fp64
	Bytes
)

var names = map[DataType]string{
	Bool:   "BOOL",
	Int8:   "INT8",
	Int16:  "INT16",
	Int32:  "INT32",
	Int64:  "INT64",
	Uint8:  "UINT8",
	Uint16: "UINT16",
	Uint32: "UINT32",
	Uint64: "UINT64",
	Fp16:   "FP16",
	Fp32:   "FP32",
	Fp64:   "FP64",
	Bytes:  "BYTES",
}

var sizes = map[DataType]int{
	Bool:   1,
	Int8:   1,
	Int16:  2,
	Int32:  4,
	Int64:  8,
	Uint8:  1,
	Uint16: 2,
	Uint32: 4,
	Uint64: 8,
	Fp16:   2,
	Fp32:   4,
	Fp64:   8,
	Bytes:  1,
}

// String returns the wire tag for the datatype (e.g. "UINT32").
func (d DataType) String() string {
	if n, ok := names[d]; ok {
		return n
	}
	return fmt.Sprintf("DataType(%d)", uint8(d))
}

// Size returns the byte size of a single element of this type. For
// Bytes, this is 1 and the actual length is carried by the owning buffer.
func (d DataType) Size() int {
	if s, ok := sizes[d]; ok {
		return s
	}
	return 0
}

// ParseDataType resolves a wire tag (as produced by String) back to a
// DataType. It returns false if the tag is unrecognized.
func ParseDataType(tag string) (DataType, bool) {
	for dt, n := range names {
		if n == tag {
			return dt, true
		}
	}
	return 0, false
}
