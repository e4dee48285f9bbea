// Copyright 2021 Airbus Defence and Space
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rastercache

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// DataType is a pixel data type. Values match GDAL's GDALDataType enumeration.
type DataType int

const (
	//Unknown / Unset Datatype
	Unknown DataType = iota
	//Byte / UInt8
	Byte
	//UInt16 DataType
	UInt16
	//Int16 DataType
	Int16
	//UInt32 DataType
	UInt32
	//Int32 DataType
	Int32
	//Float32 DataType
	Float32
	//Float64 DataType
	Float64
	//CInt16 is a complex Int16
	CInt16
	//CInt32 is a complex Int32
	CInt32
	//CFloat32 is a complex Float32
	CFloat32
	//CFloat64 is a complex Float64
	CFloat64
)

var dataTypeNames = map[DataType]string{
	Unknown:  "Unknown",
	Byte:     "Byte",
	UInt16:   "UInt16",
	Int16:    "Int16",
	UInt32:   "UInt32",
	Int32:    "Int32",
	Float32:  "Float32",
	Float64:  "Float64",
	CInt16:   "CInt16",
	CInt32:   "CInt32",
	CFloat32: "CFloat32",
	CFloat64: "CFloat64",
}

// String implements Stringer
func (dtype DataType) String() string {
	if n, ok := dataTypeNames[dtype]; ok {
		return n
	}
	return fmt.Sprintf("DataType(%d)", int(dtype))
}

// ParseDataType returns the DataType named s (case insensitive)
func ParseDataType(s string) (DataType, error) {
	for dt, n := range dataTypeNames {
		if dt != Unknown && strings.EqualFold(n, s) {
			return dt, nil
		}
	}
	return Unknown, fmt.Errorf("unknown data type %q", s)
}

// Size returns the number of bytes needed for one instance of DataType, or 0
// for unsupported types
func (dtype DataType) Size() int {
	switch dtype {
	case Byte:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32, CInt16:
		return 4
	case CInt32, Float64, CFloat32:
		return 8
	case CFloat64:
		return 16
	default:
		return 0
	}
}

// encode writes value converted to dtype into the first Size() bytes of dst.
// Complex types get value as their real part and a zero imaginary part.
func (dtype DataType) encode(dst []byte, value float64) {
	bo := binary.NativeEndian
	switch dtype {
	case Byte:
		dst[0] = uint8(value)
	case UInt16:
		bo.PutUint16(dst, uint16(value))
	case Int16:
		bo.PutUint16(dst, uint16(int16(value)))
	case UInt32:
		bo.PutUint32(dst, uint32(value))
	case Int32:
		bo.PutUint32(dst, uint32(int32(value)))
	case Float32:
		bo.PutUint32(dst, math.Float32bits(float32(value)))
	case Float64:
		bo.PutUint64(dst, math.Float64bits(value))
	case CInt16:
		bo.PutUint16(dst, uint16(int16(value)))
		bo.PutUint16(dst[2:], 0)
	case CInt32:
		bo.PutUint32(dst, uint32(int32(value)))
		bo.PutUint32(dst[4:], 0)
	case CFloat32:
		bo.PutUint32(dst, math.Float32bits(float32(value)))
		bo.PutUint32(dst[4:], 0)
	case CFloat64:
		bo.PutUint64(dst, math.Float64bits(value))
		bo.PutUint64(dst[8:], 0)
	}
}

// Fill sets every pixel of buf to value converted to dtype
func (dtype DataType) Fill(buf []byte, value float64) {
	sz := dtype.Size()
	if sz == 0 || len(buf) < sz {
		return
	}
	dtype.encode(buf, value)
	//double the filled prefix until the whole buffer is covered
	for filled := sz; filled < len(buf); filled *= 2 {
		copy(buf[filled:], buf[:filled])
	}
}
