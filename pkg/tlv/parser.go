// Package tlv maps BER-TLV data to and from Go structs through `tlv` struct tags,
// on top of github.com/moov-io/bertlv.
//
//	type fci struct {
//		DFName []byte       `tlv:"84"`
//		Prop   *proprietary `tlv:"A5"`
//		Rest   []bertlv.TLV `tlv:",unknown"`
//	}
//
// Byte slices take the value as is, strings hold it in hex, structs and struct
// pointers map constructed tags, and slices of those collect repeated tags.
package tlv

import (
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Unmarshaler lets a type decode its own value bytes.
type Unmarshaler interface {
	UnmarshalTLV(data []byte) error
}

// ErrTagNotFound is returned by GetValue.
var ErrTagNotFound = errors.New("tlv: tag not found")

// Unmarshal decodes data and fills the struct target points to.
func Unmarshal(data []byte, target any) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return UnmarshalFromPackets(packets, target)
}

// UnmarshalFromPackets fills target from packets that are already decoded.
func UnmarshalFromPackets(packets []bertlv.TLV, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a non-nil pointer to a struct, got %T", target)
	}
	v = v.Elem()

	taken := make([]bool, len(packets))
	var unknown *fieldSpec
	for _, spec := range specsOf(v.Type()) {
		if spec.unknown {
			s := spec
			unknown = &s
			continue
		}
		field := v.Field(spec.index)
		for i, p := range packets {
			if strings.ToUpper(p.Tag) != spec.tag {
				continue
			}
			if err := assign(p, field); err != nil {
				return fmt.Errorf("field %s (%s): %w", spec.name, spec.tag, err)
			}
			taken[i] = true
		}
	}

	if unknown == nil {
		return nil
	}
	var rest []bertlv.TLV
	for i, p := range packets {
		if !taken[i] {
			rest = append(rest, p)
		}
	}
	if field := v.Field(unknown.index); len(rest) > 0 && field.Type() == reflect.TypeOf(rest) {
		field.Set(reflect.ValueOf(rest))
	}
	return nil
}

// assign stores one packet. Slices other than []byte grow by one element per
// packet.
func assign(p bertlv.TLV, field reflect.Value) error {
	if field.Kind() == reflect.Slice && !isByteSlice(field) {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := decodeValue(p, elem); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}
	return decodeValue(p, field)
}

func decodeValue(p bertlv.TLV, field reflect.Value) error {
	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalTLV(rawValue(p))
		}
	}

	switch {
	case isByteSlice(field):
		field.SetBytes(rawValue(p))
	case field.Kind() == reflect.String:
		field.SetString(hex.EncodeToString(p.Value))
	case isStructOrPtrToStruct(field):
		target := field
		if field.Kind() == reflect.Ptr {
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
		} else {
			target = field.Addr()
		}
		if len(p.TLVs) > 0 {
			return UnmarshalFromPackets(p.TLVs, target.Interface())
		}
		return Unmarshal(p.Value, target.Interface())
	}
	return nil
}

// rawValue returns the value bytes, re-encoding the children of a constructed tag.
func rawValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

// GetValue returns the value of tag, then of each tag of path inside it:
// GetValue(fci, 0x6F, 0xA5, 0x50) reads the label of an FCI.
func GetValue(data []byte, tag uint, path ...uint) ([]byte, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, err
	}

	for _, want := range append([]uint{tag}, path...) {
		name := fmt.Sprintf("%X", want)
		found := false
		for _, p := range packets {
			if strings.EqualFold(p.Tag, name) {
				data, packets, found = rawValue(p), p.TLVs, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrTagNotFound, name)
		}
	}
	return data, nil
}
