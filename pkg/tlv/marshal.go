package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"

	"github.com/moov-io/bertlv"
)

// Marshaler allows custom types to produce their own TLV value bytes.
type Marshaler interface {
	MarshalTLV() ([]byte, error)
}

// Marshal encodes a struct annotated with `tlv` tags into BER-TLV bytes.
// It is the reverse of Unmarshal: empty byte slices and nil pointers are omitted,
// nested structs become constructed tags and a `tlv:",unknown"` field is appended as is.
func Marshal(src any) ([]byte, error) {
	packets, err := MarshalToPackets(src)
	if err != nil {
		return nil, err
	}
	if len(packets) == 0 {
		return []byte{}, nil
	}
	out, err := bertlv.Encode(packets)
	if err != nil {
		return nil, fmt.Errorf("bertlv encode failed: %w", err)
	}
	return out, nil
}

// MarshalToPackets maps a struct to bertlv.TLV packets in field order.
func MarshalToPackets(src any) ([]bertlv.TLV, error) {
	v := reflect.ValueOf(src)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("source must be a struct, got %s", v.Kind())
	}

	var packets []bertlv.TLV
	for _, spec := range specsOf(v.Type()) {
		field := v.Field(spec.index)
		if spec.unknown {
			if extra, ok := field.Interface().([]bertlv.TLV); ok {
				packets = append(packets, extra...)
			}
			continue
		}
		encoded, err := encodeField(spec.tag, field)
		if err != nil {
			return nil, fmt.Errorf("field %s (%s): %w", spec.name, spec.tag, err)
		}
		packets = append(packets, encoded...)
	}
	return packets, nil
}

func encodeField(tag string, field reflect.Value) ([]bertlv.TLV, error) {
	if field.CanInterface() {
		if m, ok := field.Interface().(Marshaler); ok {
			value, err := m.MarshalTLV()
			if err != nil || len(value) == 0 {
				return nil, err
			}
			return []bertlv.TLV{{Tag: tag, Value: value}}, nil
		}
	}

	switch {
	case isByteSlice(field):
		if field.Len() == 0 {
			return nil, nil
		}
		return []bertlv.TLV{{Tag: tag, Value: append([]byte(nil), field.Bytes()...)}}, nil

	case field.Kind() == reflect.String:
		if field.Len() == 0 {
			return nil, nil
		}
		value, err := hex.DecodeString(field.String())
		if err != nil {
			return nil, fmt.Errorf("string fields hold hex: %w", err)
		}
		return []bertlv.TLV{{Tag: tag, Value: value}}, nil

	case field.Kind() == reflect.Slice:
		var out []bertlv.TLV
		for i := 0; i < field.Len(); i++ {
			elem, err := encodeField(tag, field.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, elem...)
		}
		return out, nil

	case isStructOrPtrToStruct(field):
		if field.Kind() == reflect.Ptr && field.IsNil() {
			return nil, nil
		}
		children, err := MarshalToPackets(field.Interface())
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return nil, nil
		}
		return []bertlv.TLV{{Tag: tag, TLVs: children}}, nil
	}

	return nil, fmt.Errorf("unsupported kind %s", field.Kind())
}
