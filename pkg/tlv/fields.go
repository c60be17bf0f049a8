package tlv

import (
	"reflect"
	"strings"
	"sync"
)

// fieldSpec is one struct field carrying a `tlv` tag. A field tagged
// `tlv:",unknown"`, or named Unknown, collects the packets no other field took.
type fieldSpec struct {
	index   int
	name    string
	tag     string
	unknown bool
}

var specCache sync.Map // reflect.Type -> []fieldSpec

func specsOf(t reflect.Type) []fieldSpec {
	if cached, ok := specCache.Load(t); ok {
		return cached.([]fieldSpec)
	}

	var specs []fieldSpec
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		conf := f.Tag.Get("tlv")
		name, _, _ := strings.Cut(conf, ",")
		switch {
		case conf == ",unknown" || f.Name == "Unknown":
			specs = append(specs, fieldSpec{index: i, name: f.Name, unknown: true})
		case name != "":
			specs = append(specs, fieldSpec{index: i, name: f.Name, tag: strings.ToUpper(name)})
		}
	}

	specCache.Store(t, specs)
	return specs
}

func isByteSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}

func isStructOrPtrToStruct(v reflect.Value) bool {
	return v.Kind() == reflect.Struct ||
		(v.Kind() == reflect.Ptr && v.Type().Elem().Kind() == reflect.Struct)
}
