// Package tlv maps BER-TLV (Basic Encoding Rules - Tag-Length-Value) data onto
// Go structures described with struct tags, and renders those structures back
// as readable reports.
//
// A field is bound with `tlv:"9F38"`. A []bertlv.TLV field tagged
// `tlv:",unknown"` (or simply named Unknown) collects every tag no other field
// claimed, in wire order. Slices of structs accept repeated tags.
package tlv

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/moov-io/bertlv"
)

// Unmarshaler allows custom types to implement their own TLV parsing logic.
type Unmarshaler interface {
	UnmarshalTLV(data []byte) error
}

// Unmarshal parses raw BER-TLV data and maps it into a target Go struct.
func Unmarshal(data []byte, target any) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return UnmarshalFromPackets(packets, target)
}

// UnmarshalFromPackets maps pre-decoded packets onto the struct target points to.
// When a tag repeats and its field is not a slice, the last occurrence wins.
func UnmarshalFromPackets(packets []bertlv.TLV, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a non-nil pointer to a struct, got %T", target)
	}
	v = v.Elem()
	spec := specFor(v.Type())

	var leftovers []bertlv.TLV
	for _, packet := range packets {
		idx, ok := spec.byTag[strings.ToUpper(packet.Tag)]
		if !ok {
			leftovers = append(leftovers, packet)
			continue
		}
		if err := mapPacketToField(packet, v.Field(idx)); err != nil {
			return fmt.Errorf("tag %s: %w", strings.ToUpper(packet.Tag), err)
		}
	}

	if spec.unknown >= 0 && len(leftovers) > 0 {
		v.Field(spec.unknown).Set(reflect.ValueOf(leftovers))
	}
	return nil
}

// structSpec is the tag layout of one struct type.
type structSpec struct {
	byTag   map[string]int // upper-case tag -> field index
	unknown int            // index of the leftover bucket, -1 if none
}

var (
	specCache sync.Map // reflect.Type -> *structSpec
	tlvSlice  = reflect.TypeOf([]bertlv.TLV(nil))
)

// specFor reads the struct tags of t once; EMV templates are decoded on every
// exchange that gets annotated.
func specFor(t reflect.Type) *structSpec {
	if cached, ok := specCache.Load(t); ok {
		return cached.(*structSpec)
	}

	spec := &structSpec{byTag: make(map[string]int), unknown: -1}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, opts, _ := strings.Cut(f.Tag.Get("tlv"), ",")

		if (opts == "unknown" || f.Name == "Unknown") && f.Type == tlvSlice {
			spec.unknown = i
			continue
		}
		if tag == "" || !f.IsExported() {
			continue
		}
		spec.byTag[strings.ToUpper(tag)] = i
	}

	actual, _ := specCache.LoadOrStore(t, spec)
	return actual.(*structSpec)
}

// mapPacketToField appends to slices of structs and overwrites anything else.
func mapPacketToField(packet bertlv.TLV, field reflect.Value) error {
	if field.Kind() == reflect.Slice && !isByteSlice(field) {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := decodeToValue(packet, elem); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}
	return decodeToValue(packet, field)
}

// decodeToValue handles one leaf: custom Unmarshaler, []byte, hex string or nested template.
func decodeToValue(packet bertlv.TLV, field reflect.Value) error {
	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalTLV(rawValue(packet))
		}
	}

	switch {
	case isByteSlice(field):
		field.SetBytes(rawValue(packet))
	case field.Kind() == reflect.String:
		field.SetString(Upper(rawValue(packet)))
	case field.Kind() == reflect.Struct:
		return decodeTemplate(packet, field.Addr())
	case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return decodeTemplate(packet, field)
	}
	return nil
}

func decodeTemplate(packet bertlv.TLV, target reflect.Value) error {
	if len(packet.TLVs) > 0 {
		return UnmarshalFromPackets(packet.TLVs, target.Interface())
	}
	if len(packet.Value) == 0 {
		return nil
	}
	return Unmarshal(packet.Value, target.Interface())
}

// rawValue returns the value bytes of a packet, re-encoding constructed ones.
func rawValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

func isByteSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}
