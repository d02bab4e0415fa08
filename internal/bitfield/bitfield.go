// Package bitfield packs and unpacks struct fields into a single machine
// word using `bitfield` struct tags. It is the kernel's way of giving
// hardware-defined bit layouts (sv39 PTE flags, page metadata) a normal Go
// struct to work with instead of hand-rolled shift/mask constants scattered
// through the call sites.
package bitfield

import (
	"fmt"
	"reflect"
)

// Config controls packing width.
type Config struct {
	// NumBits is the maximum number of bits the packed value may occupy.
	// Zero means unchecked.
	NumBits uint
}

// Pack packs the tagged fields of x, in declaration order, into the low bits
// of the returned word. Only fields with a `bitfield:",<n>"` tag participate.
func Pack(x interface{}, c *Config) (uint64, error) {
	if c == nil {
		c = &Config{NumBits: 64}
	}

	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, fmt.Errorf("bitfield: Pack: expected struct, got %v", v.Kind())
	}

	t := v.Type()
	var packed uint64
	var bitOffset uint

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("bitfield")
		if tag == "" {
			continue
		}

		var bits uint
		if _, err := fmt.Sscanf(tag, ",%d", &bits); err != nil {
			return 0, fmt.Errorf("bitfield: Pack: invalid bitfield tag %q on field %s", tag, field.Name)
		}
		if bits == 0 {
			continue
		}

		fieldValue := v.Field(i)
		var fieldBits uint64
		switch fieldValue.Kind() {
		case reflect.Bool:
			if fieldValue.Bool() {
				fieldBits = 1
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			fieldBits = fieldValue.Uint()
		default:
			return 0, fmt.Errorf("bitfield: Pack: unsupported field type %v for field %s", fieldValue.Kind(), field.Name)
		}

		maxValue := uint64(1)<<bits - 1
		if fieldBits > maxValue {
			return 0, fmt.Errorf("bitfield: Pack: value %d exceeds %d bits for field %s", fieldBits, bits, field.Name)
		}

		packed |= fieldBits << bitOffset
		bitOffset += bits
	}

	if c.NumBits > 0 && bitOffset > c.NumBits {
		return 0, fmt.Errorf("bitfield: Pack: total bits %d exceeds NumBits %d", bitOffset, c.NumBits)
	}

	return packed, nil
}

// Unpack is the inverse of Pack: it reads tagged fields of out, in
// declaration order, from the low bits of packed.
func Unpack(packed uint64, out interface{}) error {
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bitfield: Unpack: expected pointer to struct")
	}
	v = v.Elem()
	t := v.Type()

	var bitOffset uint
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("bitfield")
		if tag == "" {
			continue
		}

		var bits uint
		if _, err := fmt.Sscanf(tag, ",%d", &bits); err != nil {
			return fmt.Errorf("bitfield: Unpack: invalid bitfield tag %q on field %s", tag, field.Name)
		}
		if bits == 0 {
			continue
		}

		mask := uint64(1)<<bits - 1
		fieldBits := (packed >> bitOffset) & mask
		bitOffset += bits

		fieldValue := v.Field(i)
		switch fieldValue.Kind() {
		case reflect.Bool:
			fieldValue.SetBool(fieldBits != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			fieldValue.SetUint(fieldBits)
		default:
			return fmt.Errorf("bitfield: Unpack: unsupported field type %v for field %s", fieldValue.Kind(), field.Name)
		}
	}

	return nil
}
