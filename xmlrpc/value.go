package xmlrpc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateTimeLayout is the dateTime.iso8601 layout written by the encoder.
const DateTimeLayout = "20060102T15:04:05"

var dateTimeLayouts = []string{
	DateTimeLayout,
	"2006-01-02T15:04:05",
	"20060102T15:04:05Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"20060102T150405",
}

// valueError reports a value element whose content does not match its type.
type valueError struct {
	typ string
	err error
}

func (e *valueError) Error() string {
	return fmt.Sprintf("xmlrpc: invalid %s value: %v", e.typ, e.err)
}

func (e *valueError) Unwrap() error {
	return e.err
}

// value decodes a <value> element into its Go form: int, bool, string,
// float64, time.Time, []byte, nil, []any or map[string]any.
type value struct {
	v any
}

type member struct {
	Name  string `xml:"name"`
	Value value  `xml:"value"`
}

func (v *value) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var text strings.Builder
	typed := false
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			if typed {
				return &valueError{typ: "value", err: fmt.Errorf("unexpected <%s>", t.Name.Local)}
			}
			typed = true
			if v.v, err = decodeTyped(d, t); err != nil {
				return err
			}
		case xml.EndElement:
			// An untyped value is a string.
			if !typed {
				v.v = text.String()
			}
			return nil
		}
	}
}

func decodeTyped(d *xml.Decoder, start xml.StartElement) (any, error) {
	typ := start.Name.Local
	switch typ {
	case "struct":
		var s struct {
			Members []member `xml:"member"`
		}
		if err := d.DecodeElement(&s, &start); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(s.Members))
		for _, mem := range s.Members {
			m[mem.Name] = mem.Value.v
		}
		return m, nil
	case "array":
		var a struct {
			Values []value `xml:"data>value"`
		}
		if err := d.DecodeElement(&a, &start); err != nil {
			return nil, err
		}
		out := make([]any, len(a.Values))
		for i, val := range a.Values {
			out[i] = val.v
		}
		return out, nil
	case "nil":
		return nil, d.Skip()
	}

	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return nil, err
	}
	switch typ {
	case "string":
		return s, nil
	case "i4", "int", "i8":
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, &valueError{typ: typ, err: err}
		}
		return int(n), nil
	case "boolean":
		switch strings.TrimSpace(s) {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
		return nil, &valueError{typ: typ, err: fmt.Errorf("%q is not 0 or 1", s)}
	case "double":
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, &valueError{typ: typ, err: err}
		}
		return f, nil
	case "dateTime.iso8601":
		return parseDateTime(strings.TrimSpace(s))
	case "base64":
		b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
		if err != nil {
			return nil, &valueError{typ: typ, err: err}
		}
		return b, nil
	}
	return nil, &valueError{typ: typ, err: fmt.Errorf("unknown type")}
}

func parseDateTime(s string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &valueError{typ: "dateTime.iso8601", err: fmt.Errorf("cannot parse %q", s)}
}

var (
	timeType   = reflect.TypeFor[time.Time]()
	numberType = reflect.TypeFor[json.Number]()
)

// encodeValue writes v as a <value> element. Structs use their json field
// names; maps need string keys and are written with sorted keys.
func encodeValue(buf *bytes.Buffer, v any) error {
	buf.WriteString("<value>")
	if err := encodeReflect(buf, reflect.ValueOf(v)); err != nil {
		return err
	}
	buf.WriteString("</value>")
	return nil
}

func encodeReflect(buf *bytes.Buffer, rv reflect.Value) error {
	if !rv.IsValid() {
		buf.WriteString("<nil/>")
		return nil
	}
	switch rv.Type() {
	case timeType:
		t := rv.Interface().(time.Time)
		writeScalar(buf, "dateTime.iso8601", t.Format(DateTimeLayout))
		return nil
	case numberType:
		n := rv.Interface().(json.Number)
		if i, err := n.Int64(); err == nil {
			writeInt(buf, i)
			return nil
		}
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("xmlrpc: invalid number %q", n)
		}
		writeScalar(buf, "double", strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			buf.WriteString("<nil/>")
			return nil
		}
		return encodeReflect(buf, rv.Elem())
	case reflect.Bool:
		if rv.Bool() {
			writeScalar(buf, "boolean", "1")
		} else {
			writeScalar(buf, "boolean", "0")
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		writeInt(buf, rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return fmt.Errorf("xmlrpc: integer %d overflows i8", u)
		}
		writeInt(buf, int64(u))
	case reflect.Float32, reflect.Float64:
		writeScalar(buf, "double", strconv.FormatFloat(rv.Float(), 'f', -1, 64))
	case reflect.String:
		buf.WriteString("<string>")
		if err := xml.EscapeText(buf, []byte(rv.String())); err != nil {
			return err
		}
		buf.WriteString("</string>")
	case reflect.Slice:
		if rv.IsNil() {
			buf.WriteString("<nil/>")
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			writeScalar(buf, "base64", base64.StdEncoding.EncodeToString(rv.Bytes()))
			return nil
		}
		return encodeArray(buf, rv)
	case reflect.Array:
		return encodeArray(buf, rv)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("xmlrpc: unsupported map key type %s", rv.Type().Key())
		}
		if rv.IsNil() {
			buf.WriteString("<nil/>")
			return nil
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		buf.WriteString("<struct>")
		for _, k := range keys {
			if err := encodeMember(buf, k, rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()))); err != nil {
				return err
			}
		}
		buf.WriteString("</struct>")
	case reflect.Struct:
		buf.WriteString("<struct>")
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			name, omitEmpty := fieldName(sf)
			if name == "" {
				continue
			}
			fv := rv.Field(i)
			if omitEmpty && fv.IsZero() {
				continue
			}
			if err := encodeMember(buf, name, fv); err != nil {
				return err
			}
		}
		buf.WriteString("</struct>")
	default:
		return fmt.Errorf("xmlrpc: unsupported type %s", rv.Type())
	}
	return nil
}

func encodeArray(buf *bytes.Buffer, rv reflect.Value) error {
	buf.WriteString("<array><data>")
	for i := 0; i < rv.Len(); i++ {
		buf.WriteString("<value>")
		if err := encodeReflect(buf, rv.Index(i)); err != nil {
			return err
		}
		buf.WriteString("</value>")
	}
	buf.WriteString("</data></array>")
	return nil
}

func encodeMember(buf *bytes.Buffer, name string, rv reflect.Value) error {
	buf.WriteString("<member><name>")
	if err := xml.EscapeText(buf, []byte(name)); err != nil {
		return err
	}
	buf.WriteString("</name><value>")
	if err := encodeReflect(buf, rv); err != nil {
		return err
	}
	buf.WriteString("</value></member>")
	return nil
}

func fieldName(sf reflect.StructField) (string, bool) {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	parts := strings.Split(tag, ",")
	name := parts[0]
	if name == "" {
		name = sf.Name
	}
	omitEmpty := false
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty
}

func writeInt(buf *bytes.Buffer, n int64) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		writeScalar(buf, "i8", strconv.FormatInt(n, 10))
		return
	}
	writeScalar(buf, "int", strconv.FormatInt(n, 10))
}

func writeScalar(buf *bytes.Buffer, typ, text string) {
	buf.WriteString("<" + typ + ">" + text + "</" + typ + ">")
}
