package endpoint

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// defaultFieldLimit caps a decoded value when the field has no maxLength tag.
var defaultFieldLimit = 16 * 1024

// Unmarshal populates the struct pointed to by dst from r.
//
// Fields are filled according to their tags:
//   - `path:"name"`   r.PathValue(name)
//   - `query:"name"`  URL query parameter
//   - `header:"name"` request header
//   - `body:""`       the whole request body
//
// An empty name defaults to the lowercased field name. `maxLength:"n"`
// bounds the value in bytes; it defaults to 16KB and "0" disables the check.
// Missing values leave the field unchanged.
//
// Supported field types are string, []byte and []string.
func Unmarshal(r *http.Request, dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}
	v = v.Elem()
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: %s is not a struct", v.Type()))
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		values, err := fetch(r, sf)
		if err != nil {
			return err
		}
		if values == nil {
			continue
		}
		limit, err := fieldLimit(sf)
		if err != nil {
			return Error(http.StatusInternalServerError, "", err)
		}
		for _, val := range values {
			if limit > 0 && len(val) > limit {
				return Error(http.StatusBadRequest, fmt.Sprintf("%s exceeds %d bytes", sf.Name, limit), nil)
			}
		}
		if err := setField(v.Field(i), values); err != nil {
			return Error(http.StatusBadRequest, fmt.Sprintf("invalid %s", sf.Name), err)
		}
	}
	return nil
}

// tagName returns the source name sf declares under key.
func tagName(sf reflect.StructField, key string) (string, bool) {
	name, ok := sf.Tag.Lookup(key)
	if !ok || name == "-" {
		return "", false
	}
	if name == "" {
		name = strings.ToLower(sf.Name)
	}
	return name, true
}

// fetch returns the raw values for sf, nil when the request carries none.
func fetch(r *http.Request, sf reflect.StructField) ([][]byte, error) {
	if name, ok := tagName(sf, "path"); ok {
		if s := r.PathValue(name); s != "" {
			return [][]byte{[]byte(s)}, nil
		}
		return nil, nil
	}
	if name, ok := tagName(sf, "query"); ok {
		return strings2bytes(r.URL.Query()[name]), nil
	}
	if name, ok := tagName(sf, "header"); ok {
		return strings2bytes(r.Header.Values(name)), nil
	}
	if _, ok := sf.Tag.Lookup("body"); ok {
		if r.Body == nil {
			return nil, nil
		}
		b, err := io.ReadAll(r.Body)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, Error(http.StatusRequestEntityTooLarge, "", err)
			}
			return nil, Error(http.StatusBadRequest, "failed to read body", err)
		}
		return [][]byte{b}, nil
	}
	return nil, nil
}

func strings2bytes(ss []string) [][]byte {
	if len(ss) == 0 {
		return nil
	}
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func fieldLimit(sf reflect.StructField) (int, error) {
	raw, ok := sf.Tag.Lookup("maxLength")
	if !ok {
		return defaultFieldLimit, nil
	}
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("endpoint: decode: invalid maxLength %q on %s", raw, sf.Name)
	}
	return n, nil
}

func setField(field reflect.Value, values [][]byte) error {
	switch {
	case field.Kind() == reflect.String:
		field.SetString(string(values[0]))
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Uint8:
		field.SetBytes(values[0])
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		out := reflect.MakeSlice(field.Type(), len(values), len(values))
		for i, b := range values {
			out.Index(i).SetString(string(b))
		}
		field.Set(out)
	default:
		return fmt.Errorf("unsupported type %s", field.Type())
	}
	return nil
}
