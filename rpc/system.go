package rpc

import (
	"context"
	"encoding/json"
	"reflect"
	"time"
)

// MulticallMethod is the XML-RPC batch entry point. It is handled by the
// XML-RPC codec, never registered, so calling it on JSON-RPC is MethodNotFound.
const MulticallMethod = "system.multicall"

// RegisterSystemMethods adds the introspection procedures
// system.listMethods, system.methodHelp and system.methodSignature to reg.
func RegisterSystemMethods(reg *Registry) error {
	listMethods := func(ctx context.Context) []string {
		protocol := ProtocolFromContext(ctx)
		names := []string{}
		for _, name := range reg.Names() {
			if p, ok := reg.Lookup(name); ok && (protocol == 0 || p.Accepts(protocol)) {
				names = append(names, name)
			}
		}
		if protocol == XMLRPC {
			names = append(names, MulticallMethod)
		}
		return names
	}
	methodHelp := func(name string) (string, error) {
		p, ok := reg.Lookup(name)
		if !ok {
			return "", NewMethodNotFoundError(name)
		}
		return p.Doc, nil
	}
	methodSignature := func(name string) ([][]string, error) {
		p, ok := reg.Lookup(name)
		if !ok {
			return nil, NewMethodNotFoundError(name)
		}
		return [][]string{Signature(p)}, nil
	}

	if err := reg.Register("system.listMethods", listMethods,
		Doc("Return the names of all published methods.")); err != nil {
		return err
	}
	if err := reg.Register("system.methodHelp", methodHelp, ParamNames("method_name"),
		Doc("Return the documentation of the given method.")); err != nil {
		return err
	}
	return reg.Register("system.methodSignature", methodSignature, ParamNames("method_name"),
		Doc("Return the signature of the given method: the result type followed by parameter types."))
}

// Signature returns p's XML-RPC style signature: the result type name
// followed by one name per parameter.
func Signature(p *Procedure) []string {
	sig := []string{TypeName(p.result)}
	for _, t := range p.ParamTypes() {
		sig = append(sig, TypeName(t))
	}
	return sig
}

var (
	timeType   = reflect.TypeFor[time.Time]()
	numberType = reflect.TypeFor[json.Number]()
)

// TypeName maps a Go type to its XML-RPC type name.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "undef"
	}
	switch t {
	case timeType:
		return "dateTime.iso8601"
	case numberType:
		return "double"
	}
	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "double"
	case reflect.String:
		return "string"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "base64"
		}
		return "array"
	case reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "struct"
	case reflect.Pointer:
		return TypeName(t.Elem())
	}
	return "undef"
}
