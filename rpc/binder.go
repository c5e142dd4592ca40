package rpc

import (
	"fmt"
	"sort"
	"strings"
)

// BoundArgs are a call's parameters assigned to a procedure's formal
// parameters. Values are still untyped; conversion happens at execution.
type BoundArgs struct {
	// Values holds one value per fixed parameter, in declaration order.
	Values []any
	// Variadic holds the trailing positional values of a variadic handler.
	Variadic []any
	// Kwargs holds unmatched keywords of a variable-keyword procedure.
	Kwargs Kwargs
}

// Bind resolves params against p's signature. It checks shape only: arity,
// names and unknown keys. Failures are InvalidParams.
func Bind(p *Procedure, params Params) (*BoundArgs, *Error) {
	switch params.Kind {
	case ParamsNone:
		return bindPositional(p, nil)
	case ParamsPositional:
		return bindPositional(p, params.Positional)
	case ParamsNamed:
		return bindNamed(p, params.Named)
	}
	return nil, NewInvalidParamsError("unsupported params")
}

func bindPositional(p *Procedure, values []any) (*BoundArgs, *Error) {
	fixed := len(p.params)
	if len(values) < fixed {
		return nil, NewInvalidParamsError(fmt.Sprintf("%s expects %d arguments, got %d", p.Name, fixed, len(values)))
	}
	if len(values) > fixed && p.variadic == nil {
		return nil, NewInvalidParamsError(fmt.Sprintf("%s expects %d arguments, got %d", p.Name, fixed, len(values)))
	}
	args := &BoundArgs{Values: make([]any, fixed)}
	copy(args.Values, values)
	if p.variadic != nil {
		args.Variadic = values[fixed:]
	}
	if p.takesKw {
		args.Kwargs = Kwargs{}
	}
	return args, nil
}

func bindNamed(p *Procedure, named map[string]any) (*BoundArgs, *Error) {
	if p.Convention == PositionalOnly && len(named) > 0 {
		return nil, NewInvalidParamsError(p.Name + " does not accept named parameters")
	}
	args := &BoundArgs{Values: make([]any, len(p.params))}
	var missing []string
	for i, prm := range p.params {
		v, ok := named[prm.name]
		if !ok || prm.name == "" {
			missing = append(missing, prm.name)
			continue
		}
		args.Values[i] = v
	}
	if len(missing) > 0 {
		return nil, NewInvalidParamsError(fmt.Sprintf("%s: missing parameters %s", p.Name, strings.Join(missing, ", ")))
	}

	var unknown []string
	if p.takesKw {
		args.Kwargs = Kwargs{}
	}
	for key, v := range named {
		if p.declares(key) {
			continue
		}
		if p.takesKw {
			args.Kwargs[key] = v
			continue
		}
		unknown = append(unknown, key)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, NewInvalidParamsError(fmt.Sprintf("%s: unexpected parameters %s", p.Name, strings.Join(unknown, ", ")))
	}
	return args, nil
}

func (p *Procedure) declares(name string) bool {
	for _, prm := range p.params {
		if prm.name == name && name != "" {
			return true
		}
	}
	return false
}
