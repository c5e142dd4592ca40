package rpc

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	ErrDuplicateMethod = errors.New("rpc: duplicate method")
	ErrRegistryFrozen  = errors.New("rpc: registry is frozen")
	ErrInvalidHandler  = errors.New("rpc: invalid handler")
)

// Convention is the parameter binding mode of a procedure.
type Convention int

const (
	// PositionalOnly procedures accept positional parameters only.
	PositionalOnly Convention = iota
	// KeywordCapable procedures declared parameter names and accept either form.
	KeywordCapable
	// VariableKeyword procedures also receive unmatched keywords in a Kwargs bag.
	VariableKeyword
)

func (c Convention) String() string {
	switch c {
	case PositionalOnly:
		return "positional-only"
	case KeywordCapable:
		return "keyword-capable"
	case VariableKeyword:
		return "variable-keyword-capable"
	}
	return fmt.Sprintf("Convention(%d)", int(c))
}

// Kwargs is the keyword bag passed to variable-keyword procedures. Declare it
// as the last handler parameter.
type Kwargs map[string]any

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
	kwargsType  = reflect.TypeFor[Kwargs]()
)

type param struct {
	name  string
	typ   reflect.Type
	index int // field index when the handler takes a params struct
}

// Procedure is a registered handler together with its binding metadata.
// It is immutable once registered.
type Procedure struct {
	Name       string
	Convention Convention
	Doc        string

	protocols  []Protocol
	predicates []Predicate
	names      []string

	fn           reflect.Value
	takesCtx     bool
	params       []param
	structParams bool
	fields       reflect.Type // params struct type when structParams is set
	variadic     reflect.Type // element type of a variadic tail, nil otherwise
	takesKw      bool
	result       reflect.Type // nil when the handler returns no value
	returnErr    bool
}

// ParamNames returns the declared parameter names, nil for positional-only
// procedures.
func (p *Procedure) ParamNames() []string {
	if p.names == nil {
		return nil
	}
	return slices.Clone(p.names)
}

// ParamTypes returns the Go types of the fixed parameters, followed by the
// variadic element type when present.
func (p *Procedure) ParamTypes() []reflect.Type {
	types := make([]reflect.Type, 0, len(p.params)+1)
	for _, prm := range p.params {
		types = append(types, prm.typ)
	}
	if p.variadic != nil {
		types = append(types, p.variadic)
	}
	return types
}

// ResultType returns the handler's result type, nil when it has none.
func (p *Procedure) ResultType() reflect.Type {
	return p.result
}

// Accepts reports whether the procedure is published on protocol.
func (p *Procedure) Accepts(protocol Protocol) bool {
	return len(p.protocols) == 0 || slices.Contains(p.protocols, protocol)
}

// Option configures a procedure at registration.
type Option func(*Procedure)

// ParamNames declares the names of the handler's parameters, in order, excluding
// the context, a variadic tail and the Kwargs bag. Naming the parameters
// makes the procedure callable with keyword parameters.
func ParamNames(names ...string) Option {
	return func(p *Procedure) {
		p.names = names
	}
}

// Doc sets the help text returned by system.methodHelp.
func Doc(text string) Option {
	return func(p *Procedure) {
		p.Doc = text
	}
}

// Protocols restricts the protocols the procedure is published on.
func Protocols(protocols ...Protocol) Option {
	return func(p *Procedure) {
		p.protocols = append(p.protocols, protocols...)
	}
}

// StructParams declares that the handler's single argument is a params
// struct. Its exported fields, named by their json tags, are the procedure's
// parameters in declaration order.
func StructParams() Option {
	return func(p *Procedure) {
		p.structParams = true
	}
}

// Require adds access predicates that must all hold for the caller.
func Require(predicates ...Predicate) Option {
	return func(p *Procedure) {
		p.predicates = append(p.predicates, predicates...)
	}
}

// Registry holds the published procedures. It is populated at startup and
// frozen before requests are served; lookups on a frozen registry take no lock.
type Registry struct {
	mu      sync.RWMutex
	frozen  atomic.Bool
	methods map[string]*Procedure
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]*Procedure)}
}

// Register publishes handler under name.
//
// handler must be a func of the shape
//
//	func([ctx context.Context,] args... [, kw rpc.Kwargs]) ([result,] [error])
//
// The calling convention is derived from that shape and the options.
func (r *Registry) Register(name string, handler any, opts ...Option) error {
	if name == "" {
		return fmt.Errorf("%w: empty method name", ErrInvalidHandler)
	}
	p, err := newProcedure(name, reflect.ValueOf(handler), opts)
	if err != nil {
		return err
	}
	return r.add(p)
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, handler any, opts ...Option) {
	if err := r.Register(name, handler, opts...); err != nil {
		panic(err)
	}
}

// RegisterService registers every exported method of receiver with a valid
// handler shape as a procedure named "namespace.Method" ("Method" when
// namespace is empty). Methods with other shapes are skipped.
//
// A method of the shape func(context.Context, S) (R, error) with S a struct
// takes a params struct (see StructParams). A blank field tagged `rpc:"name"` overrides the
// method name:
//
//	type AddParams struct {
//		_ struct{} `rpc:"add"`
//		A int      `json:"a"`
//		B int      `json:"b"`
//	}
//
// Other methods are positional-only.
func (r *Registry) RegisterService(namespace string, receiver any) error {
	val := reflect.ValueOf(receiver)
	typ := val.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if !method.IsExported() {
			continue
		}
		fn := val.Method(i)
		methodName := method.Name
		var opts []Option
		if st, ok := paramsStruct(fn.Type()); ok {
			opts = append(opts, StructParams())
			if override := methodOverride(st); override != "" {
				methodName = override
			}
		}
		name := methodName
		if namespace != "" {
			name = namespace + "." + methodName
		}
		p, err := newProcedure(name, fn, opts)
		if err != nil {
			continue
		}
		if err := r.add(p); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) add(p *Procedure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return fmt.Errorf("%w: cannot register %s", ErrRegistryFrozen, p.Name)
	}
	if _, exists := r.methods[p.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMethod, p.Name)
	}
	r.methods[p.Name] = p
	return nil
}

// Freeze ends registration. It is idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}

// Lookup returns the procedure registered under name.
func (r *Registry) Lookup(name string) (*Procedure, bool) {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	p, ok := r.methods[name]
	return p, ok
}

// Names returns the registered method names in sorted order.
func (r *Registry) Names() []string {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newProcedure inspects fn and builds the procedure's binding metadata.
func newProcedure(name string, fn reflect.Value, opts []Option) (*Procedure, error) {
	if !fn.IsValid() || fn.Kind() != reflect.Func || fn.IsNil() {
		return nil, fmt.Errorf("%w: %s: handler must be a non-nil func", ErrInvalidHandler, name)
	}
	p := &Procedure{Name: name, fn: fn}
	for _, opt := range opts {
		opt(p)
	}

	ft := fn.Type()
	in := make([]reflect.Type, ft.NumIn())
	for i := range in {
		in[i] = ft.In(i)
	}
	if len(in) > 0 && in[0] == contextType {
		p.takesCtx = true
		in = in[1:]
	}
	if len(in) > 0 && in[len(in)-1] == kwargsType {
		p.takesKw = true
		in = in[:len(in)-1]
	}
	if ft.IsVariadic() {
		if p.takesKw || len(in) == 0 {
			return nil, fmt.Errorf("%w: %s: invalid variadic signature", ErrInvalidHandler, name)
		}
		p.variadic = in[len(in)-1].Elem()
		in = in[:len(in)-1]
	}
	for _, t := range in {
		if t == contextType || t == kwargsType {
			return nil, fmt.Errorf("%w: %s: misplaced %s parameter", ErrInvalidHandler, name, t)
		}
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			p.returnErr = true
		} else {
			p.result = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("%w: %s: second result must be error", ErrInvalidHandler, name)
		}
		p.result = ft.Out(0)
		p.returnErr = true
	default:
		return nil, fmt.Errorf("%w: %s: too many results", ErrInvalidHandler, name)
	}

	if p.structParams {
		if len(in) != 1 || in[0].Kind() != reflect.Struct || p.names != nil || p.variadic != nil {
			return nil, fmt.Errorf("%w: %s: params struct must be the only argument", ErrInvalidHandler, name)
		}
		p.fields = in[0]
		p.params = structFields(in[0])
		p.names = make([]string, len(p.params))
		for i, prm := range p.params {
			p.names[i] = prm.name
		}
		if p.takesKw {
			p.Convention = VariableKeyword
		} else {
			p.Convention = KeywordCapable
		}
		return p, nil
	}

	if p.names != nil && len(p.names) != len(in) {
		return nil, fmt.Errorf("%w: %s: %d parameter names for %d parameters", ErrInvalidHandler, name, len(p.names), len(in))
	}
	p.params = make([]param, len(in))
	for i, t := range in {
		p.params[i].typ = t
		if p.names != nil {
			p.params[i].name = p.names[i]
		}
	}

	switch {
	case p.takesKw:
		p.Convention = VariableKeyword
	case p.names != nil:
		p.Convention = KeywordCapable
	default:
		p.Convention = PositionalOnly
	}
	return p, nil
}

// paramsStruct reports whether ft has the params struct shape
// func(context.Context, S) (R, error).
func paramsStruct(ft reflect.Type) (reflect.Type, bool) {
	if ft.NumIn() != 2 || ft.In(0) != contextType || ft.NumOut() != 2 || ft.Out(1) != errorType {
		return nil, false
	}
	t := ft.In(1)
	return t, t.Kind() == reflect.Struct
}

func methodOverride(st reflect.Type) string {
	for i := 0; i < st.NumField(); i++ {
		if f := st.Field(i); f.Name == "_" {
			if tag := f.Tag.Get("rpc"); tag != "" {
				return tag
			}
		}
	}
	return ""
}

// structFields lists the bindable fields of a params struct. Fields are named
// by their json tag, or by the field name when untagged; "-" skips a field.
func structFields(st reflect.Type) []param {
	var params []param
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.Name == "_" || !f.IsExported() {
			continue
		}
		name := f.Name
		if tag := f.Tag.Get("json"); tag != "" {
			name = strings.Split(tag, ",")[0]
			if name == "-" {
				continue
			}
			if name == "" {
				name = f.Name
			}
		}
		params = append(params, param{name: name, typ: f.Type, index: i})
	}
	return params
}
