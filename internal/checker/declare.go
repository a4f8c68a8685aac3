package checker

import (
	"context"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/diagnostic"
	"github.com/ragazzi-robotics/ragaz/internal/generics"
	"github.com/ragazzi-robotics/ragaz/internal/position"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
	"github.com/ragazzi-robotics/ragaz/internal/traits"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// ====== Declaration Phases ======

// collect binds every top-level name of m so that later phases may refer
// to definitions in any order.
func (c *Checker) collect(ctx context.Context, scope *symbols.Scope, m *ast.Module) {
	for _, s := range m.Body {
		switch d := s.(type) {
		case *ast.ClassDef:
			sym := scope.DeclareType(symbols.SymbolClass, &types.Named{Name: d.Name, Kind: types.NamedClass}, d, d.Span)
			c.info.Defs[d] = sym
		case *ast.TraitDef:
			sym := scope.DeclareType(symbols.SymbolTrait, &types.Named{Name: d.Name, Kind: types.NamedTrait}, d, d.Span)
			c.info.Defs[d] = sym
		case *ast.AliasDef:
			sym := scope.DeclareType(symbols.SymbolAlias, &types.Named{Name: d.Name, Kind: types.NamedAlias}, d, d.Span)
			c.info.Defs[d] = sym
		case *ast.FunctionDef:
			sym := scope.Declare(&symbols.Symbol{Name: d.Name, Kind: symbols.SymbolFunction, Decl: d, DeclSpan: d.Span})
			c.info.Defs[d] = sym
		}
	}
}

// declareTemplates resolves type parameter lists and registers generic
// classes, their methods and generic functions with the engine.
func (c *Checker) declareTemplates(ctx context.Context, scope *symbols.Scope, m *ast.Module) {
	for _, s := range m.Body {
		switch d := s.(type) {
		case *ast.ClassDef:
			if len(d.TypeParams) == 0 {
				continue
			}
			sym := c.info.Defs[d]
			params := c.typeParams(scope, d.TypeParams)
			sym.Named.Params = params
			tmpl, err := c.engine.Define(generics.TemplateClass, d.Name, params, nil, d)
			if err != nil {
				c.report(err, d.Span)
				continue
			}
			c.classTemplates[sym] = tmpl
			c.sites[tmpl] = &site{scope: scope}

			methods := make(map[string]*generics.Template, len(d.Methods))
			classScope := c.paramScope(scope, params)
			for _, fd := range d.Methods {
				mt, err := c.engine.DefineMethod(d.Name, params, fd, c.typeParams(classScope, fd.TypeParams))
				if err != nil {
					c.report(err, fd.Span)
					continue
				}
				methods[fd.Name] = mt
				c.sites[mt] = &site{scope: scope, owner: tmpl}
			}
			c.methodTemplates[tmpl] = methods

		case *ast.TraitDef:
			if len(d.TypeParams) > 0 {
				c.info.Defs[d].Named.Params = c.typeParams(scope, d.TypeParams)
			}

		case *ast.FunctionDef:
			if len(d.TypeParams) == 0 {
				continue
			}
			sym := c.info.Defs[d]
			tmpl, err := c.engine.Define(generics.TemplateFunction, d.Name, c.typeParams(scope, d.TypeParams), d, nil)
			if err != nil {
				c.report(err, d.Span)
				continue
			}
			c.funcTemplates[sym] = tmpl
			c.sites[tmpl] = &site{scope: scope}
		}
	}
}

func (c *Checker) declareAliases(ctx context.Context, scope *symbols.Scope, m *ast.Module) {
	for _, s := range m.Body {
		if d, ok := s.(*ast.AliasDef); ok {
			sym := c.info.Defs[d]
			sym.Named.Type = c.resolve(ctx, scope, d.Type)
			sym.Type = sym.Named.Type
		}
	}
}

// declareTraits registers trait method signatures in declaration order,
// which is also their dispatch slot order.
func (c *Checker) declareTraits(ctx context.Context, scope *symbols.Scope, m *ast.Module) {
	for _, s := range m.Body {
		d, ok := s.(*ast.TraitDef)
		if !ok {
			continue
		}
		named := c.info.Defs[d].Named
		if dup := duplicateParam(named.Params); dup != "" {
			c.report(&generics.DuplicateParamError{Name: dup, Def: d.Name}, d.Span)
		}
		traitScope := c.paramScope(scope, named.Params)

		sigs := make(map[string]*types.Function, len(d.Methods))
		slots := make([]string, 0, len(d.Methods))
		for _, fd := range d.Methods {
			if _, dup := sigs[fd.Name]; dup {
				c.errorf(diagnostic.ArgumentError, fd.Span, "method %s declared twice in trait %s", fd.Name, d.Name)
				continue
			}
			sigs[fd.Name] = c.signature(ctx, traitScope, fd)
			slots = append(slots, fd.Name)
		}
		c.registry.DeclareTrait(d.Name, named.Params, slots, sigs)
	}
}

func (c *Checker) declareClasses(ctx context.Context, scope *symbols.Scope, m *ast.Module) {
	for _, s := range m.Body {
		d, ok := s.(*ast.ClassDef)
		if !ok || len(d.TypeParams) > 0 {
			continue
		}
		sym := c.info.Defs[d]
		if _, done := c.classes[sym]; !done {
			c.declareClass(ctx, sym, d)
		}
	}
}

// declareFunctions resolves the signatures of non-generic functions and
// queues their bodies. Top-level statements form the module's entry
// function.
func (c *Checker) declareFunctions(ctx context.Context, scope *symbols.Scope, m *ast.Module) {
	var top []ast.Stmt
	for _, s := range m.Body {
		switch d := s.(type) {
		case *ast.FunctionDef:
			if len(d.TypeParams) > 0 {
				continue
			}
			sym := c.info.Defs[d]
			fn := c.newFunction(ctx, scope, d, d.Name, nil, nil)
			fn.Symbol = sym
			sym.Type = fn.Sig
			c.functions[sym] = fn
			c.pending = append(c.pending, fn)
		case *ast.ClassDef, *ast.TraitDef, *ast.AliasDef:
		default:
			top = append(top, s)
		}
	}
	if len(top) == 0 {
		return
	}

	def := &ast.FunctionDef{Name: "__main__", Body: top, Span: m.Span}
	fn := c.newFunction(ctx, scope, def, def.Name, nil, nil)
	fn.TopLevel = true
	c.pending = append(c.pending, fn)
}

// ====== Type Parameters ======

// typeParams resolves a parameter list. A default may mention the
// parameters before it.
func (c *Checker) typeParams(scope *symbols.Scope, tps []*ast.TypeParam) []types.TypeParam {
	if len(tps) == 0 {
		return nil
	}
	out := make([]types.TypeParam, len(tps))
	sc := symbols.NewScope(scope, symbols.ScopeBlock, "")
	for i, tp := range tps {
		out[i].Name = tp.Name
		if tp.Default != nil {
			d, err := types.Resolve(tp.Default, sc)
			if err != nil {
				c.report(err, tp.Default.GetSpan())
			} else {
				out[i].Default = d
			}
		}
		declareParam(sc, tp.Name)
	}
	return out
}

// paramScope opens a scope binding each parameter name to its Param type.
func (c *Checker) paramScope(parent *symbols.Scope, params []types.TypeParam) *symbols.Scope {
	if len(params) == 0 {
		return parent
	}
	sc := symbols.NewScope(parent, symbols.ScopeBlock, "")
	for _, p := range params {
		declareParam(sc, p.Name)
	}
	return sc
}

func declareParam(scope *symbols.Scope, name string) {
	scope.DeclareType(symbols.SymbolTypeParam, &types.Named{Name: name, Kind: types.NamedParam, Type: &types.Param{Name: name}}, nil, position.Span{})
}

func duplicateParam(params []types.TypeParam) string {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if seen[p.Name] {
			return p.Name
		}
		seen[p.Name] = true
	}
	return ""
}

// ====== Signatures ======

// signature resolves a function's parameter and result types. The self
// parameter of a method is not part of the signature.
func (c *Checker) signature(ctx context.Context, scope *symbols.Scope, fd *ast.FunctionDef) *types.Function {
	sig := &types.Function{Result: types.Void}
	for i, p := range fd.Params {
		if i == 0 && fd.IsMethod() {
			continue
		}
		sig.Params = append(sig.Params, c.paramType(ctx, scope, p))
	}
	if fd.Result != nil {
		sig.Result = c.resolve(ctx, scope, fd.Result)
	}
	return sig
}

func (c *Checker) paramType(ctx context.Context, scope *symbols.Scope, p *ast.Param) types.Type {
	if p.Type == nil {
		c.errorf(diagnostic.UnknownTypeError, p.Span, "parameter %s needs a type annotation", p.Name)
		return c.fresh()
	}
	return c.resolve(ctx, scope, p.Type)
}

// formalsOf returns the signature of a function or method template in
// terms of its own parameters.
func (c *Checker) formalsOf(ctx context.Context, tmpl *generics.Template) *types.Function {
	if sig, ok := c.formals[tmpl]; ok {
		return sig
	}
	st := c.sites[tmpl]
	sig := c.signature(ctx, c.paramScope(st.scope, tmpl.Params), tmpl.Func)
	c.formals[tmpl] = sig
	return sig
}

// newFunction creates a concrete function, declaring its parameters in a
// fresh function scope. The body is not checked.
func (c *Checker) newFunction(ctx context.Context, scope *symbols.Scope, fd *ast.FunctionDef, name string, cls *Class, spec *generics.Specialization) *Function {
	fscope := symbols.NewScope(scope, symbols.ScopeFunction, name)
	fn := &Function{Def: fd, Name: name, Module: scope.Module(), Class: cls, Spec: spec, Scope: fscope, Extern: fd.Extern}
	c.info.Scopes[fd] = fscope

	sig := &types.Function{Result: types.Void}
	for i, p := range fd.Params {
		var t types.Type
		mutable := p.Mutable
		if i == 0 && cls != nil && fd.IsMethod() {
			fn.MutSelf = p.Mutable || fd.Name == "__init__"
			mutable = fn.MutSelf
			if fd.Name == "__del__" {
				t = cls.Type
			} else {
				t = types.RefTo(cls.Type, fn.MutSelf)
			}
		} else {
			t = c.paramType(ctx, fscope, p)
			sig.Params = append(sig.Params, t)
		}
		sym := fscope.Declare(&symbols.Symbol{
			Name:     p.Name,
			Kind:     symbols.SymbolParameter,
			Type:     t,
			Mutable:  mutable,
			Decl:     p,
			DeclSpan: p.Span,
		})
		c.info.Defs[p] = sym
		fn.Params = append(fn.Params, sym)
	}
	if fd.Result != nil {
		sig.Result = c.resolve(ctx, fscope, fd.Result)
	}
	fn.Sig = sig

	c.log.Debug("declare function", "name", fn.LinkName(), "sig", sig.String())
	return fn
}

// ====== Classes ======

// newClass registers a class under its type name. Class types are
// program-wide, so two user modules may not declare the same name.
func (c *Checker) newClass(def *ast.ClassDef, module string, inst *types.Instance, spec *generics.Specialization) *Class {
	cls := &Class{
		Name:    inst.String(),
		Module:  module,
		Type:    inst,
		Def:     def,
		Spec:    spec,
		methods: make(map[string]*methodEntry),
		fields:  make(map[string]*Field),
	}
	if prev, ok := c.byType[cls.Name]; ok && prev.Module != "" && module != "" && prev.Module != module {
		c.errorf(diagnostic.ArgumentError, def.Span, "class %s is already declared in module %s", cls.Name, prev.Module)
	}
	c.info.Classes = append(c.info.Classes, cls)
	c.byType[inst.String()] = cls
	return cls
}

// declareClass builds a non-generic class. It is registered before its
// members are resolved so that fields may refer to the class itself.
func (c *Checker) declareClass(ctx context.Context, sym *symbols.Symbol, def *ast.ClassDef) *Class {
	cls := c.newClass(def, sym.Scope.Module(), &types.Instance{Name: def.Name}, nil)
	c.classes[sym] = cls
	c.fillClass(ctx, sym.Scope, cls, nil)
	return cls
}

// fillClass resolves attributes, methods and trait bases of cls. tmpl is
// the class template when cls is a specialization.
func (c *Checker) fillClass(ctx context.Context, scope *symbols.Scope, cls *Class, tmpl *generics.Template) {
	def := cls.Def
	for i, f := range def.Fields {
		if _, dup := cls.fields[f.Name]; dup {
			c.errorf(diagnostic.ArgumentError, f.Span, "attribute %s declared twice in class %s", f.Name, cls.Name)
			continue
		}
		field := &Field{Name: f.Name, Type: c.resolve(ctx, scope, f.Type), Index: i, Mutable: f.Mutable}
		cls.fields[f.Name] = field
		cls.Fields = append(cls.Fields, field)
	}

	for _, fd := range def.Methods {
		if !fd.IsMethod() {
			c.errorf(diagnostic.ArgumentError, fd.Span, "method %s of class %s must take self as its first parameter", fd.Name, cls.Name)
			continue
		}
		if _, dup := cls.methods[fd.Name]; dup {
			c.errorf(diagnostic.ArgumentError, fd.Span, "method %s declared twice in class %s", fd.Name, cls.Name)
			continue
		}
		entry := c.methodEntry(ctx, scope, cls, fd, tmpl)
		if entry == nil {
			continue
		}
		if (fd.Name == "__init__" || fd.Name == "__del__") && !types.IsVoid(entry.method.Sig.Result) {
			c.errorf(diagnostic.TypeMismatchError, fd.Span, "%s.%s must return void, not %s", cls.Name, fd.Name, entry.method.Sig.Result)
		}
		cls.methods[fd.Name] = entry
	}

	for _, b := range def.Bases {
		bt := c.resolve(ctx, scope, b)
		tr, ok := bt.(*types.Trait)
		if !ok {
			if !types.IsUnresolved(bt) {
				c.errorf(diagnostic.TypeMismatchError, b.GetSpan(), "class %s can only derive from traits, not %s", cls.Name, bt)
			}
			continue
		}
		c.implement(cls, tr, b)
	}
}

func (c *Checker) methodEntry(ctx context.Context, scope *symbols.Scope, cls *Class, fd *ast.FunctionDef, tmpl *generics.Template) *methodEntry {
	entry := &methodEntry{decl: fd}
	symbol := cls.Name + "." + fd.Name
	mutSelf := fd.Params[0].Mutable || fd.Name == "__init__"

	switch {
	case tmpl != nil:
		mt, ok := c.methodTemplates[tmpl][fd.Name]
		if !ok {
			return nil
		}
		entry.tmpl = mt
		entry.classArgs = cls.Spec.Args
	case len(fd.TypeParams) > 0:
		mt, err := c.engine.DefineMethod(cls.Name, nil, fd, c.typeParams(scope, fd.TypeParams))
		if err != nil {
			c.report(err, fd.Span)
			return nil
		}
		c.sites[mt] = &site{scope: scope, cls: cls}
		entry.tmpl = mt
	}

	var sig *types.Function
	if entry.tmpl == nil {
		entry.fn = c.newFunction(ctx, scope, fd, symbol, cls, nil)
		sig = entry.fn.Sig
		c.pending = append(c.pending, entry.fn)
	} else {
		// Method parameters stay generic in the recorded signature.
		names := make([]types.TypeParam, len(fd.TypeParams))
		for i, tp := range fd.TypeParams {
			names[i] = types.TypeParam{Name: tp.Name}
		}
		sig = c.signature(ctx, c.paramScope(scope, names), fd)
	}

	entry.method = &traits.Method{Name: fd.Name, Sig: sig, Symbol: symbol, MutSelf: mutSelf, Data: entry}
	if entry.fn != nil {
		c.info.MethodFuncs[entry.method] = entry.fn
	}
	return entry
}

// implement checks that cls provides every method of tr with the
// signature tr requires and registers the impl.
func (c *Checker) implement(cls *Class, tr *types.Trait, base ast.TypeExpr) {
	info, ok := c.registry.Trait(tr.Name)
	if !ok {
		c.errorf(diagnostic.UnknownTypeError, base.GetSpan(), "unknown trait %s", tr.Name)
		return
	}

	methods := make(map[string]*traits.Method, len(info.Slots))
	complete := true
	for _, name := range info.Slots {
		want, _, _ := info.Sig(tr, name)
		entry, ok := cls.methods[name]
		if !ok {
			c.report(&traits.NoImplementationError{Receiver: cls.Type, Trait: tr, Method: name}, base.GetSpan())
			complete = false
			continue
		}
		if !types.Equal(entry.method.Sig, want) {
			c.errorf(diagnostic.TypeMismatchError, entry.decl.Span, "method %s.%s has signature %s, but %s requires %s",
				cls.Name, name, entry.method.Sig, tr, want)
			complete = false
			continue
		}
		methods[name] = entry.method
	}
	if !complete {
		return
	}

	if err := c.registry.RegisterImpl(tr, cls.Type, methods); err != nil {
		c.report(err, base.GetSpan())
		return
	}
	cls.Traits = append(cls.Traits, tr)
	c.log.Debug("register impl", "trait", tr.String(), "class", cls.Name)
}

// Method implements traits.MethodSource over the concrete classes.
func (c *Checker) Method(concrete types.Type, name string) (*traits.Method, bool) {
	cls, ok := c.byType[concrete.String()]
	if !ok {
		return nil, false
	}
	entry, ok := cls.methods[name]
	if !ok {
		return nil, false
	}
	return entry.method, true
}
