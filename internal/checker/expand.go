package checker

import (
	"context"
	"fmt"

	"github.com/ragazzi-robotics/ragaz/internal/generics"
	"github.com/ragazzi-robotics/ragaz/internal/position"
	"github.com/ragazzi-robotics/ragaz/internal/traits"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// Expand implements generics.Expander. The specialization's Data and Type
// are set before any member or body is checked, so recursive uses of the
// same key resolve to the entry being built. Diagnostics found in the body
// are reported directly and do not fail the specialization, except a
// runaway instantiation chain: it fails every specialization on the chain
// and is reported once, at the request site outside all of them.
func (c *Checker) Expand(ctx context.Context, spec *generics.Specialization) error {
	st, ok := c.sites[spec.Template]
	if !ok {
		return fmt.Errorf("expand %s: template has no declaration site", spec.Name)
	}
	c.runaway = append(c.runaway, nil)
	defer func() { c.runaway = c.runaway[:len(c.runaway)-1] }()

	switch spec.Template.Kind {
	case generics.TemplateClass:
		inst := &types.Instance{Name: spec.Template.Name, Args: spec.Args}
		cls := c.newClass(spec.Class, st.scope.Module(), inst, spec)
		spec.Type, spec.Data = inst, cls
		c.fillClass(ctx, st.scope, cls, spec.Template)

	case generics.TemplateFunction:
		fn := c.newFunction(ctx, st.scope, spec.Func, spec.Name, nil, spec)
		spec.Type, spec.Data = fn.Sig, fn
		c.checkFunction(ctx, fn)

	case generics.TemplateMethod:
		cls := st.cls
		if st.owner != nil {
			owner, err := c.engine.Instantiate(ctx, st.owner, spec.Args[:spec.Template.OwnerArity])
			if owner == nil || owner.Data == nil {
				return err
			}
			cls = owner.Data.(*Class)
		}
		fn := c.newFunction(ctx, st.scope, spec.Func, spec.Name, cls, spec)
		spec.Type, spec.Data = fn.Sig, fn
		c.checkFunction(ctx, fn)
	}
	if de := c.runaway[len(c.runaway)-1]; de != nil {
		return de
	}
	return nil
}

// methodFunction returns the concrete function of a method entry,
// specializing it with the class arguments and methodArgs if needed.
func (c *Checker) methodFunction(ctx context.Context, entry *methodEntry, methodArgs []types.Type) (*Function, error) {
	if entry.fn != nil {
		return entry.fn, nil
	}
	args := make([]types.Type, 0, len(entry.classArgs)+len(methodArgs))
	args = append(args, entry.classArgs...)
	args = append(args, methodArgs...)

	spec, err := c.engine.Instantiate(ctx, entry.tmpl, args)
	if spec == nil || spec.Data == nil {
		if err == nil {
			err = fmt.Errorf("method %s could not be instantiated", entry.method.Symbol)
		}
		return nil, err
	}
	fn := spec.Data.(*Function)
	if entry.tmpl.OwnerArity == len(entry.tmpl.Params) {
		entry.fn = fn
		c.info.MethodFuncs[entry.method] = fn
	}
	return fn, err
}

// table builds the dispatch table for binding a concrete value to tr and
// makes sure every entry has a concrete function.
func (c *Checker) table(ctx context.Context, tr *types.Trait, concrete types.Type, span position.Span) (*traits.DispatchTable, bool) {
	table, err := c.registry.Table(tr, concrete)
	if err != nil {
		c.report(err, span)
		return nil, false
	}
	for _, m := range table.Entries {
		entry, ok := m.Data.(*methodEntry)
		if !ok {
			continue
		}
		if _, err := c.methodFunction(ctx, entry, nil); err != nil {
			c.report(err, span)
			return nil, false
		}
	}
	return table, true
}

// MethodFunc returns the concrete function of a method record, if it exists.
func (i *Info) MethodFunc(m *traits.Method) (*Function, bool) {
	fn, ok := i.MethodFuncs[m]
	return fn, ok
}
