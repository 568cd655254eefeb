// Package expr compiles and evaluates the boolean conditions attached to
// edges, condition nodes and loop nodes.
//
// Conditions use the HCL native expression syntax. A single read-only
// variable, state, exposes the run data:
//
//	state.get("quality_score", 0) >= state.get("threshold", 70)
//	state.retries < 3 && !state["done"]
//
// The state accessor is the only callable; any other function call or
// variable is rejected at compile time. The operands of !, && and || are
// taken by their truthiness, so !state.get("done") holds for a missing key.
package expr

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/juju/errors"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

const (
	stateVar = "state"
	getFunc  = "get"
	// truthyFunc is only ever inserted by Compile, user calls to it are
	// rejected like any other function.
	truthyFunc = "truthy"
)

type Expression struct {
	src  string
	expr hclsyntax.Expression
}

// Compile parses src and checks that it only refers to the state variable
// and the state accessor.
func Compile(src string) (*Expression, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.NotValidf("empty expression")
	}
	normalized, err := normalize(src)
	if err != nil {
		return nil, errors.Annotatef(err, "expression %q", src)
	}

	e, diags := hclsyntax.ParseExpression([]byte(normalized), "condition", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, errors.NotValidf("expression %q: %s", src, diags.Error())
	}

	for _, traversal := range e.Variables() {
		if root := traversal.RootName(); root != stateVar {
			return nil, errors.NotValidf("expression %q: unknown variable %q", src, root)
		}
	}
	diags = hclsyntax.VisitAll(e, func(n hclsyntax.Node) hcl.Diagnostics {
		call, ok := n.(*hclsyntax.FunctionCallExpr)
		if !ok || call.Name == getFunc {
			return nil
		}
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Function calls are not allowed",
			Detail:   fmt.Sprintf("%q is not available, only state.get(key, default) is.", call.Name),
			Subject:  call.Range().Ptr(),
		}}
	})
	if diags.HasErrors() {
		return nil, errors.NotValidf("expression %q: %s", src, diags.Error())
	}

	coerceLogicOperands(e)
	return &Expression{src: src, expr: e}, nil
}

// coerceLogicOperands wraps the operands of !, && and || in truthy(), so
// they accept any value and not only bools.
func coerceLogicOperands(e hclsyntax.Expression) {
	var (
		nots  []*hclsyntax.UnaryOpExpr
		logic []*hclsyntax.BinaryOpExpr
	)
	hclsyntax.VisitAll(e, func(n hclsyntax.Node) hcl.Diagnostics {
		switch op := n.(type) {
		case *hclsyntax.UnaryOpExpr:
			if op.Op == hclsyntax.OpLogicalNot {
				nots = append(nots, op)
			}
		case *hclsyntax.BinaryOpExpr:
			if op.Op == hclsyntax.OpLogicalAnd || op.Op == hclsyntax.OpLogicalOr {
				logic = append(logic, op)
			}
		}
		return nil
	})

	for _, op := range nots {
		op.Val = truthyCall(op.Val)
	}
	for _, op := range logic {
		op.LHS = truthyCall(op.LHS)
		op.RHS = truthyCall(op.RHS)
	}
}

func truthyCall(arg hclsyntax.Expression) hclsyntax.Expression {
	rng := arg.Range()
	return &hclsyntax.FunctionCallExpr{
		Name:            truthyFunc,
		Args:            []hclsyntax.Expression{arg},
		NameRange:       rng,
		OpenParenRange:  rng,
		CloseParenRange: rng,
	}
}

var truthy = function.New(&function.Spec{
	Params: []function.Parameter{{
		Name:             "value",
		Type:             cty.DynamicPseudoType,
		AllowNull:        true,
		AllowUnknown:     true,
		AllowDynamicType: true,
	}},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return cty.BoolVal(Truthy(args[0])), nil
	},
})

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Expression {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expression) String() string {
	return e.src
}

// Value evaluates the expression against data and returns the raw result.
func (e *Expression) Value(data map[string]any) (v cty.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = cty.NilVal, errors.Errorf("evaluate %q: panic: %v", e.src, r)
		}
	}()

	state, err := stateValue(data)
	if err != nil {
		return cty.NilVal, errors.Trace(err)
	}
	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{stateVar: state},
		Functions: map[string]function.Function{
			getFunc:    stateGetter(state),
			truthyFunc: truthy,
		},
	}
	v, diags := e.expr.Value(ctx)
	if diags.HasErrors() {
		return cty.NilVal, errors.Errorf("evaluate %q: %s", e.src, diags.Error())
	}
	return v, nil
}

// Eval evaluates the expression and reports its truthiness.
func (e *Expression) Eval(data map[string]any) (bool, error) {
	v, err := e.Value(data)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Eval compiles src and evaluates it once.
func Eval(src string, data map[string]any) (bool, error) {
	e, err := Compile(src)
	if err != nil {
		return false, errors.Trace(err)
	}
	return e.Eval(data)
}

// stateGetter implements state.get(key[, default]) over one state value.
func stateGetter(state cty.Value) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "key", Type: cty.String},
		},
		VarParam: &function.Parameter{
			Name:             "default",
			Type:             cty.DynamicPseudoType,
			AllowNull:        true,
			AllowDynamicType: true,
		},
		Type: function.StaticReturnType(cty.DynamicPseudoType),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			if len(args) > 2 {
				return cty.NilVal, fmt.Errorf("get takes at most 2 arguments, got %d", len(args))
			}
			key := args[0].AsString()
			if state.Type().IsObjectType() && state.Type().HasAttribute(key) {
				return state.GetAttr(key), nil
			}
			if len(args) == 2 {
				return args[1], nil
			}
			return cty.NullVal(cty.DynamicPseudoType), nil
		},
	})
}

// Truthy follows the usual truth rules: null, false, zero, empty strings and
// empty collections are false.
func Truthy(v cty.Value) bool {
	if v.IsNull() || !v.IsKnown() {
		return false
	}
	ty := v.Type()
	switch {
	case ty == cty.Bool:
		return v.True()
	case ty == cty.Number:
		return v.AsBigFloat().Sign() != 0
	case ty == cty.String:
		return v.AsString() != ""
	case ty.IsObjectType():
		return len(ty.AttributeTypes()) > 0
	case ty.IsCollectionType() || ty.IsTupleType():
		return v.LengthInt() > 0
	}
	return true
}
