package pricing

import (
	"github.com/casbin/govaluate"
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
)

// =============================================================================
// EXPRESSION RULES - govaluate-backed RuleEngine
// =============================================================================

// FormulaDigits is the precision of formula results.
const FormulaDigits int32 = 8

// ExpressionRule evaluates an arithmetic expression over Args.Values.
//
// Combination rules can use:
//
//	detail('base', 'PP')            amount of a raw detail
//	total('fee')                    sum of raw details of a kind
//	set_detail('tax', 'TT', x)      record x in FinalDetails, returns x
//
// Example: set_detail('base', 'PP', detail('base', 'PP') * 2)
type ExpressionRule struct {
	Name       string
	Expression string
}

// NewExpressionRule parses expression once so syntax errors surface at
// configuration time.
func NewExpressionRule(name, expression string) (*ExpressionRule, error) {
	if _, err := govaluate.NewEvaluableExpressionWithFunctions(expression, ruleFunctions(nil)); err != nil {
		return nil, &generic.FormulaError{Formula: expression, Err: err}
	}
	return &ExpressionRule{Name: name, Expression: expression}, nil
}

func (r *ExpressionRule) RuleName() string { return r.Name }

func (r *ExpressionRule) Compute(args *Args) RuleResult {
	params := map[string]any{}
	if args != nil {
		params = Parameters(args.Values)
	}
	value, err := Evaluate(r.Expression, params, ruleFunctions(args))
	if err != nil {
		return RuleResult{Errors: []Message{NewMessage(MsgRuleError, r.Name, err.Error())}}
	}
	return RuleResult{Value: value}
}

// Evaluate runs expression with params and returns a rounded decimal.
func Evaluate(expression string, params map[string]any, functions map[string]govaluate.ExpressionFunction) (decimal.Decimal, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(expression, functions)
	if err != nil {
		return decimal.Zero, &generic.FormulaError{Formula: expression, Err: err}
	}
	raw, err := expr.Evaluate(params)
	if err != nil {
		return decimal.Zero, &generic.FormulaError{Formula: expression, Err: err}
	}
	value, err := toDecimal(raw)
	if err != nil {
		return decimal.Zero, &generic.FormulaError{Formula: expression, Err: err}
	}
	return value.Round(FormulaDigits), nil
}

// Parameters converts decimal and integer values to float64 for govaluate.
func Parameters(values map[string]any) map[string]any {
	params := make(map[string]any, len(values))
	for k, v := range values {
		switch x := v.(type) {
		case decimal.Decimal:
			params[k] = x.InexactFloat64()
		case int:
			params[k] = float64(x)
		case int64:
			params[k] = float64(x)
		default:
			params[k] = v
		}
	}
	return params
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case decimal.Decimal:
		return v, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case bool:
		if v {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	}
	return decimal.Zero, errors.Newf("expression returned %T, want a number", raw)
}

func ruleFunctions(args *Args) map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"detail": func(in ...any) (any, error) {
			kind, code, err := kindAndCode("detail", in, 2)
			if err != nil {
				return nil, err
			}
			total := decimal.Zero
			for _, d := range priceDetails(args) {
				if d.Kind == kind && d.Code == code {
					total = total.Add(d.Amount)
				}
			}
			return total.InexactFloat64(), nil
		},
		"total": func(in ...any) (any, error) {
			if len(in) != 1 {
				return nil, errors.New("total(kind) takes one argument")
			}
			kind, ok := in[0].(string)
			if !ok {
				return nil, errors.New("total(kind): kind must be a string")
			}
			total := decimal.Zero
			for _, d := range priceDetails(args) {
				if d.Kind == LineKind(kind) {
					total = total.Add(d.Amount)
				}
			}
			return total.InexactFloat64(), nil
		},
		"set_detail": func(in ...any) (any, error) {
			kind, code, err := kindAndCode("set_detail", in, 3)
			if err != nil {
				return nil, err
			}
			amount, ok := in[2].(float64)
			if !ok {
				return nil, errors.New("set_detail: amount must be a number")
			}
			if args == nil || args.FinalDetails == nil {
				return nil, errors.New("set_detail is only available in combination rules")
			}
			args.FinalDetails.Set(kind, code, decimal.NewFromFloat(amount).Round(FormulaDigits), args.PriceDetails)
			return amount, nil
		},
	}
}

func priceDetails(args *Args) []Detail {
	if args == nil {
		return nil
	}
	return args.PriceDetails
}

func kindAndCode(name string, in []any, n int) (LineKind, string, error) {
	if len(in) != n {
		return "", "", errors.Newf("%s takes %d arguments", name, n)
	}
	kind, ok1 := in[0].(string)
	code, ok2 := in[1].(string)
	if !ok1 || !ok2 {
		return "", "", errors.Newf("%s: kind and code must be strings", name)
	}
	return LineKind(kind), code, nil
}
