package factory

import (
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"

	"github.com/warp/incentive-engine/incentive"
)

// CompileDeduction compiles a CEL expression into an incentive.DeductionFunc.
//
// The expression sees one variable, gross (double, in plan currency), and must
// evaluate to a double: the amount to deduct. Examples:
//
//	gross * 0.1
//	gross > 5000.0 ? 250.0 : 0.0
//
// The result is rounded to incentive.MoneyPlaces. Negative or non-finite
// results fail the calculation with a ValidationError.
func CompileDeduction(expr string) (incentive.DeductionFunc, error) {
	env, err := cel.NewEnv(cel.Variable("gross", cel.DoubleType))
	if err != nil {
		return nil, fmt.Errorf("create deduction environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, &incentive.ValidationError{Field: "deduction_expr", Message: iss.Err().Error()}
	}
	if !ast.OutputType().IsExactType(cel.DoubleType) {
		return nil, &incentive.ValidationError{
			Field:   "deduction_expr",
			Message: fmt.Sprintf("must evaluate to double, got %s", ast.OutputType()),
		}
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build deduction program: %w", err)
	}

	return func(gross incentive.Money) (incentive.Money, error) {
		out, _, err := prg.Eval(map[string]any{"gross": gross.Amount.InexactFloat64()})
		if err != nil {
			return incentive.Money{}, &incentive.ValidationError{Field: "deduction_expr", Message: err.Error()}
		}
		v, ok := out.Value().(float64)
		if !ok {
			return incentive.Money{}, &incentive.ValidationError{
				Field:   "deduction_expr",
				Message: fmt.Sprintf("evaluated to %T, want double", out.Value()),
			}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return incentive.Money{}, &incentive.ValidationError{
				Field:   "deduction_expr",
				Message: fmt.Sprintf("deduction must be a non-negative number, got %v", v),
			}
		}
		return incentive.Money{
			Amount:   decimal.NewFromFloat(v).Round(incentive.MoneyPlaces),
			Currency: gross.Currency,
		}, nil
	}, nil
}
