// Package mathtool provides integer arithmetic tools: multiply, add and
// exponentiate. All three operate on whole numbers and marshal their result
// as a bare JSON number, so a product of 161 comes back as the output text
// "161". There is no divide tool here; integer division truncates and is
// better expressed by the caller.
package mathtool

import (
	"context"
	"fmt"

	"github.com/skosovsky/dispatchy"
)

// Args holds the two operands shared by multiply and add.
type Args struct {
	FirstInt  int `json:"firstInt" description:"First integer operand"`
	SecondInt int `json:"secondInt" description:"Second integer operand"`
}

// ExpArgs holds the operands for exponentiate.
type ExpArgs struct {
	Base     int `json:"base" description:"Integer base"`
	Exponent int `json:"exponent" description:"Non-negative integer exponent"`
}

// Multiply returns the product of the two operands.
func Multiply(_ context.Context, args Args) (int, error) {
	return args.FirstInt * args.SecondInt, nil
}

// Add returns the sum of the two operands.
func Add(_ context.Context, args Args) (int, error) {
	return args.FirstInt + args.SecondInt, nil
}

// Exponentiate raises Base to Exponent by binary exponentiation.
// A negative exponent yields a fractional result, which integer arithmetic
// cannot represent, so it is rejected with a client error the model can fix.
func Exponentiate(_ context.Context, args ExpArgs) (int, error) {
	if args.Exponent < 0 {
		return 0, &dispatchy.ClientError{
			Reason: fmt.Sprintf("exponent must be non-negative, got %d", args.Exponent),
		}
	}
	result := 1
	base := args.Base
	for exp := args.Exponent; exp > 0; exp >>= 1 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
	}
	return result, nil
}

// NewMultiplyTool builds the multiply tool.
func NewMultiplyTool() (dispatchy.Tool, error) {
	return dispatchy.NewTool("multiply", "Multiplies two integers and returns the product.", Multiply)
}

// NewAddTool builds the add tool.
func NewAddTool() (dispatchy.Tool, error) {
	return dispatchy.NewTool("add", "Adds two integers and returns the sum.", Add)
}

// NewExponentiateTool builds the exponentiate tool.
func NewExponentiateTool() (dispatchy.Tool, error) {
	return dispatchy.NewTool("exponentiate", "Raises an integer base to a non-negative integer exponent.", Exponentiate)
}

// All builds every tool in this toolkit.
func All() ([]dispatchy.Tool, error) {
	builders := []func() (dispatchy.Tool, error){
		NewMultiplyTool,
		NewAddTool,
		NewExponentiateTool,
	}
	tools := make([]dispatchy.Tool, 0, len(builders))
	for _, build := range builders {
		t, err := build()
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// Register builds all tools in this toolkit and registers them on reg.
func Register(reg *dispatchy.Registry) error {
	tools, err := All()
	if err != nil {
		return err
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
