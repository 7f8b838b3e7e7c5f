package tools

import (
	"context"
	"fmt"
	"time"
)

// BuiltinTools returns the reference tool set registered for every project.
func BuiltinTools() []Tool {
	return []Tool{
		&CalculatorTool{},
		&SleepTool{},
		&CurrentTimeTool{},
	}
}

// CalculatorTool performs basic arithmetic on two operands.
type CalculatorTool struct{}

func (t *CalculatorTool) Name() string { return "calculator" }

func (t *CalculatorTool) Description() string {
	return "Perform basic arithmetic. Supported operations: add, subtract, multiply, divide."
}

func (t *CalculatorTool) ParametersSchema() string {
	return `{
		"type": "object",
		"properties": {
			"operation": {"type": "string", "enum": ["add", "subtract", "multiply", "divide"]},
			"a": {"type": "number"},
			"b": {"type": "number"}
		},
		"required": ["operation", "a", "b"]
	}`
}

func (t *CalculatorTool) Execute(_ context.Context, params map[string]any) (string, error) {
	op, _ := params["operation"].(string)
	a, aOK := toFloat(params["a"])
	b, bOK := toFloat(params["b"])
	if !aOK || !bOK {
		return "", fmt.Errorf("operands a and b must be numbers")
	}

	var result float64
	switch op {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	case "divide":
		if b == 0 {
			return "", fmt.Errorf("division by zero")
		}
		result = a / b
	default:
		return "", fmt.Errorf("unknown operation %q", op)
	}
	return trimFloat(result), nil
}

// SleepTool pauses for a number of seconds. Useful for exercising the
// asynchronous call path.
type SleepTool struct{}

func (t *SleepTool) Name() string { return "sleep" }

func (t *SleepTool) Description() string {
	return "Wait for the given number of seconds, then return."
}

func (t *SleepTool) ParametersSchema() string {
	return `{
		"type": "object",
		"properties": {
			"seconds": {"type": "number", "minimum": 0, "maximum": 300}
		},
		"required": ["seconds"]
	}`
}

func (t *SleepTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	seconds, ok := toFloat(params["seconds"])
	if !ok {
		return "", fmt.Errorf("seconds must be a number")
	}
	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return fmt.Sprintf("slept %s seconds", trimFloat(seconds)), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CurrentTimeTool reports the current UTC time.
type CurrentTimeTool struct{}

func (t *CurrentTimeTool) Name() string { return "current_time" }

func (t *CurrentTimeTool) Description() string {
	return "Return the current date and time in UTC."
}

func (t *CurrentTimeTool) ParametersSchema() string {
	return `{"type": "object", "properties": {}}`
}

func (t *CurrentTimeTool) Execute(_ context.Context, _ map[string]any) (string, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
