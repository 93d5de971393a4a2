// Package template renders node configuration values against execution
// state, so action configs can reference trigger payload fields and earlier
// node results.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/reapflow/reapflow/pkg/models"
)

// RenderWithContext renders input against the execution's trigger data and
// accumulated node results.
func RenderWithContext(input string, executionCtx models.ExecutionContext) (any, error) {
	data := map[string]any{
		"trigger":      executionCtx.TriggerData,
		"trigger_data": executionCtx.TriggerData,
		"node_results": executionCtx.NodeResults,
		"execution": map[string]any{
			"id":            executionCtx.ID,
			"workflow_id":   executionCtx.WorkflowID,
			"subaccount_id": executionCtx.SubaccountID,
		},
	}

	return Render(input, data)
}

// RenderString is RenderWithContext constrained to a string result, for
// fields like email subjects where structured output makes no sense.
func RenderString(input string, executionCtx models.ExecutionContext) (string, error) {
	result, err := RenderWithContext(input, executionCtx)
	if err != nil {
		return "", err
	}

	switch v := result.(type) {
	case string:
		return v, nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// Render parses and executes templateStr against data. Results that look
// like JSON, numbers or booleans are decoded into their typed form.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("transform").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
