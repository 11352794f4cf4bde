package validation

import (
	"context"
	"encoding/json"
)

// JSONStructuralValidator is mandatory (§4.8): it decodes every .json
// file and reports a decode failure as an Error issue. It does not
// check against any schema — that is the manifest package's job for
// the one JSON document (the project manifest) that has a schema.
type JSONStructuralValidator struct{}

func (JSONStructuralValidator) Name() string         { return "json-structural" }
func (JSONStructuralValidator) Extensions() []string { return []string{".json"} }
func (JSONStructuralValidator) Available() bool      { return true }

func (v JSONStructuralValidator) Validate(ctx context.Context, files map[string]string) (ValidationResult, error) {
	result := ValidationResult{Validator: v.Name(), Passed: true}

	for path, content := range files {
		if !hasExt(path, ".json") {
			continue
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		var anyVal any
		if err := json.Unmarshal([]byte(content), &anyVal); err != nil {
			result.Passed = false
			result.Issues = append(result.Issues, ValidationIssue{
				Validator: v.Name(), File: path,
				Severity: SeverityError, Message: err.Error(),
			})
		}
	}
	return result, nil
}
