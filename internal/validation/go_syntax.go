package validation

import (
	"context"
	"go/parser"
	"go/scanner"
	"go/token"
)

// GoSyntaxValidator is mandatory (§4.8): it parses every .go file with
// the bundled parser and reports each parse error as an Error issue
// located at its line. This is the same go/parser the
// astpatch package uses, not a second implementation of Go parsing.
type GoSyntaxValidator struct{}

func (GoSyntaxValidator) Name() string         { return "go-syntax" }
func (GoSyntaxValidator) Extensions() []string { return []string{".go"} }
func (GoSyntaxValidator) Available() bool      { return true }

func (v GoSyntaxValidator) Validate(ctx context.Context, files map[string]string) (ValidationResult, error) {
	result := ValidationResult{Validator: v.Name(), Passed: true}

	for path, content := range files {
		if !hasExt(path, ".go") {
			continue
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		fset := token.NewFileSet()
		if _, err := parser.ParseFile(fset, path, content, parser.AllErrors); err != nil {
			result.Passed = false
			if errList, ok := err.(scanner.ErrorList); ok && len(errList) > 0 {
				for _, e := range errList {
					result.Issues = append(result.Issues, ValidationIssue{
						Validator: v.Name(), File: path, Line: e.Pos.Line,
						Severity: SeverityError, Message: e.Msg,
					})
				}
				continue
			}
			result.Issues = append(result.Issues, ValidationIssue{
				Validator: v.Name(), File: path,
				Severity: SeverityError, Message: err.Error(),
			})
		}
	}
	return result, nil
}
