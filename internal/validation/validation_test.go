package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoSyntaxValidator_CatchesParseError(t *testing.T) {
	files := map[string]string{
		"main.go": "package main\n\nfunc main( {\n",
	}
	result, err := GoSyntaxValidator{}.Validate(context.Background(), files)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	require.NotEmpty(t, result.Issues)
	assert.Equal(t, "main.go", result.Issues[0].File)
}

func TestGoSyntaxValidator_PassesValidFile(t *testing.T) {
	files := map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
	}
	result, err := GoSyntaxValidator{}.Validate(context.Background(), files)
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Empty(t, result.Issues)
}

func TestJSONStructuralValidator_CatchesMalformed(t *testing.T) {
	files := map[string]string{
		"data.json": `{"a": 1,}`,
	}
	result, err := JSONStructuralValidator{}.Validate(context.Background(), files)
	require.NoError(t, err)
	assert.False(t, result.Passed)
}

func TestJSONStructuralValidator_PassesValid(t *testing.T) {
	files := map[string]string{
		"data.json": `{"a": 1}`,
	}
	result, err := JSONStructuralValidator{}.Validate(context.Background(), files)
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestRegistry_Run_AggregatesAcrossValidators(t *testing.T) {
	reg := NewRegistry(GoSyntaxValidator{}, JSONStructuralValidator{})
	files := map[string]string{
		"main.go":   "package main\n\nfunc main() {}\n",
		"data.json": `{bad json`,
	}
	agg, err := reg.Run(context.Background(), files)
	require.NoError(t, err)
	assert.False(t, agg.Passed())
	assert.Len(t, agg.Results, 2)
	assert.NotEmpty(t, agg.ErrorIssues())
}

func TestRegistry_Run_SkipsUnavailableValidator(t *testing.T) {
	reg := NewRegistry(fakeUnavailableValidator{})
	agg, err := reg.Run(context.Background(), map[string]string{"a.go": "package a\n"})
	require.NoError(t, err)
	assert.True(t, agg.Passed(), "an unavailable optional validator must not block the pipeline")
	require.Len(t, agg.Results, 1)
	assert.True(t, agg.Results[0].Skipped)
}

func TestRegistry_Run_SkipsInapplicableValidator(t *testing.T) {
	reg := NewRegistry(GoSyntaxValidator{})
	agg, err := reg.Run(context.Background(), map[string]string{"data.json": "{}"})
	require.NoError(t, err)
	assert.Empty(t, agg.Results, "no .go files means go-syntax never runs")
}

func TestFormatRepairDirective_ListsErrorIssues(t *testing.T) {
	issues := []ValidationIssue{
		{Validator: "go-syntax", File: "main.go", Line: 3, Severity: SeverityError, Message: "unexpected }"},
	}
	directive := FormatRepairDirective(issues)
	assert.Contains(t, directive, "main.go:3")
	assert.Contains(t, directive, "unexpected }")
}

func TestAffectedFiles_Dedupes(t *testing.T) {
	issues := []ValidationIssue{
		{File: "a.go"}, {File: "b.go"}, {File: "a.go"},
	}
	assert.Equal(t, []string{"a.go", "b.go"}, AffectedFiles(issues))
}

type fakeUnavailableValidator struct{}

func (fakeUnavailableValidator) Name() string         { return "fake-unavailable" }
func (fakeUnavailableValidator) Extensions() []string { return nil }
func (fakeUnavailableValidator) Available() bool      { return false }

func (fakeUnavailableValidator) Validate(ctx context.Context, files map[string]string) (ValidationResult, error) {
	return ValidationResult{Validator: "fake-unavailable", Passed: false}, nil
}

func TestRegistry_PerValidatorTimeout(t *testing.T) {
	reg := NewRegistry(slowValidator{}).WithTimeout(10 * time.Millisecond)
	agg, err := reg.Run(context.Background(), map[string]string{"a.go": "package a\n"})
	require.NoError(t, err)
	require.Len(t, agg.Results, 1)
	assert.False(t, agg.Results[0].Passed)
}

type slowValidator struct{}

func (slowValidator) Name() string         { return "slow" }
func (slowValidator) Extensions() []string { return []string{".go"} }
func (slowValidator) Available() bool      { return true }
func (slowValidator) Validate(ctx context.Context, files map[string]string) (ValidationResult, error) {
	select {
	case <-time.After(2 * time.Second):
		return ValidationResult{Validator: "slow", Passed: true}, nil
	case <-ctx.Done():
		return ValidationResult{}, ctx.Err()
	}
}
