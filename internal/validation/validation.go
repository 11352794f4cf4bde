// Package validation implements the Validation Pipeline (§4.8): a
// plugin registry of Validator instances run concurrently over a
// submitted file set, each reporting pass/fail and an issue list,
// aggregated into a single result the caller can turn into a repair
// directive for the Quality/Debug agent.
package validation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Severity is how serious a ValidationIssue is. Security-scanner
// HIGH/MEDIUM/LOW findings map onto this scale (§4.8).
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ValidationIssue is one finding from one validator against one file.
type ValidationIssue struct {
	Validator string
	File      string
	Line      int
	Severity  Severity
	Message   string
}

// ValidationResult is one validator's outcome across the whole
// submitted file set.
type ValidationResult struct {
	Validator  string
	Passed     bool
	Issues     []ValidationIssue
	Elapsed    time.Duration
	Skipped    bool
	SkipReason string
}

// AggregateResult is the pipeline's combined outcome.
type AggregateResult struct {
	Results      []ValidationResult
	TotalElapsed time.Duration
	TestRun      *TestRunResult
}

// Passed is true only if every validator that actually ran passed.
// Skipped validators (an optional tool not found on PATH) never block.
func (a AggregateResult) Passed() bool {
	for _, r := range a.Results {
		if !r.Skipped && !r.Passed {
			return false
		}
	}
	return true
}

// Issues flattens every validator's issues into one slice, sorted by
// file then line for stable, human-readable output.
func (a AggregateResult) Issues() []ValidationIssue {
	var out []ValidationIssue
	for _, r := range a.Results {
		out = append(out, r.Issues...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// ErrorIssues returns only the issues severe enough to block, i.e. the
// set the auto-fix loop (§4.8) drives on.
func (a AggregateResult) ErrorIssues() []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range a.Issues() {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}

// Validator is one pluggable check. Extensions reports the file
// extensions (including the leading dot, e.g. ".go") it applies to; a
// Validator whose Extensions list is empty is considered applicable to
// every file in the set (e.g. a whole-tree security scan).
type Validator interface {
	Name() string
	Extensions() []string
	// Available reports whether this validator's dependency (an
	// external tool, typically) is present. Mandatory, bundled-parser
	// validators always report true.
	Available() bool
	Validate(ctx context.Context, files map[string]string) (ValidationResult, error)
}

// AutoFixer is implemented by validators capable of mechanically
// repairing their own findings (e.g. a formatter) rather than only
// reporting them.
type AutoFixer interface {
	AutoFix(ctx context.Context, files map[string]string) (map[string]string, error)
}

// Registry runs a fixed set of Validators concurrently over a file set.
type Registry struct {
	validators     []Validator
	perValidatorTO time.Duration
}

// DefaultPerValidatorTimeout is the "e.g., 60 s" figure §4.8 names.
const DefaultPerValidatorTimeout = 60 * time.Second

// NewRegistry builds a Registry from the given validators, applying
// DefaultPerValidatorTimeout per validator unless overridden with
// WithTimeout.
func NewRegistry(validators ...Validator) *Registry {
	return &Registry{validators: validators, perValidatorTO: DefaultPerValidatorTimeout}
}

// WithTimeout overrides the per-validator timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.perValidatorTO = d
	return r
}

// applicable reports whether a validator declares at least one
// extension present among files, or declares no extensions at all
// (whole-tree validators).
func applicable(v Validator, files map[string]string) bool {
	exts := v.Extensions()
	if len(exts) == 0 {
		return true
	}
	for path := range files {
		for _, ext := range exts {
			if hasExt(path, ext) {
				return true
			}
		}
	}
	return false
}

func hasExt(path, ext string) bool {
	if len(path) < len(ext) {
		return false
	}
	return path[len(path)-len(ext):] == ext
}

// Run executes every applicable, available validator concurrently,
// each bounded by the registry's per-validator timeout, and returns the
// aggregated result. A validator that errors outright (as opposed to
// reporting failing issues) is recorded as a failing result rather than
// aborting the whole run.
func (r *Registry) Run(ctx context.Context, files map[string]string) (AggregateResult, error) {
	start := time.Now()

	type slot struct {
		idx    int
		result ValidationResult
	}

	var applicableValidators []Validator
	for _, v := range r.validators {
		if applicable(v, files) {
			applicableValidators = append(applicableValidators, v)
		}
	}

	results := make([]ValidationResult, len(applicableValidators))
	group, gctx := errgroup.WithContext(ctx)

	for i, v := range applicableValidators {
		i, v := i, v
		group.Go(func() error {
			if !v.Available() {
				results[i] = ValidationResult{Validator: v.Name(), Passed: true, Skipped: true, SkipReason: "tool not available"}
				return nil
			}

			vctx, cancel := context.WithTimeout(gctx, r.perValidatorTO)
			defer cancel()

			vStart := time.Now()
			res, err := v.Validate(vctx, files)
			res.Elapsed = time.Since(vStart)
			if err != nil {
				res = ValidationResult{
					Validator: v.Name(),
					Passed:    false,
					Elapsed:   res.Elapsed,
					Issues: []ValidationIssue{{
						Validator: v.Name(), Severity: SeverityError,
						Message: fmt.Sprintf("validator error: %v", err),
					}},
				}
			}
			results[i] = res
			return nil
		})
	}

	_ = group.Wait() // validators never return an error that should abort the group

	return AggregateResult{Results: results, TotalElapsed: time.Since(start)}, nil
}

// FormatRepairDirective renders a batch of Error-severity issues into
// the directive message §4.8 describes handing to the Quality/Debug
// agent: enough detail to re-emit only the affected files.
func FormatRepairDirective(issues []ValidationIssue) string {
	if len(issues) == 0 {
		return ""
	}
	msg := "The following files failed validation and must be corrected. Re-emit only the affected files with fixes applied.\n\n"
	for _, issue := range issues {
		loc := issue.File
		if issue.Line > 0 {
			loc = fmt.Sprintf("%s:%d", issue.File, issue.Line)
		}
		msg += fmt.Sprintf("- [%s] %s: %s\n", issue.Validator, loc, issue.Message)
	}
	return msg
}

// AffectedFiles returns the set of file paths named by issues, in the
// order first seen.
func AffectedFiles(issues []ValidationIssue) []string {
	seen := map[string]bool{}
	var out []string
	for _, issue := range issues {
		if issue.File == "" || seen[issue.File] {
			continue
		}
		seen[issue.File] = true
		out = append(out, issue.File)
	}
	return out
}
