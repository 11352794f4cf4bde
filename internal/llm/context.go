package llm

import (
	"context"
	"strings"
)

// TaskType is the kind of generation work a call is doing, used to pick a
// provider priority list (§4.2).
type TaskType string

const (
	TaskReasoning TaskType = "reasoning"
	TaskCode      TaskType = "code"
	TaskUIText    TaskType = "ui_text"
)

func normalizeTask(t TaskType) TaskType {
	switch t {
	case TaskReasoning, TaskCode, TaskUIText:
		return t
	default:
		return TaskCode
	}
}

type ctxKeyTaskType struct{}
type ctxKeyProviderOverride struct{}

// WithTaskType attaches the task type a generation call is performing.
func WithTaskType(ctx context.Context, t TaskType) context.Context {
	return context.WithValue(ctx, ctxKeyTaskType{}, normalizeTask(t))
}

// TaskTypeFrom reads the task type set by WithTaskType, defaulting to
// TaskCode when absent.
func TaskTypeFrom(ctx context.Context) TaskType {
	if ctx != nil {
		if v, ok := ctx.Value(ctxKeyTaskType{}).(TaskType); ok {
			return normalizeTask(v)
		}
	}
	return TaskCode
}

// WithProviderOverride forces the router to use a specific provider name
// for this call, bypassing priority-based selection. Used by tests and by
// explicit user pinning.
func WithProviderOverride(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ctxKeyProviderOverride{}, strings.ToLower(strings.TrimSpace(provider)))
}

// ProviderOverrideFrom returns the overridden provider name, if any.
func ProviderOverrideFrom(ctx context.Context) (string, bool) {
	if ctx != nil {
		if v, ok := ctx.Value(ctxKeyProviderOverride{}).(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
