package jsonextract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshal_Direct(t *testing.T) {
	var out map[string]string
	err := Unmarshal(`{"a":"b"}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "b", out["a"])
}

func TestUnmarshal_FencedCodeBlock(t *testing.T) {
	raw := "Here is the manifest:\n```json\n{\"name\": \"todo-app\", \"features\": [\"auth\"]}\n```\nLet me know if you need changes."
	var out struct {
		Name     string   `json:"name"`
		Features []string `json:"features"`
	}
	err := Unmarshal(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "todo-app", out.Name)
	assert.Equal(t, []string{"auth"}, out.Features)
}

func TestUnmarshal_TruncatedObject(t *testing.T) {
	raw := `{"files": {"main.go": "package main", "util.go": "package main"`
	var out struct {
		Files map[string]string `json:"files"`
	}
	err := Unmarshal(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "package main", out.Files["main.go"])
}

func TestUnmarshal_LeadingCommentary(t *testing.T) {
	raw := `Sure, here's the plan: {"steps": [1, 2, 3]}`
	var out struct {
		Steps []int `json:"steps"`
	}
	err := Unmarshal(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, out.Steps)
}

func TestUnmarshal_NoJSON(t *testing.T) {
	var out map[string]string
	err := Unmarshal("no json here at all", &out)
	assert.Error(t, err)
}

func TestExtract_PicksArrayOverLaterObject(t *testing.T) {
	out, err := Extract(`prefix [1,2,3] then {"a": 1}`)
	require.NoError(t, err)
	assert.Equal(t, "[1,2,3]", string(out))
}
