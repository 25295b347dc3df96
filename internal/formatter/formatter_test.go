package formatter

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/current/internal/errors"
	"github.com/kyleking/current/internal/extract"
	"github.com/kyleking/current/internal/llm"
	"github.com/kyleking/current/internal/pipeline"
	"github.com/kyleking/current/internal/schema"
	"github.com/kyleking/current/internal/testutil"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yaml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatter_FormatResult(t *testing.T) {
	f := NewFormatter()

	result := pipeline.Result{
		RequestID:  "req-1",
		Mode:       extract.Continuation,
		Query:      testutil.TestContinuationQuery,
		Suggestion: "rs WHERE age > 18",
	}

	t.Run("text is the bare suggestion", func(t *testing.T) {
		out, err := f.FormatResult(result, FormatText)
		require.NoError(t, err)
		assert.Equal(t, "rs WHERE age > 18", out)
	})

	t.Run("json", func(t *testing.T) {
		out, err := f.FormatResult(result, FormatJSON)
		require.NoError(t, err)

		var got map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &got))

		assert.Equal(t, "req-1", got["request_id"])
		assert.Equal(t, "continuation", got["mode"])
		assert.Equal(t, testutil.TestContinuationQuery, got["query"])
		assert.Equal(t, "rs WHERE age > 18", got["suggestion"])
		assert.NotContains(t, got, "error")
		assert.NotContains(t, got, "error_type")
	})

	t.Run("json with error", func(t *testing.T) {
		failed := result
		failed.Suggestion = ""
		failed.Err = errors.NewRemoteError(503, "overloaded")

		out, err := f.FormatResult(failed, FormatJSON)
		require.NoError(t, err)

		var got map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &got))

		assert.Equal(t, "", got["suggestion"])
		assert.Contains(t, got["error"], "503")
		assert.Equal(t, string(errors.ErrTypeRemote), got["error_type"])
	})

	t.Run("text with error is empty", func(t *testing.T) {
		failed := result
		failed.Suggestion = ""
		failed.Err = errors.NewAuthMissingError()

		out, err := f.FormatResult(failed, FormatText)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestFormatter_FormatModels(t *testing.T) {
	f := NewFormatter()

	models := []llm.Model{
		{
			Name:                       "models/gemini-2.0-flash",
			DisplayName:                "Gemini 2.0 Flash",
			InputTokenLimit:            1048576,
			OutputTokenLimit:           8192,
			SupportedGenerationMethods: []string{"generateContent", "countTokens"},
		},
		{
			Name:                       "models/embedding-001",
			SupportedGenerationMethods: []string{"embedContent"},
		},
	}

	t.Run("table matches golden file", func(t *testing.T) {
		out, err := f.FormatModels(models, FormatText)
		require.NoError(t, err)

		golden, err := os.ReadFile("testdata/golden_models.txt")
		require.NoError(t, err)

		expectedLines := strings.Split(strings.TrimSpace(string(golden)), "\n")
		resultLines := strings.Split(out, "\n")
		require.Len(t, resultLines, len(expectedLines), "got:\n%s", out)

		for i, expected := range expectedLines {
			assert.Equal(t, expected, resultLines[i], "line %d", i+1)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		out, err := f.FormatModels(nil, FormatText)
		require.NoError(t, err)
		assert.Equal(t, "No models found", out)
	})

	t.Run("empty json is an array", func(t *testing.T) {
		out, err := f.FormatModels(nil, FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, "[]", out)
	})

	t.Run("json", func(t *testing.T) {
		out, err := f.FormatModels(models, FormatJSON)
		require.NoError(t, err)

		var got []llm.Model
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, models, got)
	})
}

func TestFormatter_FormatSchema(t *testing.T) {
	f := NewFormatter()
	shop := testutil.NewShopSchema(t)

	tests := []struct {
		name   string
		d      *schema.Descriptor
		format OutputFormat
		want   string
	}{
		{
			name:   "text",
			d:      shop,
			format: FormatText,
			want:   "users: id, name\norders: id, user_id, total",
		},
		{
			name:   "empty text",
			d:      schema.Empty(),
			format: FormatText,
			want:   "(empty schema)",
		},
		{
			name:   "empty json",
			d:      schema.Empty(),
			format: FormatJSON,
			want:   "{\n  \"formatted\": \"\",\n  \"tables\": []\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.FormatSchema(tt.d, tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	t.Run("json keeps table order", func(t *testing.T) {
		out, err := f.FormatSchema(shop, FormatJSON)
		require.NoError(t, err)

		var got struct {
			Formatted string         `json:"formatted"`
			Tables    []schema.Table `json:"tables"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &got))

		assert.Equal(t, shop.Format(), got.Formatted)
		require.Len(t, got.Tables, 2)
		assert.Equal(t, "users", got.Tables[0].Name)
		assert.Equal(t, []string{"id", "user_id", "total"}, got.Tables[1].Columns)
	})
}
