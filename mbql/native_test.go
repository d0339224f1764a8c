package mbql

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/metabase-go/apierr"
)

func TestNativeQueryPayload(t *testing.T) {
	q := NewNativeQuery("SELECT * FROM t WHERE status = {{s}}").
		WithDatabase(1).
		Bind("s", "done")

	data, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"database": 1,
		"type": "native",
		"native": {
			"query": "SELECT * FROM t WHERE status = {{s}}",
			"template-tags": {"s": {"name": "s", "type": "text"}}
		},
		"parameters": [
			{"type": "category", "target": ["variable", ["template-tag", "s"]], "value": "done"}
		]
	}`, string(data))
}

func TestNativeQueryParametersKeepBindingOrder(t *testing.T) {
	q := NewNativeQuery("SELECT * FROM orders WHERE total > {{min}} AND created_at = {{day}} AND region IN ({{regions}})").
		WithDatabase(2).
		Bind("regions", []string{"eu", "us"}).
		Bind("min", 10).
		Param("day", Date(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))).
		Bind("min", 25)

	data, err := json.Marshal(q)
	require.NoError(t, err)

	var payload struct {
		Native struct {
			TemplateTags map[string]TemplateTag `json:"template-tags"`
		} `json:"native"`
		Parameters []Parameter `json:"parameters"`
	}
	require.NoError(t, json.Unmarshal(data, &payload))

	require.Len(t, payload.Parameters, 3, "one parameter per placeholder")
	assert.Equal(t, []string{"regions", "min", "day"}, q.Params())
	assert.Equal(t, "category", payload.Parameters[0].Type)
	assert.Equal(t, []interface{}{"eu", "us"}, payload.Parameters[0].Value)
	assert.Equal(t, "number/=", payload.Parameters[1].Type)
	assert.Equal(t, float64(25), payload.Parameters[1].Value, "rebinding replaces the value in place")
	assert.Equal(t, "date/single", payload.Parameters[2].Type)
	assert.Equal(t, "2024-03-01", payload.Parameters[2].Value)

	assert.Equal(t, "number", payload.Native.TemplateTags["min"].Type)
	assert.Equal(t, "date", payload.Native.TemplateTags["day"].Type)
	assert.Equal(t, "text", payload.Native.TemplateTags["regions"].Type)
}

func TestNativeQueryValidation(t *testing.T) {
	tests := []struct {
		name  string
		query *NativeQuery
	}{
		{"missing parameter", NewNativeQuery("SELECT * FROM t WHERE a = {{a}}")},
		{"unknown parameter", NewNativeQuery("SELECT 1").Bind("a", 1)},
		{"empty query", NewNativeQuery("   ")},
		{"uninferable value", NewNativeQuery("SELECT {{a}}").Bind("a", struct{}{})},
		{"nil value", NewNativeQuery("SELECT {{a}}").Bind("a", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, apierr.ErrValidation))

			_, err = json.Marshal(tt.query)
			assert.Error(t, err, "an invalid query must not serialize")
		})
	}
}

func TestOptionalSections(t *testing.T) {
	sql := "SELECT * FROM t WHERE 1=1 [[AND a = {{a}}]] [[AND b = {{b}}]]"

	q := NewNativeQuery(sql).Bind("a", 1)
	require.NoError(t, q.Validate())
	assert.Equal(t, "SELECT * FROM t WHERE 1=1 [[AND a = {{a}}]] ", q.Rendered())

	assert.Equal(t, []Placeholder{{Name: "a", Optional: true}, {Name: "b", Optional: true}}, q.Placeholders())

	none := NewNativeQuery(sql)
	data, err := json.Marshal(none)
	require.NoError(t, err)
	assert.JSONEq(t, `{"database":0,"type":"native","native":{"query":"SELECT * FROM t WHERE 1=1  "}}`, string(data))
}

func TestPlaceholderRequiredOutsideOptionalSection(t *testing.T) {
	q := NewNativeQuery("SELECT {{a}} [[, {{a}} AS again]]")
	assert.Equal(t, []Placeholder{{Name: "a", Optional: false}}, q.Placeholders())
	assert.Error(t, q.Validate())
}

func TestInferValue(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   interface{}
		want Value
	}{
		{"string", "x", Text("x")},
		{"int", 7, Number(7)},
		{"uint8", uint8(7), Number(7)},
		{"float", 2.5, Number(2.5)},
		{"json number", json.Number("3"), Number(3)},
		{"bool", true, Boolean(true)},
		{"time", day, Date(day)},
		{"list", []interface{}{1, "a"}, List(Number(1), Text("a"))},
		{"value", Text("keep"), Text("keep")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InferValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := InferValue(map[string]int{})
	assert.Error(t, err)
}

func TestParseDatasetQuery(t *testing.T) {
	t.Run("native with parameters", func(t *testing.T) {
		q := NewNativeQuery("SELECT {{n}}").WithDatabase(4).Bind("n", 3)
		data, err := json.Marshal(q)
		require.NoError(t, err)

		parsed, err := ParseDatasetQuery(data)
		require.NoError(t, err)
		require.NotNil(t, parsed.Native)
		assert.Nil(t, parsed.MBQL)
		assert.Equal(t, "native", parsed.Type())
		assert.NoError(t, parsed.Native.Validate())
		assert.Equal(t, []string{"n"}, parsed.Native.Params())
	})

	t.Run("mbql", func(t *testing.T) {
		q, err := FromTable(2).Database(1).Aggregate(Count()).Build()
		require.NoError(t, err)
		data, err := json.Marshal(DatasetQuery{MBQL: &q})
		require.NoError(t, err)

		parsed, err := ParseDatasetQuery(data)
		require.NoError(t, err)
		require.NotNil(t, parsed.MBQL)
		assert.Equal(t, q, *parsed.MBQL)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := ParseDatasetQuery([]byte(`{"database":1,"type":"pivot"}`))
		assert.True(t, errors.Is(err, apierr.ErrSerialization))
	})

	t.Run("empty variant", func(t *testing.T) {
		_, err := json.Marshal(DatasetQuery{})
		assert.Error(t, err)
	})
}
