package canonicaljson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShapes(t *testing.T) {
	v, err := Parse([]byte(`{"a":[1,"x",true,null,{"b":-2}]}`))
	require.NoError(t, err)

	expected := Object{
		"a": Array{Int(1), String("x"), Bool(true), Null{}, Object{"b": Int(-2)}},
	}
	assert.Equal(t, expected, v)
}

func TestParseRejectsFloats(t *testing.T) {
	for _, in := range []string{`1.5`, `{"a":1e3}`, `[2E1]`} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse([]byte(in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "float")
		})
	}
}

func TestParseRejectsOutOfRange(t *testing.T) {
	_, err := Parse([]byte(`9007199254740992`))
	require.Error(t, err)

	v, err := Parse([]byte(`9007199254740991`))
	require.NoError(t, err)
	assert.Equal(t, Int(MaxSafeInt), v)
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{} {}`))
	require.Error(t, err)
}

func TestParseObject(t *testing.T) {
	_, err := ParseObject([]byte(`[1]`))
	require.Error(t, err)

	obj, err := ParseObject([]byte(`{"k":"v"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, obj.SortedKeys())
}

func TestFromGoYAMLShapes(t *testing.T) {
	v, err := FromGo(map[string]any{"n": 5, "list": []any{"a", false}})
	require.NoError(t, err)
	assert.Equal(t, Object{"n": Int(5), "list": Array{String("a"), Bool(false)}}, v)
}
