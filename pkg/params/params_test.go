package params

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMap_SetKeepsPosition(t *testing.T) {
	m := Of("a", "1", "b", "2", "c", "3")
	m.Set("b", "20")
	m.Set("d", "4")

	require.Equal(t, []string{"a", "b", "c", "d"}, m.Keys())
	v, ok := m.Get("b")
	require.True(t, ok)
	require.Equal(t, "20", v)
}

func TestMap_NilIsEmpty(t *testing.T) {
	var m *Map
	require.Equal(t, 0, m.Len())
	require.Nil(t, m.Keys())
	require.False(t, m.Has("x"))
	require.True(t, m.Equal(New(0)))
	require.Nil(t, m.Clone())
}

func TestMap_CloneIsDeep(t *testing.T) {
	inner := Of("x", "1")
	m := Of("outer", inner)
	c := m.Clone()
	inner.Set("x", "2")

	got, _ := c.Get("outer")
	v, _ := got.(*Map).Get("x")
	require.Equal(t, "1", v)
}

func TestMap_EqualComparesOrderAndScalarForm(t *testing.T) {
	require.True(t, Of("a", json.Number("11111")).Equal(Of("a", "11111")))
	require.False(t, Of("a", "1", "b", "2").Equal(Of("b", "2", "a", "1")))
	require.False(t, Of("a", Of("x", "1")).Equal(Of("a", "1")))
}

func TestScalar(t *testing.T) {
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{"05", "05", true},
		{json.Number("11111"), "11111", true},
		{111, "111", true},
		{int64(-3), "-3", true},
		{0.5, "0.5", true},
		{true, "true", true},
		{nil, "", true},
		{[]any{"a"}, "", false},
		{Of("a", "b"), "", false},
	}
	for _, tc := range cases {
		got, ok := Scalar(tc.in)
		require.Equal(t, tc.ok, ok, "%v", tc.in)
		require.Equal(t, tc.want, got, "%v", tc.in)
	}
}

func TestJSON_PreservesOrderAndNumbers(t *testing.T) {
	m, err := ParseJSON([]byte(`{"number": 11111, "amount": "10.00", "meta": {"z": 1, "a": [1, "x"]}}`))
	require.NoError(t, err)
	require.Equal(t, []string{"number", "amount", "meta"}, m.Keys())

	n, _ := m.Get("number")
	require.Equal(t, json.Number("11111"), n)

	meta, _ := m.Get("meta")
	require.Equal(t, []string{"z", "a"}, meta.(*Map).Keys())

	out, err := json.Marshal(m)
	require.NoError(t, err)
	require.JSONEq(t, `{"number":11111,"amount":"10.00","meta":{"z":1,"a":[1,"x"]}}`, string(out))
	require.Equal(t, `{"number":11111,"amount":"10.00","meta":{"z":1,"a":[1,"x"]}}`, string(out))
}

func TestParseJSON_Errors(t *testing.T) {
	m, err := ParseJSON([]byte("   "))
	require.NoError(t, err)
	require.Equal(t, 0, m.Len())

	_, err = ParseJSON([]byte(`[1,2]`))
	require.Error(t, err)

	_, err = ParseJSON([]byte(`{"a":`))
	require.Error(t, err)

	_, err = ParseJSON([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
}

func TestYAML_KeepsLiteralScalars(t *testing.T) {
	var doc struct {
		Params *Map `yaml:"params"`
	}
	err := yaml.Unmarshal([]byte(`
params:
  Merchant_Number: 111
  Terminal_ID: 0111
  Action_Code: 05
  Nested:
    Inner: x
`), &doc)
	require.NoError(t, err)
	require.Equal(t, []string{"Merchant_Number", "Terminal_ID", "Action_Code", "Nested"}, doc.Params.Keys())

	v, _ := doc.Params.Get("Action_Code")
	require.Equal(t, "05", v)
	v, _ = doc.Params.Get("Terminal_ID")
	require.Equal(t, "0111", v)

	out, err := yaml.Marshal(doc.Params)
	require.NoError(t, err)
	var back Map
	require.NoError(t, yaml.Unmarshal(out, &back))
	require.True(t, doc.Params.Equal(&back))
}

func TestYAML_RejectsSequences(t *testing.T) {
	var m Map
	err := yaml.Unmarshal([]byte("a: [1, 2]\n"), &m)
	require.Error(t, err)
}

func TestParseQuery_PreservesOrder(t *testing.T) {
	m, err := ParseQuery("Terminal_ID=111&Merchant_Number=222&Action_Code=05&Note=a%20b&Terminal_ID=333")
	require.NoError(t, err)
	require.Equal(t, []string{"Terminal_ID", "Merchant_Number", "Action_Code", "Note"}, m.Keys())

	v, _ := m.Get("Terminal_ID")
	require.Equal(t, "333", v)
	v, _ = m.Get("Note")
	require.Equal(t, "a b", v)

	_, err = ParseQuery("bad=%zz")
	require.Error(t, err)
}
