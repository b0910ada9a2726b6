package manifest

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bowltrack/internal/bowl"
)

func flatten(t *testing.T, input string) []Entry {
	t.Helper()
	root, err := Parse([]byte(input))
	require.NoError(t, err)
	return Flatten(root)
}

func codesOf(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Code
	}
	return out
}

func TestFlatten_CompanyTree(t *testing.T) {
	data, err := os.ReadFile("testdata/companies.json")
	require.NoError(t, err)
	root, err := Parse(data)
	require.NoError(t, err)

	got := Flatten(root)

	want := []Entry{
		{
			Code: "https://vyt.to/box1",
			Meta: bowl.Meta{Company: "Acme", Customer: "Front Desk"},
			Path: "$.companies[0].boxes[0].boxId",
		},
		{
			Code: "https://vyt.to/a1",
			Meta: bowl.Meta{Company: "Acme", Customer: "jane, bob", Dish: "A"},
			Path: "$.companies[0].boxes[0].dishes[0].bowlCodes[0]",
		},
		{
			Code: "https://vyt.to/a2",
			Meta: bowl.Meta{Company: "Acme", Customer: "jane, bob", Dish: "A"},
			Path: "$.companies[0].boxes[0].dishes[0].bowlCodes[1]",
		},
		{
			Code: "https://vyt.to/b1",
			Meta: bowl.Meta{Company: "Acme", Customer: "Front Desk", Dish: "B"},
			Path: "$.companies[0].boxes[0].dishes[1].bowlCodes[0]",
		},
		{
			Code: "not-a-url",
			Meta: bowl.Meta{Company: "Acme", Customer: "Front Desk", Dish: "B"},
			Path: "$.companies[0].boxes[0].dishes[1].bowlCodes[1]",
		},
		{
			Code: "https://vytal.eu/g1",
			Meta: bowl.Meta{Company: "Globex"},
			Path: "$.companies[1].codes[0]",
		},
		{
			Code: "https://vyt.to/a1",
			Meta: bowl.Meta{Company: "Globex", Dish: "C"},
			Path: "$.companies[1].boxes[0].dishes[0].bowlCode",
		},
	}
	assert.Equal(t, want, got)
}

func TestFlatten_FlatArray(t *testing.T) {
	got := flatten(t, `[
		{"code": "https://vyt.to/1", "name": "Acme", "customer": "Jane"},
		{"uniqueIdentifier": "https://vyt.to/2"},
		{"bowl_id": "https://vyt.to/3", "company": "Globex"}
	]`)

	require.Len(t, got, 3)
	assert.Equal(t, bowl.Meta{Company: "Acme", Customer: "Jane"}, got[0].Meta)
	assert.Equal(t, bowl.Meta{}, got[1].Meta, "no leakage from the previous element")
	assert.Equal(t, bowl.Meta{Company: "Globex"}, got[2].Meta)
}

func TestFlatten_NameOnlyMeansCompanyAtContainerLevel(t *testing.T) {
	got := flatten(t, `{"boxes":[{"name":"box label","code":"https://vyt.to/1"}]}`)

	require.Len(t, got, 1)
	assert.Empty(t, got[0].Meta.Company)
}

func TestFlatten_DeliveriesAreContainers(t *testing.T) {
	got := flatten(t, `{"deliveries":[{"name":"Acme","dishes":[{"label":"D","bowlCodes":["https://vyt.to/1"]}]}]}`)

	require.Len(t, got, 1)
	assert.Equal(t, bowl.Meta{Company: "Acme", Dish: "D"}, got[0].Meta)
}

func TestFlatten_FieldOrderWithinNode(t *testing.T) {
	got := flatten(t, `{
		"codes": ["https://vyt.to/c"],
		"bowlCodes": ["https://vyt.to/b"],
		"id": "https://vyt.to/i",
		"code": "https://vyt.to/a"
	}`)

	assert.Equal(t, []string{
		"https://vyt.to/a",
		"https://vyt.to/i",
		"https://vyt.to/b",
		"https://vyt.to/c",
	}, codesOf(got))
}

func TestFlatten_IgnoresNonStringCodes(t *testing.T) {
	got := flatten(t, `{"id": 42, "code": null, "codes": [1, "https://vyt.to/x", "  ", {"a": 1}]}`)

	assert.Equal(t, []string{"https://vyt.to/x"}, codesOf(got))
}

func TestFlatten_ScalarRoot(t *testing.T) {
	assert.Empty(t, flatten(t, `"https://vyt.to/x"`))
}
