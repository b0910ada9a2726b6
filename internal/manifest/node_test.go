package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KeepsKeyOrder(t *testing.T) {
	root, err := Parse([]byte(`{"z":1,"a":"x","m":[true,null]}`))
	require.NoError(t, err)

	require.Equal(t, KindObject, root.Kind)
	var keys []string
	for _, f := range root.Fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"z", "a", "m"}, keys)

	assert.Equal(t, KindNumber, root.Get("z").Kind)
	assert.Equal(t, "1", root.Get("z").Str)
	assert.Equal(t, "x", root.Get("a").String())

	m := root.Get("m")
	require.Len(t, m.Items, 2)
	assert.Equal(t, KindBool, m.Items[0].Kind)
	assert.True(t, m.Items[0].Bool)
	assert.Equal(t, KindNull, m.Items[1].Kind)
}

func TestParse_DuplicateKeyLastWins(t *testing.T) {
	root, err := Parse([]byte(`{"code":"first","code":"second"}`))
	require.NoError(t, err)
	assert.Equal(t, "second", root.Get("code").String())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated object", `{"a":1`},
		{"unterminated array", `[1,2`},
		{"missing colon", `{"a" 1}`},
		{"bare word", `hello`},
		{"trailing value", `{} {}`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestNode_GetOnNonObject(t *testing.T) {
	var nilNode *Node
	assert.Nil(t, nilNode.Get("x"))
	assert.Equal(t, "", nilNode.String())

	arr := &Node{Kind: KindArray}
	assert.Nil(t, arr.Get("x"))
}
