// internal/evaluation/form_test.go
package evaluation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/quickeval/internal/testing/portalfake"
)

func TestParseForm_QuestionnairePage(t *testing.T) {
	form, err := ParseForm([]byte(portalfake.QuestionnairePage("wj-1", "kt-9", "tok-123")))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"wjbm": "wj-1", "ktid": "kt-9", "tokenValue": "tok-123"}, form.Hidden)

	want := []FormField{
		{Name: "0000000401", Kind: KindSingleChoice, Options: []string{"10_1", "10_0.8", "10_0.6"}},
		{Name: "0000000402", Kind: KindSingleChoice, Options: []string{"20_1", "20_0.5"}},
		{Name: "0000000403", Kind: KindMultiChoice, Options: []string{"K_专业知识", "K_研究方法", portalfake.Sentinel}},
		{Name: "0000000404", Kind: KindText, Placeholder: "请输入1-100的整数"},
	}
	if diff := cmp.Diff(want, form.Fields); diff != "" {
		t.Errorf("harvested fields mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, form.FreeText, 1)
	assert.Equal(t, "zgpj", form.FreeText[0].Name)
	assert.Equal(t, KindFreeText, form.FreeText[0].Kind)
}

func TestParseForm_Scope(t *testing.T) {
	t.Run("first table wins over the rest of the page", func(t *testing.T) {
		page := `<html><body>
<input type="radio" name="outside" value="x">
<table><tr><td><input type="radio" name="inside" value="a"><input type="radio" name="inside" value="b"></td></tr></table>
<table><tr><td><input type="radio" name="second" value="c"></td></tr></table>
<textarea name="c1"></textarea></body></html>`
		form, err := ParseForm([]byte(page))
		require.NoError(t, err)
		require.Len(t, form.Fields, 1)
		assert.Equal(t, "inside", form.Fields[0].Name)
	})

	t.Run("falls back to the first form", func(t *testing.T) {
		page := `<html><body>
<input type="checkbox" name="outside" value="x">
<form><input type="checkbox" name="q1" value="a"><select name="q2"><option value="">--</option><option value="v1">1</option><option value="v2">2</option></select></form>
</body></html>`
		form, err := ParseForm([]byte(page))
		require.NoError(t, err)
		want := []FormField{
			{Name: "q1", Kind: KindMultiChoice, Options: []string{"a"}},
			{Name: "q2", Kind: KindSingleChoice, Options: []string{"v1", "v2"}},
		}
		if diff := cmp.Diff(want, form.Fields); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("falls back to the whole document", func(t *testing.T) {
		page := `<div><input name="score" placeholder="请输入1-100的整数"><input type="submit" name="go" value="Go"></div>`
		form, err := ParseForm([]byte(page))
		require.NoError(t, err)
		require.Len(t, form.Fields, 1)
		assert.Equal(t, KindText, form.Fields[0].Kind, "inputs without a type are text inputs")
	})

	t.Run("hidden inputs and textareas come from the whole page", func(t *testing.T) {
		page := `<html><body>
<input type="hidden" name="wjbm" value="outer">
<table><tr><td><input type="HIDDEN" name="wjbm" value="inner"><input type="hidden" name="ktid" value="k"></td></tr></table>
<textarea name="first">pre</textarea><textarea name="second"></textarea>
</body></html>`
		form, err := ParseForm([]byte(page))
		require.NoError(t, err)
		assert.Equal(t, "outer", form.Hidden["wjbm"], "first hidden input of a name wins")
		assert.Equal(t, "k", form.Hidden["ktid"])
		assert.Empty(t, form.Fields, "hidden inputs are not question controls")
		require.Len(t, form.FreeText, 2)
		assert.Equal(t, "first", form.FreeText[0].Name)
		assert.Equal(t, "pre", form.FreeText[0].Value)
	})
}

func TestParseForm_Inputs(t *testing.T) {
	page := `<html><body>
<input name="wjbm" value="untyped">
<input type="text" name="ktid" value="kt-1" readonly>
<input type="hidden" name="ktid" value="later">
<table><tr><td><input type="radio" name="q1" value="a"></td></tr></table>
</body></html>`
	form, err := ParseForm([]byte(page))
	require.NoError(t, err)

	v, ok := form.InputValue("wjbm")
	require.True(t, ok)
	assert.Equal(t, "untyped", v)
	v, _ = form.InputValue("ktid")
	assert.Equal(t, "kt-1", v, "first input of a name wins whatever its type")
	assert.Equal(t, "later", form.Hidden["ktid"])
	_, ok = form.InputValue("tokenValue")
	assert.False(t, ok)
}

func TestParseForm_ValuelessChoices(t *testing.T) {
	page := `<table><tr><td>
<input type="radio" name="q3"><input type="radio" name="q3" value="">
<input type="checkbox" name="q4">
</td></tr></table>`
	form, err := ParseForm([]byte(page))
	require.NoError(t, err)

	want := []FormField{
		{Name: "q3", Kind: KindSingleChoice, Options: []string{"on", ""}},
		{Name: "q4", Kind: KindMultiChoice, Options: []string{"on"}},
	}
	if diff := cmp.Diff(want, form.Fields); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFormField_Lookup(t *testing.T) {
	form, err := ParseForm([]byte(portalfake.QuestionnairePage("w", "k", "t")))
	require.NoError(t, err)

	f, ok := form.Field("0000000402")
	require.True(t, ok)
	assert.Equal(t, "single-choice", f.Kind.String())

	_, ok = form.Field("nope")
	assert.False(t, ok)
}
