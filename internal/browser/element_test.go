package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsXPath(t *testing.T) {
	cases := []struct {
		sel   string
		xpath bool
	}{
		{"//div[contains(@class,'captcha')]//p", true},
		{"/html/body/div", true},
		{"(//button[contains(text(),'Verify')])[1]", true},
		{"div.captcha-grid", false},
		{"#captcha", false},
		{"input[type='password']", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.xpath, isXPath(tc.sel), "selector %q", tc.sel)
	}
}

func TestElementScript_EmbedsEscapedSelector(t *testing.T) {
	script := elementScript(`//button[contains(text(),"Verify")]`)
	assert.Contains(t, script, `"//button[contains(text(),\"Verify\")]"`)
	assert.Contains(t, script, ", true)")
	assert.Contains(t, script, "getBoundingClientRect")
	assert.Contains(t, script, "getComputedStyle")

	css := elementScript("div.captcha-grid")
	assert.Contains(t, css, `"div.captcha-grid"`)
	assert.Contains(t, css, ", false)")
}

func TestReadTextScript_FallsBackToTextContent(t *testing.T) {
	script := readTextScript("div.captcha-instructions")
	assert.Contains(t, script, "innerText")
	assert.Contains(t, script, "textContent")
	assert.Contains(t, script, `"div.captcha-instructions"`)
}

func TestSetValueScript_EmbedsValueAndFiresEvents(t *testing.T) {
	script := setValueScript("input[type='password']", `hunter"2`)
	assert.Contains(t, script, `"hunter\"2"`)
	assert.Contains(t, script, "new Event('input'")
	assert.Contains(t, script, "new Event('change'")
}

func TestJSONEncode(t *testing.T) {
	assert.Equal(t, `"plain"`, jsonEncode("plain"))
	assert.Equal(t, `"with \"quotes\""`, jsonEncode(`with "quotes"`))
	// Unmarshalable values fall back to an empty string literal.
	assert.Equal(t, `""`, jsonEncode(make(chan int)))
}
