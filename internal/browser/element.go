package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/krylovex/gridpick-cli/api/schemas"
)

// resolveNodeJS is the shared lookup prologue. It expects `sel` and `xpath`
// in scope and leaves `node` bound or returns null. Bad selector syntax is a
// benign miss, not a failure: candidate lists deliberately mix dialects.
const resolveNodeJS = `
		let node = null;
		try {
			if (xpath) {
				node = document.evaluate(sel, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
			} else {
				node = document.querySelector(sel);
			}
		} catch (e) {
			return null;
		}`

// elementGeometry is the wire shape the lookup script returns.
type elementGeometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Tag    string  `json:"tag"`
}

// Find tries each selector in order and returns the first visible match, or
// nil when none resolve. An error means the page itself could not be asked.
func (d *Driver) Find(ctx context.Context, selectors []string) (*schemas.Element, error) {
	for _, sel := range selectors {
		var res json.RawMessage
		if err := d.evaluate(ctx, elementScript(sel), &res); err != nil {
			return nil, fmt.Errorf("evaluating selector %q: %w", sel, err)
		}
		if len(res) == 0 || string(res) == "null" {
			continue
		}

		var g elementGeometry
		if err := json.Unmarshal(res, &g); err != nil {
			return nil, fmt.Errorf("undecodable geometry for %q: %w (payload: %s)", sel, err, res)
		}
		if g.Width <= 0 || g.Height <= 0 {
			continue
		}

		d.logger.Debug("Element resolved.",
			zap.String("selector", sel),
			zap.Float64("x", g.X),
			zap.Float64("y", g.Y),
			zap.Float64("width", g.Width),
			zap.Float64("height", g.Height),
		)
		return &schemas.Element{
			Selector: sel,
			Box: schemas.CaptureRegion{
				OffsetX: g.X,
				OffsetY: g.Y,
				Width:   g.Width,
				Height:  g.Height,
			},
			TagName: g.Tag,
		}, nil
	}
	return nil, nil
}

// ReadText returns the trimmed inner text of a previously resolved element.
// A node that has since left the DOM reads as empty, which downstream parsing
// treats as "use the default", so it is not an error here.
func (d *Driver) ReadText(ctx context.Context, el *schemas.Element) (string, error) {
	if el == nil {
		return "", errors.New("browser: read text on nil element")
	}

	var res json.RawMessage
	if err := d.evaluate(ctx, readTextScript(el.Selector), &res); err != nil {
		return "", fmt.Errorf("reading text of %q: %w", el.Selector, err)
	}
	if len(res) == 0 || string(res) == "null" {
		d.logger.Debug("Element vanished before text read.", zap.String("selector", el.Selector))
		return "", nil
	}

	var text string
	if err := json.Unmarshal(res, &text); err != nil {
		return "", fmt.Errorf("undecodable text for %q: %w", el.Selector, err)
	}
	return text, nil
}

// SetValue writes value into the first input matched by the selector list and
// fires the input/change events scripted pages listen for.
func (d *Driver) SetValue(ctx context.Context, selectors []string, value string) error {
	for _, sel := range selectors {
		var res json.RawMessage
		if err := d.evaluate(ctx, setValueScript(sel, value), &res); err != nil {
			return fmt.Errorf("setting value via %q: %w", sel, err)
		}
		if string(res) == "true" {
			d.logger.Debug("Value written.", zap.String("selector", sel))
			return nil
		}
	}
	return fmt.Errorf("no input matched any of %d selectors", len(selectors))
}

// isXPath reports whether a selector candidate should be evaluated as an
// XPath expression rather than a CSS selector.
func isXPath(sel string) bool {
	return strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "(")
}

// elementScript resolves a selector to page-absolute geometry, or null when
// the node is missing or not visible.
func elementScript(sel string) string {
	return fmt.Sprintf(`
	(function(sel, xpath) {%s
		if (!node || node.nodeType !== 1) return null;
		const rect = node.getBoundingClientRect();
		const style = window.getComputedStyle(node);
		const visible = rect.width > 0 && rect.height > 0 &&
			style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
		if (!visible) return null;
		return {
			x: rect.left + window.scrollX,
			y: rect.top + window.scrollY,
			width: rect.width,
			height: rect.height,
			tag: node.tagName || ''
		};
	})(%s, %t)`, resolveNodeJS, jsonEncode(sel), isXPath(sel))
}

func readTextScript(sel string) string {
	return fmt.Sprintf(`
	(function(sel, xpath) {%s
		if (!node) return null;
		const text = node.innerText != null ? node.innerText : node.textContent;
		return (text || '').trim();
	})(%s, %t)`, resolveNodeJS, jsonEncode(sel), isXPath(sel))
}

func setValueScript(sel, value string) string {
	return fmt.Sprintf(`
	(function(sel, xpath, value) {%s
		if (!node || node.nodeType !== 1) return false;
		if (node.focus) node.focus();
		node.value = value;
		node.dispatchEvent(new Event('input', {bubbles: true}));
		node.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})(%s, %t, %s)`, resolveNodeJS, jsonEncode(sel), isXPath(sel), jsonEncode(value))
}

// jsonEncode safely embeds a value, especially a string, into a script.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
