package browser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
)

// locator is a parsed element selector. CSS is the default; an "xpath="
// prefix or a leading "/" or "(" selects XPath. A "css=" prefix is accepted
// and stripped. role=button[name="Send"] matches by ARIA role and
// accessible name.
type locator struct {
	raw   string
	query string
	xpath bool

	role    string
	name    string
	hasName bool
}

// roleExpr matches role=<role> with an optional [name="..."] or [name='...'].
var roleExpr = regexp.MustCompile(`^role=([a-z]+)(?:\[name=(?:"([^"]*)"|'([^']*)')\])?$`)

// implicitRoles lists native elements that carry a role without a role
// attribute.
var implicitRoles = map[string]string{
	"button":   "button, input[type='button'], input[type='submit']",
	"textbox":  "input:not([type]), input[type='text'], input[type='email'], textarea",
	"link":     "a[href]",
	"checkbox": "input[type='checkbox']",
	"combobox": "select",
}

func parseLocator(raw string) (locator, error) {
	s := strings.TrimSpace(raw)
	l := locator{raw: raw}
	switch {
	case strings.HasPrefix(s, "role="):
		m := roleExpr.FindStringSubmatch(s)
		if m == nil {
			return locator{}, fmt.Errorf("malformed role locator %q", raw)
		}
		l.role = m[1]
		l.name = m[2] + m[3]
		l.hasName = strings.Contains(s, "[name=")
		l.query = s
	case strings.HasPrefix(s, "xpath="):
		l.query, l.xpath = strings.TrimSpace(strings.TrimPrefix(s, "xpath=")), true
	case strings.HasPrefix(s, "css="):
		l.query = strings.TrimSpace(strings.TrimPrefix(s, "css="))
	case strings.HasPrefix(s, "/"), strings.HasPrefix(s, "("):
		l.query, l.xpath = s, true
	default:
		l.query = s
	}
	if l.query == "" {
		return locator{}, fmt.Errorf("empty locator %q", raw)
	}
	return l, nil
}

// target is a JS path to the first visible match, or the first match when
// none is visible. Mail UIs keep hidden copies of compose controls in the
// DOM, so plain document order is not enough.
func (l locator) target() string {
	return fmt.Sprintf(`((nodes) => nodes.find(%s) || nodes[0])(%s)`, jsIsVisible, l.jsNodes())
}

// queryOptions selects the chromedp query strategy for target.
func (l locator) queryOptions() []chromedp.QueryOption {
	return []chromedp.QueryOption{chromedp.ByJSPath}
}

// jsNodes is a JS expression evaluating to an array of every matching
// element in document order.
func (l locator) jsNodes() string {
	if l.role != "" {
		return l.jsRoleNodes()
	}
	q, _ := jsoniter.MarshalToString(l.query)
	if l.xpath {
		return fmt.Sprintf(`(() => {
  const r = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
  const out = [];
  for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
  return out;
})()`, q)
	}
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s))`, q)
}

// jsRoleNodes matches explicit role attributes and native elements with the
// same implicit role, then filters on the accessible name when one is given.
func (l locator) jsRoleNodes() string {
	css := fmt.Sprintf("[role='%s']", l.role)
	if native, ok := implicitRoles[l.role]; ok {
		css += ", " + native
	}
	q, _ := jsoniter.MarshalToString(css)
	role, _ := jsoniter.MarshalToString(l.role)
	name := "null"
	if l.hasName {
		name, _ = jsoniter.MarshalToString(l.name)
	}
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).filter((el) => {
  const role = el.getAttribute('role');
  if (role && role !== %s) return false;
  const want = %s;
  if (want === null) return true;
  const name = (el.getAttribute('aria-label') || el.getAttribute('title') || el.textContent || '').trim();
  return name === want;
})`, q, role, name)
}

const jsIsVisible = `(el) => {
  const r = el.getBoundingClientRect();
  const s = window.getComputedStyle(el);
  return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
}`

// visibleScript reports whether any match is rendered.
func (l locator) visibleScript() string {
	return fmt.Sprintf(`%s.some(%s)`, l.jsNodes(), jsIsVisible)
}

// fillScript replaces the value of the first visible match, or the first
// match when none is visible, and fires input and change events. It
// evaluates to false when nothing matches.
func (l locator) fillScript(value string) string {
	v, _ := jsoniter.MarshalToString(value)
	return fmt.Sprintf(`(() => {
  const nodes = %s;
  const el = nodes.find(%s) || nodes[0];
  if (!el) return false;
  const value = %s;
  el.focus();
  if ('value' in el) {
    const desc = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(el), 'value');
    if (desc && desc.set) { desc.set.call(el, value); } else { el.value = value; }
  } else if (el.isContentEditable) {
    el.textContent = value;
  } else {
    return false;
  }
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()`, l.jsNodes(), jsIsVisible, v)
}
