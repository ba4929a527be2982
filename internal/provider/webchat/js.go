package webchat

import (
	"encoding/json"
	"fmt"
)

// jsString encodes a Go string as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// jsQueryAll returns a JS expression evaluating to an array of elements
// matching the selector. XPath expressions go through document.evaluate.
func jsQueryAll(selector string, xpath bool) string {
	if xpath {
		return fmt.Sprintf(`(() => {
	const out = [];
	const it = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	for (let i = 0; i < it.snapshotLength; i++) out.push(it.snapshotItem(i));
	return out;
})()`, jsString(selector))
	}
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s))`, jsString(selector))
}

// jsExists evaluates to true when at least one element matches.
func jsExists(selector string, xpath bool) string {
	return fmt.Sprintf(`%s.length > 0`, jsQueryAll(selector, xpath))
}

// jsLastText evaluates to the trimmed text content of the last matching
// element, or the empty string when nothing matches.
func jsLastText(selector string, xpath bool) string {
	return fmt.Sprintf(`(() => {
	const els = %s;
	if (els.length === 0) return "";
	const el = els[els.length - 1];
	return (el.innerText || el.textContent || "").trim();
})()`, jsQueryAll(selector, xpath))
}

// jsSetInput fills the first matching input with text. Handles both form
// inputs and contenteditable editors, and fires an input event so frameworks
// pick up the change.
func jsSetInput(selector, text string, xpath bool) string {
	return fmt.Sprintf(`(() => {
	const els = %s;
	if (els.length === 0) return false;
	const el = els[0];
	el.focus();
	if (el.isContentEditable) {
		el.innerText = %s;
	} else {
		el.value = %s;
	}
	el.dispatchEvent(new Event("input", { bubbles: true }));
	return true;
})()`, jsQueryAll(selector, xpath), jsString(text), jsString(text))
}

// jsClearInput empties the first matching input.
func jsClearInput(selector string, xpath bool) string {
	return fmt.Sprintf(`(() => {
	const els = %s;
	if (els.length === 0) return false;
	const el = els[0];
	if (el.isContentEditable) {
		el.innerText = "";
	} else {
		el.value = "";
	}
	el.dispatchEvent(new Event("input", { bubbles: true }));
	return true;
})()`, jsQueryAll(selector, xpath))
}

// jsSendDisabled evaluates to true when the send button exists and is
// disabled, either via the disabled property or aria-disabled.
func jsSendDisabled(selector string, xpath bool) string {
	return fmt.Sprintf(`(() => {
	const els = %s;
	if (els.length === 0) return false;
	const el = els[0];
	return el.disabled === true || el.getAttribute("aria-disabled") === "true";
})()`, jsQueryAll(selector, xpath))
}

// jsClickFirst clicks the first matching element via its click handler.
// Used for buttons that chromedp's node-based click cannot reach.
func jsClickFirst(selector string, xpath bool) string {
	return fmt.Sprintf(`(() => {
	const els = %s;
	if (els.length === 0) return false;
	els[0].click();
	return true;
})()`, jsQueryAll(selector, xpath))
}
