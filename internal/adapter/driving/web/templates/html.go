// Package templates holds the templ components that render the web GUI.
package templates

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	vm "github.com/ericfisherdev/warrantypanel/internal/adapter/driving/web/viewmodel"
)

// html accumulates the first write error so components read top to bottom.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *html) attr(name, value string) {
	h.raw(" " + name + `="`)
	h.text(value)
	h.raw(`"`)
}

func (h *html) render(ctx context.Context, c templ.Component) {
	if h.err == nil && c != nil {
		h.err = c.Render(ctx, h.w)
	}
}

func (h *html) csrf(token string) {
	h.raw(`<input type="hidden" name="csrf_token"`)
	h.attr("value", token)
	h.raw(`>`)
}

// postForm writes a form with only a CSRF field and a submit button.
func (h *html) postForm(action, token, label, class string) {
	h.raw(`<form method="post"`)
	h.attr("action", action)
	h.raw(`>`)
	h.csrf(token)
	h.raw(`<button type="submit"`)
	h.attr("class", class)
	h.raw(`>`)
	h.text(label)
	h.raw(`</button></form>`)
}

func (h *html) flash(f *vm.Flash) {
	if f == nil {
		return
	}
	h.raw(`<div role="alert"`)
	h.attr("class", "flash flash-"+f.Kind)
	h.raw(`><p>`)
	h.text(f.Message)
	h.raw(`</p>`)
	if f.DetailHTML != "" {
		h.raw(`<pre class="flash-detail">`)
		h.raw(f.DetailHTML)
		h.raw(`</pre>`)
	}
	h.raw(`</div>`)
}

func itoa(n int) string { return strconv.Itoa(n) }
