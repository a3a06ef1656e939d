package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"

	vm "github.com/ericfisherdev/warrantypanel/internal/adapter/driving/web/viewmodel"
)

// Layout wraps body in the page chrome. A sign-out button is shown when the
// layout carries an account email.
func Layout(layout vm.LayoutViewModel, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}

		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		h.raw(`<title>`)
		h.text(layout.Title)
		h.raw(` · Warranty Panel</title>`)
		h.raw(`<link rel="stylesheet" href="/static/style.css"></head><body>`)

		h.raw(`<header class="topbar"><a class="brand" href="/">Warranty Panel</a>`)
		if layout.Email != "" {
			h.raw(`<div class="account"><span>`)
			h.text(layout.Email)
			h.raw(`</span>`)
			h.postForm("/logout", layout.CSRFToken, "Sign out", "link")
			h.raw(`</div>`)
		}
		h.raw(`</header><main>`)

		h.render(ctx, body)

		h.raw(`</main></body></html>`)
		return h.err
	})
}
