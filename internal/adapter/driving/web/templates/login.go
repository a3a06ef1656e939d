package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"

	vm "github.com/ericfisherdev/warrantypanel/internal/adapter/driving/web/viewmodel"
)

// Login renders the email entry form.
func Login(page vm.LoginViewModel, csrfToken string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &html{w: w}

		h.raw(`<section class="card narrow"><h1>Sign in</h1>`)
		h.flash(page.Flash)
		h.raw(`<p>We will email you a six-digit code.</p>`)
		h.raw(`<form method="post" action="/login">`)
		h.csrf(csrfToken)
		h.raw(`<label for="email">Email</label>`)
		h.raw(`<input id="email" name="email" type="email" autocomplete="email" required autofocus`)
		h.attr("value", page.Email)
		h.raw(`><button type="submit">Send code</button></form></section>`)

		return h.err
	})
}

// Verify renders the code entry form and the resend control.
func Verify(page vm.VerifyViewModel, csrfToken string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &html{w: w}

		h.raw(`<section class="card narrow"><h1>Enter your code</h1>`)
		h.flash(page.Flash)
		h.raw(`<p>A code was sent to <strong>`)
		h.text(page.Email)
		h.raw(`</strong>.</p>`)

		h.raw(`<form method="post" action="/verify">`)
		h.csrf(csrfToken)
		h.raw(`<label for="code">Code</label>`)
		h.raw(`<input id="code" name="code" inputmode="numeric" pattern="[0-9]*" maxlength="6" autocomplete="one-time-code" required autofocus>`)
		h.raw(`<button type="submit">Sign in</button></form>`)

		h.raw(`<form method="post" action="/resend" class="resend">`)
		h.csrf(csrfToken)
		if page.ResendAfterSeconds > 0 {
			h.raw(`<p class="muted" data-resend-after="`)
			h.raw(itoa(page.ResendAfterSeconds))
			h.raw(`">You can request a new code in `)
			h.raw(itoa(page.ResendAfterSeconds))
			h.raw(` seconds.</p><button type="submit" class="secondary" disabled>Resend code</button>`)
		} else {
			h.raw(`<button type="submit" class="secondary">Resend code</button>`)
		}
		h.raw(`</form><p><a href="/login">Use a different email</a></p></section>`)

		return h.err
	})
}
