package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"

	vm "github.com/ericfisherdev/warrantypanel/internal/adapter/driving/web/viewmodel"
)

// Panel renders the credential forms, the report controls and, when present,
// the latest report.
func Panel(page vm.PanelViewModel, csrfToken string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &html{w: w}

		h.flash(page.Flash)
		if page.HasCorrupt {
			h.raw(`<div class="flash flash-error" role="alert"><p>Some saved settings could not be decrypted and are shown blank. Re-enter them to continue.</p></div>`)
		}

		h.raw(`<div class="grid">`)
		apiForm(h, page, csrfToken)
		mailForm(h, page, csrfToken)
		h.raw(`</div>`)

		h.raw(`<section class="card"><h2>Warranty report</h2>`)
		h.raw(`<p>Lists devices whose warranty expires within the report window.</p><div class="actions">`)
		h.postForm("/report", csrfToken, "Run report", "")
		if page.Report != nil {
			h.raw(`<a class="button secondary"`)
			h.attr("href", page.Report.CSVPath)
			h.raw(`>Download CSV</a>`)
			h.postForm("/report/email", csrfToken, "Email CSV to me", "secondary")
		}
		h.raw(`</div>`)
		if page.Report != nil {
			report(h, page.Report)
		}
		h.raw(`</section>`)

		h.raw(`<section class="card danger"><h2>Delete account</h2>`)
		h.raw(`<p>Removes your account, all saved credentials and every session.</p>`)
		h.postForm("/account/delete", csrfToken, "Delete my account", "danger")
		h.raw(`</section>`)

		return h.err
	})
}

func apiForm(h *html, page vm.PanelViewModel, csrfToken string) {
	h.raw(`<section class="card"><h2>Device API</h2><form method="post" action="/panel/api">`)
	h.csrf(csrfToken)
	input(h, "client_id", "Client ID", "text", page.ClientID, false)
	input(h, "client_secret", "Client secret", "password", page.ClientSecret, true)
	h.raw(`<button type="submit">Save API credentials</button></form></section>`)
}

func mailForm(h *html, page vm.PanelViewModel, csrfToken string) {
	h.raw(`<section class="card"><h2>SMTP relay</h2><p class="muted">Used to email reports to you.</p>`)
	h.raw(`<form method="post" action="/panel/mail">`)
	h.csrf(csrfToken)
	input(h, "smtp_host", "Host", "text", page.SMTPHost, false)
	input(h, "smtp_port", "Port", "number", page.SMTPPort, false)
	input(h, "smtp_username", "Username", "text", page.SMTPUsername, false)
	input(h, "smtp_password", "Password", "password", page.SMTPPassword, true)
	h.raw(`<label class="checkbox"><input type="checkbox" name="smtp_tls" value="true"`)
	if page.SMTPTLS {
		h.raw(` checked`)
	}
	h.raw(`> Require TLS</label>`)
	if page.SMTPTLSBad {
		h.raw(`<p class="field-error">Could not be decrypted, re-enter it.</p>`)
	}
	h.raw(`<button type="submit">Save SMTP settings</button></form></section>`)
}

// input writes a labelled field. Secret fields never echo their value and
// say whether one is stored instead.
func input(h *html, name, label, typ string, f vm.CredentialFieldViewModel, secret bool) {
	h.raw(`<label`)
	h.attr("for", name)
	h.raw(`>`)
	h.text(label)
	h.raw(`</label><input`)
	h.attr("id", name)
	h.attr("name", name)
	h.attr("type", typ)
	if secret {
		h.raw(` autocomplete="new-password"`)
		if f.IsSet {
			h.raw(` placeholder="Stored; leave blank to keep"`)
		}
	} else {
		h.attr("value", f.Value)
	}
	h.raw(`>`)
	if f.Corrupt {
		h.raw(`<p class="field-error">Could not be decrypted, re-enter it.</p>`)
	}
}

func report(h *html, r *vm.ReportViewModel) {
	h.raw(`<p class="muted">Generated `)
	h.text(r.GeneratedAt)
	h.raw(` · window `)
	h.raw(itoa(r.WindowDays))
	h.raw(` days</p>`)

	if len(r.Skipped) > 0 {
		h.raw(`<div class="flash flash-notice"><p>Some organizations were skipped:</p><ul>`)
		for _, s := range r.Skipped {
			h.raw(`<li><strong>`)
			h.text(s.Name)
			h.raw(`</strong>: `)
			h.text(s.Reason)
			h.raw(`</li>`)
		}
		h.raw(`</ul></div>`)
	}

	if r.Message != "" {
		h.raw(`<p class="empty">`)
		h.text(r.Message)
		h.raw(`</p>`)
		return
	}

	h.raw(`<table class="report"><thead><tr><th>Organization</th><th>Serial number</th><th>Warranty expiry</th><th>Days until expiry</th><th>Expired</th></tr></thead><tbody>`)
	for _, row := range r.Rows {
		h.raw(`<tr`)
		h.attr("class", row.Urgency)
		h.raw(`><td>`)
		h.text(row.Organization)
		h.raw(`</td><td>`)
		h.text(row.SerialNumber)
		h.raw(`</td><td>`)
		h.text(row.ExpiryDate)
		h.raw(`</td><td class="num">`)
		h.raw(itoa(row.DaysUntilExpiry))
		h.raw(`</td><td>`)
		if row.Expired {
			h.raw(`YES`)
		} else {
			h.raw(`NO`)
		}
		h.raw(`</td></tr>`)
	}
	h.raw(`</tbody></table>`)
}
