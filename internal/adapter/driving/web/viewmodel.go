package web

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	vm "github.com/ericfisherdev/warrantypanel/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/warrantypanel/internal/application"
	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

// soonDays marks rows that expire within a month.
const soonDays = 30

var (
	strictPolicy = bluemonday.StrictPolicy()

	fieldLabels = map[string]string{
		model.FieldAPIClientID:     "API client ID",
		model.FieldAPIClientSecret: "API client secret",
		model.FieldSMTPHost:        "SMTP host",
		model.FieldSMTPPort:        "SMTP port",
		model.FieldSMTPUsername:    "SMTP username",
		model.FieldSMTPPassword:    "SMTP password",
		model.FieldSMTPTLS:         "SMTP TLS setting",
	}
)

// sanitizeUpstream strips markup from an upstream response body for display.
func sanitizeUpstream(body string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(body))
}

func fieldLabel(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}

func toPanelViewModel(panel *application.CredentialPanel, report *model.Report) vm.PanelViewModel {
	field := func(name, value string, isSet bool) vm.CredentialFieldViewModel {
		return vm.CredentialFieldViewModel{Value: value, IsSet: isSet, Corrupt: panel.IsCorrupt(name)}
	}

	port := ""
	if panel.SMTPPort > 0 {
		port = strconv.Itoa(panel.SMTPPort)
	}

	pvm := vm.PanelViewModel{
		ClientID:     field(model.FieldAPIClientID, panel.ClientID, panel.ClientID != ""),
		ClientSecret: field(model.FieldAPIClientSecret, "", panel.ClientSecretSet),
		SMTPHost:     field(model.FieldSMTPHost, panel.SMTPHost, panel.SMTPHost != ""),
		SMTPPort:     field(model.FieldSMTPPort, port, port != ""),
		SMTPUsername: field(model.FieldSMTPUsername, panel.SMTPUsername, panel.SMTPUsername != ""),
		SMTPPassword: field(model.FieldSMTPPassword, "", panel.SMTPPasswordSet),
		SMTPTLS:      panel.SMTPTLS,
		SMTPTLSBad:   panel.IsCorrupt(model.FieldSMTPTLS),
		HasCorrupt:   len(panel.Corrupt) > 0,
	}
	if report != nil {
		r := toReportViewModel(report)
		pvm.Report = &r
	}
	return pvm
}

func toReportViewModel(report *model.Report) vm.ReportViewModel {
	rvm := vm.ReportViewModel{
		ID:          report.ID,
		GeneratedAt: report.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"),
		WindowDays:  report.WindowDays,
		Rows:        make([]vm.RowViewModel, 0, len(report.Rows)),
		CSVPath:     "/report.csv",
	}

	switch {
	case report.NoOrganizations():
		rvm.Message = "No organizations found"
	case len(report.Rows) == 0:
		rvm.Message = application.NoRowsMessage(report.WindowDays)
	}

	for _, row := range report.Rows {
		rvm.Rows = append(rvm.Rows, vm.RowViewModel{
			Organization:    row.OrganizationName,
			SerialNumber:    row.SerialNumber,
			ExpiryDate:      row.ExpiryDate.Format("2006-01-02"),
			DaysUntilExpiry: row.DaysUntilExpiry,
			Expired:         row.Expired,
			Urgency:         urgency(row.DaysUntilExpiry),
		})
	}

	for _, o := range report.SkippedOrganizations() {
		rvm.Skipped = append(rvm.Skipped, vm.SkippedOrganizationViewModel{
			Name:   o.Organization.Name,
			Reason: skipReason(o.Err),
		})
	}

	return rvm
}

func urgency(days int) string {
	switch {
	case days < 0:
		return "expired"
	case days <= soonDays:
		return "soon"
	default:
		return "later"
	}
}

func skipReason(err error) string {
	var upErr *model.UpstreamError
	if errors.As(err, &upErr) {
		return fmt.Sprintf("device listing returned HTTP %d", upErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "device listing timed out"
	}
	return "device listing failed"
}

func toVerifyViewModel(pending *application.PendingLogin, now time.Time) vm.VerifyViewModel {
	v := vm.VerifyViewModel{Email: pending.Email}
	if remaining := pending.ResendAfter.Sub(now); remaining > 0 {
		v.ResendAfterSeconds = (&model.CooldownError{Remaining: remaining}).RemainingSeconds()
	}
	return v
}

func noticeFlash(message string) *vm.Flash {
	return &vm.Flash{Kind: "notice", Message: message}
}

func errorFlash(message string) *vm.Flash {
	return &vm.Flash{Kind: "error", Message: message}
}

// flashForError turns a service error into a user-facing message. ok is false
// for unexpected errors, which the caller should log and answer with 500.
func flashForError(err error) (flash *vm.Flash, ok bool) {
	var (
		cooldown *model.CooldownError
		decErr   *model.DecryptionError
		authErr  *model.AuthError
		upErr    *model.UpstreamError
	)

	switch {
	case errors.Is(err, model.ErrInvalidCredential):
		return errorFlash("That code is not valid. Check the latest email and try again."), true
	case errors.As(err, &cooldown):
		return errorFlash(fmt.Sprintf("Please wait %d seconds before requesting another code.", cooldown.RemainingSeconds())), true
	case errors.Is(err, model.ErrInvalidEmail):
		return errorFlash("Enter a valid email address."), true
	case errors.Is(err, model.ErrMailDelivery):
		return errorFlash("The email could not be sent. Try again in a moment."), true
	case errors.As(err, &decErr):
		return errorFlash(fmt.Sprintf("Your saved %s could not be decrypted. Re-enter it below.", fieldLabel(decErr.Field))), true
	case errors.Is(err, model.ErrCredentialsMissing):
		return errorFlash("Save your API client ID and secret before running a report."), true
	case errors.Is(err, model.ErrMailNotConfigured):
		return errorFlash("Save your SMTP settings before emailing a report."), true
	case errors.Is(err, model.ErrNotFound):
		return errorFlash("Run a report first."), true
	case errors.Is(err, model.ErrInvalidInput):
		return errorFlash(strings.TrimPrefix(err.Error(), model.ErrInvalidInput.Error()+": ")), true
	case errors.As(err, &authErr):
		return &vm.Flash{
			Kind:       "error",
			Message:    fmt.Sprintf("The device API rejected your credentials (HTTP %d).", authErr.StatusCode),
			DetailHTML: sanitizeUpstream(authErr.Body),
		}, true
	case errors.As(err, &upErr):
		return &vm.Flash{
			Kind:       "error",
			Message:    fmt.Sprintf("The device API failed to %s (HTTP %d).", upErr.Operation, upErr.StatusCode),
			DetailHTML: sanitizeUpstream(upErr.Body),
		}, true
	case errors.Is(err, context.DeadlineExceeded):
		return errorFlash("The device API did not respond in time."), true
	default:
		return errorFlash("Something went wrong. Try again."), false
	}
}
