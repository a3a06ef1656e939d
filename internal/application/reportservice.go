package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
	"github.com/ericfisherdev/warrantypanel/internal/domain/port/driven"
)

const (
	// DefaultWindowDays is how far ahead a warranty expiry is reported.
	DefaultWindowDays = 90
	// DefaultConcurrency bounds parallel device listings.
	DefaultConcurrency = 4
	// DefaultRunTimeout bounds a whole report run.
	DefaultRunTimeout = 2 * time.Minute
)

// ReportService runs the warranty report pipeline against the upstream API
// and keeps each session's latest result for export.
type ReportService struct {
	client      driven.DeviceClient
	credentials *CredentialService
	mailers     driven.MailerFactory
	cache       *ReportCache
	clock       clockwork.Clock
	windowDays  int
	concurrency int
	runTimeout  time.Duration
	logger      *slog.Logger
}

// NewReportService creates a new ReportService. Non-positive windowDays,
// concurrency and runTimeout fall back to the defaults.
func NewReportService(
	client driven.DeviceClient,
	credentials *CredentialService,
	mailers driven.MailerFactory,
	cache *ReportCache,
	clock clockwork.Clock,
	windowDays int,
	concurrency int,
	runTimeout time.Duration,
	logger *slog.Logger,
) *ReportService {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		client:      client,
		credentials: credentials,
		mailers:     mailers,
		cache:       cache,
		clock:       clock,
		windowDays:  windowDays,
		concurrency: concurrency,
		runTimeout:  runTimeout,
		logger:      logger,
	}
}

// BuildReport exchanges the client pair for a token, lists organizations and
// then each organization's devices. Token and organization failures abort
// the run; a failed device listing is recorded in that organization's
// outcome and the run continues. Rows keep upstream order. The whole run
// is bounded by the service's run timeout; exceeding it fails the run with
// context.DeadlineExceeded.
func (s *ReportService) BuildReport(ctx context.Context, clientID, clientSecret string) (*model.Report, error) {
	start := s.clock.Now()

	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	token, err := s.client.FetchAccessToken(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	orgs, err := s.client.ListOrganizations(ctx, token)
	if err != nil {
		return nil, err
	}

	today := model.CalendarDate(start)
	cutoff := today.AddDate(0, 0, s.windowDays)

	outcomes := make([]model.OrganizationOutcome, len(orgs))
	rowsByOrg := make([][]model.WarrantyRow, len(orgs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, org := range orgs {
		g.Go(func() error {
			outcomes[i].Organization = org

			devices, err := s.client.ListDevices(ctx, token, org.ID)
			if err != nil {
				s.logger.Warn("device listing failed, skipping organization",
					"organization_id", org.ID, "organization", org.Name, "error", err)
				outcomes[i].Err = err
				return nil
			}

			rows := expiringRows(org, devices, today, cutoff)
			outcomes[i].DeviceCount = len(devices)
			outcomes[i].RowCount = len(rows)
			rowsByOrg[i] = rows
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("report run: %w", err)
	}

	report := &model.Report{
		ID:          uuid.NewString(),
		GeneratedAt: start,
		WindowDays:  s.windowDays,
		Outcomes:    outcomes,
	}
	for _, rows := range rowsByOrg {
		report.Rows = append(report.Rows, rows...)
	}

	s.logger.Info("warranty report built",
		"report_id", report.ID,
		"organizations", len(orgs),
		"skipped", len(report.SkippedOrganizations()),
		"rows", len(report.Rows),
		"duration", s.clock.Since(start),
	)
	return report, nil
}

// RunForSession builds a report with the session account's stored API
// credentials and caches it as the session's latest.
func (s *ReportService) RunForSession(ctx context.Context, session model.Session) (*model.Report, error) {
	creds, err := s.credentials.APICredentials(ctx, session.Email)
	if err != nil {
		return nil, err
	}

	report, err := s.BuildReport(ctx, creds.ClientID, creds.ClientSecret)
	if err != nil {
		return nil, err
	}

	s.cache.Put(session.ID, report)
	return report, nil
}

// LastReport returns the session's cached report or model.ErrNotFound.
func (s *ReportService) LastReport(session model.Session) (*model.Report, error) {
	report, ok := s.cache.Get(session.ID)
	if !ok {
		return nil, fmt.Errorf("no report for this session: %w", model.ErrNotFound)
	}
	return report, nil
}

// Forget drops the session's cached report.
func (s *ReportService) Forget(sessionID string) {
	s.cache.Drop(sessionID)
}

// EmailReport mails the session's cached report as a CSV attachment to the
// account address, through the account's own SMTP settings.
func (s *ReportService) EmailReport(ctx context.Context, session model.Session) error {
	report, err := s.LastReport(session)
	if err != nil {
		return err
	}

	settings, err := s.credentials.MailSettings(ctx, session.Email)
	if err != nil {
		return err
	}
	if !settings.Configured() {
		return model.ErrMailNotConfigured
	}

	var csv bytes.Buffer
	if err := WriteCSV(&csv, report); err != nil {
		return err
	}

	from := session.Email
	if strings.Contains(settings.Username, "@") {
		from = settings.Username
	}

	msg := driven.Message{
		To:      session.Email,
		Subject: "Warranty report " + report.GeneratedAt.UTC().Format(csvDateLayout),
		Body:    reportSummary(report),
		Attachments: []driven.Attachment{{
			Filename:    CSVFilename(report.GeneratedAt),
			ContentType: CSVContentType,
			Data:        csv.Bytes(),
		}},
	}

	if err := s.mailers.ForSettings(settings, from).Send(ctx, msg); err != nil {
		s.logger.Error("failed to email report", "email", session.Email, "report_id", report.ID, "error", err)
		return fmt.Errorf("%w: %w", model.ErrMailDelivery, err)
	}

	s.logger.Info("report emailed", "email", session.Email, "report_id", report.ID)
	return nil
}

// expiringRows keeps devices with a serial and a parseable expiry date on or
// before cutoff.
func expiringRows(org model.Organization, devices []model.Device, today, cutoff time.Time) []model.WarrantyRow {
	var rows []model.WarrantyRow
	for _, d := range devices {
		if d.SerialNumber == "" || d.ExpiryDate == "" {
			continue
		}
		expiry, ok := model.ParseExpiryDate(d.ExpiryDate)
		if !ok || expiry.After(cutoff) {
			continue
		}
		rows = append(rows, model.WarrantyRow{
			OrganizationName: org.Name,
			SerialNumber:     model.NormalizeSerial(d.SerialNumber),
			ExpiryDate:       expiry,
			DaysUntilExpiry:  model.DaysBetween(today, expiry),
			Expired:          d.Expired,
		})
	}
	return rows
}

// reportSummary renders the markdown body of a report email.
func reportSummary(report *model.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Warranty report generated %s UTC.\n\n", report.GeneratedAt.UTC().Format("2006-01-02 15:04"))

	switch {
	case report.NoOrganizations():
		b.WriteString(noOrganizationsRow + ".\n")
	case len(report.Rows) == 0:
		b.WriteString(NoRowsMessage(report.WindowDays) + ".\n")
	default:
		fmt.Fprintf(&b, "%d devices have a warranty expiring within %d days.\n\n", len(report.Rows), report.WindowDays)
		b.WriteString("| Organization | Serial | Expiry | Days | Expired |\n|---|---|---|---:|---|\n")
		for _, row := range report.Rows {
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n",
				escapeMarkdownCell(row.OrganizationName), row.SerialNumber,
				row.ExpiryDate.Format(csvDateLayout), row.DaysUntilExpiry, yesNo(row.Expired))
		}
	}

	if skipped := report.SkippedOrganizations(); len(skipped) > 0 {
		b.WriteString("\nSkipped organizations:\n\n")
		for _, o := range skipped {
			fmt.Fprintf(&b, "- %s: %s\n", escapeMarkdownCell(o.Organization.Name), describeOutcomeError(o.Err))
		}
	}

	b.WriteString("\nThe full list is attached as CSV.\n")
	return b.String()
}

func escapeMarkdownCell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ", "\r", "").Replace(s)
}

func describeOutcomeError(err error) string {
	var upErr *model.UpstreamError
	if errors.As(err, &upErr) {
		return fmt.Sprintf("HTTP %d", upErr.StatusCode)
	}
	return "request failed"
}
