// Package mail sends the weekly wellness report by email.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"grandbridge/internal/model"
	"grandbridge/internal/wellness"
)

var ErrDisabled = errors.New("mail not configured")

type Mailer interface {
	SendWeeklyReport(ctx context.Context, u *model.User, r *wellness.WeeklyReport) error
}

type SendGrid struct {
	client *sendgrid.Client
	from   *mail.Email
	log    *zap.Logger
}

func NewSendGrid(apiKey, from string, log *zap.Logger) *SendGrid {
	return &SendGrid{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail("GrandBridge", from),
		log:    log,
	}
}

func (s *SendGrid) SendWeeklyReport(ctx context.Context, u *model.User, r *wellness.WeeklyReport) error {
	plain, html, err := WeeklyBody(u, r)
	if err != nil {
		return err
	}
	msg := mail.NewSingleEmail(s.from, "Your weekly wellness report", mail.NewEmail(u.Username, u.Email), plain, html)

	res, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d", res.StatusCode)
	}
	s.log.Debug("weekly report sent", zap.Int64("user_id", u.ID), zap.Int("status", res.StatusCode))
	return nil
}

type Disabled struct{}

func (Disabled) SendWeeklyReport(context.Context, *model.User, *wellness.WeeklyReport) error {
	return ErrDisabled
}

var weeklyHTML = template.Must(template.New("weekly").Funcs(template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.0f%%", v) },
	"avg": func(v float64) string { return fmt.Sprintf("%.1f", v) },
}).Parse(`<h2>Hi {{.User.Username}}, here is your week</h2>
<p>Since {{.Report.Since.Format "2 January 2006"}}</p>
<ul>
<li>Plants grown: {{.Report.Stats.TotalPlants}}</li>
<li>Check-ins: {{.Report.Stats.TotalCheckIns}}</li>
<li>Mindful minutes: {{.Report.Stats.MindfulMinutes}}</li>
<li>Consistency: {{pct .Report.Stats.ConsistencyScore}}</li>
{{- if .Report.Stats.Averages.Count}}
<li>Average mood: {{avg .Report.Stats.Averages.Mood}}/5</li>
{{- end}}
</ul>
{{- range .Report.Insights}}
<p><strong>{{.Title}}</strong> {{.Message}}</p>
{{- end}}
`))

// WeeklyBody renders the plain text and HTML parts of the report email.
func WeeklyBody(u *model.User, r *wellness.WeeklyReport) (string, string, error) {
	var plain strings.Builder
	fmt.Fprintf(&plain, "Hi %s, here is your week since %s.\n\n", u.Username, r.Since.Format("2 January 2006"))
	fmt.Fprintf(&plain, "Plants grown: %d\n", r.Stats.TotalPlants)
	fmt.Fprintf(&plain, "Check-ins: %d\n", r.Stats.TotalCheckIns)
	fmt.Fprintf(&plain, "Mindful minutes: %d\n", r.Stats.MindfulMinutes)
	fmt.Fprintf(&plain, "Consistency: %.0f%%\n", r.Stats.ConsistencyScore)
	for _, in := range r.Insights {
		fmt.Fprintf(&plain, "\n%s %s", in.Title, in.Message)
	}

	var html bytes.Buffer
	if err := weeklyHTML.Execute(&html, map[string]any{"User": u, "Report": r}); err != nil {
		return "", "", fmt.Errorf("render weekly email: %w", err)
	}
	return plain.String(), html.String(), nil
}
