package services

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const emailTimeLayout = "Mon 2 Jan 2006, 15:04"

type EmailService struct {
	host        string
	port        string
	user        string
	pass        string
	from        string
	frontendURL string
	loc         *time.Location
	devMode     bool
	logger      *zap.Logger
}

// NewEmailService falls back to logging messages when no SMTP host or user is
// configured. Times in messages are rendered in loc.
func NewEmailService(host, port, user, pass, from, frontendURL string, loc *time.Location, logger *zap.Logger) *EmailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	logger = logger.Named("email")

	devMode := host == "" || user == ""
	if devMode {
		logger.Warn("email service running in dev mode, messages are logged instead of sent")
	}
	return &EmailService{
		host:        host,
		port:        port,
		user:        user,
		pass:        pass,
		from:        from,
		frontendURL: frontendURL,
		loc:         loc,
		devMode:     devMode,
		logger:      logger,
	}
}

func (s *EmailService) SendSessionBooked(to, name, subDevice string, start time.Time, minutes int) error {
	subject := "Your session is booked"
	body := s.layout("Session booked", fmt.Sprintf(
		`Hi %s, your %d minute session on <strong>%s</strong> is booked for <strong>%s</strong>.`,
		name, minutes, subDevice, start.In(s.loc).Format(emailTimeLayout),
	))
	return s.sendHTML(to, subject, body)
}

func (s *EmailService) SendSessionUpdated(to, name, subDevice string, start time.Time, minutes int) error {
	subject := "Your session has changed"
	body := s.layout("Session updated", fmt.Sprintf(
		`Hi %s, your session has moved. It is now %d minutes on <strong>%s</strong> at <strong>%s</strong>.`,
		name, minutes, subDevice, start.In(s.loc).Format(emailTimeLayout),
	))
	return s.sendHTML(to, subject, body)
}

func (s *EmailService) SendSessionCancelled(to, name, subDevice string, start time.Time) error {
	subject := "Your session was cancelled"
	body := s.layout("Session cancelled", fmt.Sprintf(
		`Hi %s, your session on <strong>%s</strong> at <strong>%s</strong> has been cancelled. Contact the studio to rebook.`,
		name, subDevice, start.In(s.loc).Format(emailTimeLayout),
	))
	return s.sendHTML(to, subject, body)
}

func (s *EmailService) SendPackageExpiring(to, name string, endDate time.Time, remaining int) error {
	subject := "Your session package is about to expire"
	body := s.layout("Package expiring", fmt.Sprintf(
		`Hi %s, your package ends on <strong>%s</strong> with <strong>%d</strong> session(s) left. Book them before it expires.`,
		name, endDate.In(s.loc).Format("Mon 2 Jan 2006"), remaining,
	))
	return s.sendHTML(to, subject, body)
}

func (s *EmailService) layout(title, paragraph string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 480px; margin: 40px auto; background: white; border-radius: 12px; box-shadow: 0 4px 24px rgba(0,0,0,0.08); overflow: hidden;">
    <div style="background: #0f766e; padding: 24px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 22px; font-weight: 700;">%s</h1>
    </div>
    <div style="padding: 32px;">
      <p style="color: #334155; font-size: 14px; line-height: 1.6; margin: 0 0 24px;">%s</p>
      <a href="%s" style="color: #0f766e; font-size: 13px;">Open the studio schedule</a>
    </div>
  </div>
</body>
</html>`, title, paragraph, s.frontendURL)
}

func (s *EmailService) sendHTML(to, subject, htmlBody string) error {
	if s.devMode {
		s.logger.Info("dev email", zap.String("to", to), zap.String("subject", subject))
		s.logger.Debug("dev email body", zap.String("body", htmlBody))
		return nil
	}

	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}

	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(message))
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	s.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
