package report

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// MailConfig carries the optional notify.smtp_* settings. Zero value means
// notifications are disabled.
type MailConfig struct {
	SMTPHost string
	SMTPPort int
	From     string
	To       string
}

func (c MailConfig) enabled() bool {
	return c.SMTPHost != "" && c.To != ""
}

// Notify sends a single best-effort summary email when rpt.Verdict is
// MALICIOUS and cfg is configured. Mail failures are swallowed into the
// returned error for the caller to log; they are never scan errors.
func Notify(cfg MailConfig, rpt ThreatReport) error {
	if rpt.Verdict != "MALICIOUS" || !cfg.enabled() {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", cfg.From)
	m.SetHeader("To", cfg.To)
	m.SetHeader("Subject", fmt.Sprintf("MALICIOUS verdict: %s@%s", rpt.ExtensionID, rpt.Version))
	m.SetBody("text/plain", fmt.Sprintf(
		"extension: %s\nversion: %s\ncomposite risk: %.3f\nconfidence: %.3f\ncritical findings: %d\nhigh findings: %d\n",
		rpt.ExtensionID, rpt.Version, rpt.CompositeRisk, rpt.Confidence, len(rpt.Findings.Critical), len(rpt.Findings.High),
	))

	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, "", "")
	return dialer.DialAndSend(m)
}
