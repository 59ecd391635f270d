// Package mailer renders .eml notification templates and hands them to the
// local MTA. A template is a header block ("Tag: value" lines) followed by
// an HTML body; To/From fall back to the account address and the manager
// address when the template leaves them out.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/policy"
	"github.com/hostedmail/doms/internal/record"
)

var multilineTags = map[string]bool{"To": true, "CC": true, "BCC": true}

// ErrTemplateNotFound marks a missing .eml template.
var ErrTemplateNotFound = errors.New("email template not found")

// Sender posts a templated notification email. Data keys the templates
// understand: "user" (*record.UserRecord), "domain", "reset_url_code".
type Sender interface {
	Post(ctx context.Context, templateName string, data map[string]any) error
}

// NoOpSender drops every message; used in tests and run-one mode.
type NoOpSender struct{}

func (NoOpSender) Post(ctx context.Context, templateName string, data map[string]any) error {
	return nil
}

type Config struct {
	EmailsDir string
	SMTPHost  string
	SMTPPort  int
}

type SMTPSender struct {
	cfg Config
	pol *policy.Policy
	log *zap.Logger
}

func NewSMTP(cfg Config, pol *policy.Policy, log *zap.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, pol: pol, log: log.Named("mailer")}
}

func (s *SMTPSender) Post(ctx context.Context, templateName string, data map[string]any) error {
	src := filepath.Join(s.cfg.EmailsDir, templateName+".eml")
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, templateName)
	}

	t, err := template.ParseFiles(src)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", templateName, err)
	}

	if data == nil {
		data = map[string]any{}
	}
	data["policy"] = s.pol.Data()

	var rendered strings.Builder
	if err := t.Execute(&rendered, data); err != nil {
		return fmt.Errorf("render template %s: %w", templateName, err)
	}

	header, body := splitHeaderBlock(rendered.String())

	smtpFrom := s.pol.ManagerAccount() + "@" + s.pol.EmailDomain()
	if _, ok := header["To"]; !ok {
		if rec, ok := data["user"].(*record.UserRecord); ok && rec != nil && rec.User != "" {
			header["To"] = rec.User + "@" + s.pol.EmailDomain()
		}
	}
	if _, ok := header["From"]; !ok {
		header["From"] = smtpFrom
	}
	for _, required := range []string{"From", "To", "Subject"} {
		if header[required] == "" {
			return fmt.Errorf("template %s: header missing %s", templateName, required)
		}
	}

	var rcpt []string
	for tag := range multilineTags {
		if value := header[tag]; value != "" {
			for _, each := range strings.Split(value, ",") {
				rcpt = append(rcpt, strings.TrimSpace(each))
			}
		}
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", header["From"])
	fmt.Fprintf(&msg, "To: %s\r\n", header["To"])
	if cc := header["CC"]; cc != "" {
		fmt.Fprintf(&msg, "CC: %s\r\n", cc)
	}
	fmt.Fprintf(&msg, "Subject: %s\r\n", header["Subject"])
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	s.log.Debug("sending email",
		zap.String("template", templateName),
		zap.String("to", header["To"]),
	)
	return smtp.SendMail(addr, nil, smtpFrom, rcpt, []byte(msg.String()))
}

// splitHeaderBlock peels "Tag: value" lines off the top of the rendered
// template. Repeated To/CC/BCC values fold into one comma-joined header.
func splitHeaderBlock(content string) (map[string]string, string) {
	header := map[string]string{}
	lines := strings.Split(content, "\n")
	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \r")
		colon := strings.Index(line, ":")
		space := strings.Index(line, " ")
		if line == "" || colon <= 0 || space <= 0 || space < colon {
			break
		}
		tag := strings.TrimSpace(line[:colon])
		rest := strings.TrimSpace(line[colon+1:])
		if header[tag] != "" && multilineTags[tag] {
			header[tag] += "," + rest
		} else {
			header[tag] = rest
		}
	}
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	return header, strings.Join(lines[i:], "\n")
}
