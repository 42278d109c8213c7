// Package digest filters enhanced records by keyword and renders an HTML
// digest for email delivery. It is read-only over the enhanced artifact.
package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/arxivdaily/enhancer/internal/paper"
)

// Filter returns the records whose title, abstract, or tldr/motivation/method
// fields contain any of the keywords, case-insensitively. No keywords means
// no matches.
func Filter(recs []paper.Enhanced, keywords []string) []paper.Enhanced {
	var wanted []string
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			wanted = append(wanted, k)
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	var out []paper.Enhanced
	for _, rec := range recs {
		haystack := strings.ToLower(strings.Join([]string{
			rec.Title,
			rec.Abstract,
			rec.AI.TLDR,
			rec.AI.Motivation,
			rec.AI.Method,
		}, " "))
		for _, k := range wanted {
			if strings.Contains(haystack, k) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

var digestTmpl = template.Must(template.New("digest").Funcs(template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"join": func(ss []string) string { return strings.Join(ss, ", ") },
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<div style="max-width: 800px; margin: 0 auto; padding: 20px;">
  <div style="background-color: #a42c25; color: white; padding: 20px; border-radius: 5px;">
    <h1 style="margin: 0;">Daily arXiv Digest</h1>
    <p style="margin: 10px 0 0 0;">{{.Date}}</p>
  </div>
  <div style="margin: 20px 0;">
    <p><strong>Keywords:</strong> {{.Keywords}}</p>
    <p><strong>Papers found:</strong> {{len .Papers}}</p>
  </div>
{{if not .Papers}}  <p>No papers found matching the keywords today.</p>
{{end}}{{range $i, $p := .Papers}}  <div style="margin-bottom: 30px; padding: 15px; border-left: 4px solid #a42c25; background-color: #f9f9f9;">
    <h3 style="margin-top: 0; color: #a42c25;">{{inc $i}}. {{$p.Title}}</h3>
    <p style="margin: 5px 0; color: #666;"><strong>Authors:</strong> {{join $p.Authors}}</p>
    <p style="margin: 5px 0; color: #666;"><strong>Categories:</strong> {{join $p.Categories}}</p>
    <p style="margin: 5px 0; color: #666;"><strong>arXiv ID:</strong> {{$p.ID}}</p>
    <div style="margin: 10px 0;">
      {{if $p.AbsURL}}<a href="{{$p.AbsURL}}" style="margin-right: 10px; color: #a42c25;">Abstract</a>{{end}}
      {{if $p.PDFURL}}<a href="{{$p.PDFURL}}" style="color: #a42c25;">PDF</a>{{end}}
    </div>
    <h4 style="margin-bottom: 5px;">TLDR</h4><p style="margin: 0; color: #555;">{{$p.AI.TLDR}}</p>
    <h4 style="margin-bottom: 5px;">Motivation</h4><p style="margin: 0; color: #555;">{{$p.AI.Motivation}}</p>
    <h4 style="margin-bottom: 5px;">Method</h4><p style="margin: 0; color: #555;">{{$p.AI.Method}}</p>
    <h4 style="margin-bottom: 5px;">Result</h4><p style="margin: 0; color: #555;">{{$p.AI.Result}}</p>
    <h4 style="margin-bottom: 5px;">Conclusion</h4><p style="margin: 0; color: #555;">{{$p.AI.Conclusion}}</p>
  </div>
{{end}}</div>
</body>
</html>
`))

// RenderHTML produces the digest document for the given records.
func RenderHTML(recs []paper.Enhanced, keywords []string, date string) (string, error) {
	var buf bytes.Buffer
	err := digestTmpl.Execute(&buf, struct {
		Date     string
		Keywords string
		Papers   []paper.Enhanced
	}{
		Date:     date,
		Keywords: strings.Join(keywords, ", "),
		Papers:   recs,
	})
	if err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

// SMTPConfig carries delivery settings for SendEmail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// SendEmail delivers the rendered digest as a multipart HTML mail.
func SendEmail(cfg SMTPConfig, subject, html string) error {
	if cfg.Host == "" || len(cfg.To) == 0 {
		return fmt.Errorf("smtp host and at least one recipient are required")
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(html)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, from, cfg.To, msg.Bytes()); err != nil {
		return fmt.Errorf("send digest mail: %w", err)
	}
	return nil
}
