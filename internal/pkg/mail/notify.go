package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// MapImageURL builds a Google static map centered on the given coordinates,
// with a red marker on the visitor's location. Empty when no API key is set.
func MapImageURL(lat, lon float64, apiKey string) string {
	if apiKey == "" {
		return ""
	}
	return fmt.Sprintf(
		"https://maps.googleapis.com/maps/api/staticmap?center=%[1]v,%[2]v&zoom=11&size=300x400&maptype=roadmap&markers=color:red%%7C%[1]v,%[2]v&key=%[3]s",
		lat, lon, apiKey,
	)
}

// FlagImageURL returns a 24x18 flag image for an ISO country code, or empty
// when the code is unknown.
func FlagImageURL(countryCode string) string {
	code := strings.ToLower(strings.TrimSpace(countryCode))
	if code == "" {
		return ""
	}
	return fmt.Sprintf("https://flagcdn.com/24x18/%s.png", code)
}

// VisitorNotifyData is the data for visitor notification emails.
type VisitorNotifyData struct {
	Nickname   string
	VisitCount int64
	Returning  bool

	IP         string
	City       string
	RegionName string
	Country    string
	Zip        string
	ISP        string
	Org        string

	Timestamp string // already formatted in the configured timezone
	Origin    string

	Browser string
	OS      string
	Device  string

	Mobile  bool
	Proxy   bool
	Hosting bool

	FlagURL string
	MapURL  string
}

const visitorNotifyTpl = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
</head>
<body style="background-color:#fff;margin:0 auto;font-family:ui-sans-serif,system-ui,-apple-system,BlinkMacSystemFont,Segoe UI,Roboto,Helvetica Neue,Arial,Noto Sans,sans-serif;padding:.5rem">
  <table align="center" width="100%" role="presentation" cellspacing="0" cellpadding="0" border="0" style="max-width:100%;border-width:1px;border-style:solid;border-radius:.25rem;box-shadow:0 4px 6px -1px rgb(0 0 0 / .1),0 2px 4px -2px rgb(0 0 0 / .1);margin:40px auto;padding:20px;width:550px;border-color:rgb(14,165,233);position:relative;overflow:hidden">
    <tbody>
      <tr><td>
        <h1 style="color:#000;font-size:18px;font-weight:400;text-align:center;margin:30px 0">
          {{if .Returning}}Returning visitor{{else}}New visitor{{end}} <strong>{{.Nickname}}</strong>
          {{if .FlagURL}}<img src="{{.FlagURL}}" alt="" style="vertical-align:middle;border:none" />{{end}}
        </h1>
        {{if .Returning}}
        <p style="font-size:14px;line-height:24px;margin:16px 0;color:#000;text-align:center">Visit #{{.VisitCount}}</p>
        {{end}}
        <p style="font-size:14px;line-height:24px;margin:16px 0;color:#000">Location:</p>
        <table align="center" width="100%" role="presentation" border="0" cellpadding="0" cellspacing="0" style="background-color:rgb(243,244,246);border-radius:.75rem;padding:0 1rem">
          <tbody><tr><td><p style="font-size:12px;line-height:24px;margin:16px 0;color:rgb(51,51,51)">{{.City}}, {{.RegionName}}, {{.Country}}{{if .Zip}} {{.Zip}}{{end}}<br />IP: {{.IP}}<br />ISP: {{.ISP}}{{if .Org}}<br />Org: {{.Org}}{{end}}</p></td></tr></tbody>
        </table>
        <p style="font-size:14px;line-height:24px;margin:16px 0;color:#000">Visit details:</p>
        <table align="center" width="100%" role="presentation" border="0" cellpadding="0" cellspacing="0" style="background-color:rgb(243,244,246);border-radius:.75rem;padding:0 1rem">
          <tbody><tr><td><p style="font-size:12px;line-height:24px;margin:16px 0;color:rgb(51,51,51)">Time: {{.Timestamp}}<br />Page: {{.Origin}}<br />Browser: {{.Browser}}<br />OS: {{.OS}}<br />Device: {{.Device}}</p></td></tr></tbody>
        </table>
        {{if or .Mobile .Proxy .Hosting}}
        <table align="center" width="100%" role="presentation" border="0" cellpadding="0" cellspacing="0" style="background-color:rgb(254,243,199);border-radius:.75rem;padding:0 1rem">
          <tbody><tr><td><p style="font-size:12px;line-height:24px;margin:16px 0;color:rgb(51,51,51)">{{if .Mobile}}Mobile network. {{end}}{{if .Proxy}}Proxy or VPN detected. {{end}}{{if .Hosting}}Hosting provider address. {{end}}</p></td></tr></tbody>
        </table>
        {{end}}
        {{if .MapURL}}
        <table align="center" width="100%" role="presentation" border="0" cellpadding="0" cellspacing="0" style="text-align:center;margin:32px 0">
          <tbody><tr><td>
            <img src="{{.MapURL}}" alt="visitor location" style="display:block;outline:none;border:none;margin:0 auto;border-radius:.5rem" />
          </td></tr></tbody>
        </table>
        {{end}}
        <hr style="width:100%;border:none;border-top:1px solid #eaeaea;margin:26px 0" />
        <p style="font-size:10px;line-height:24px;margin:16px 0;text-align:center;color:rgb(156,163,175)">Automated notification, no reply needed.</p>
      </td></tr>
    </tbody>
  </table>
</body>
</html>`

func renderTemplate(tpl string, data interface{}) (string, error) {
	t, err := template.New("").Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderVisitorNotify renders the visitor notification body. Split out from
// SendVisitorNotify so the HTML can be inspected without a mail provider.
func RenderVisitorNotify(data VisitorNotifyData) (string, error) {
	return renderTemplate(visitorNotifyTpl, data)
}

// SendVisitorNotify sends a visitor notification to the configured recipient.
func (s *Sender) SendVisitorNotify(data VisitorNotifyData) error {
	to := strings.TrimSpace(s.cfg.To)
	if to == "" {
		return fmt.Errorf("mail: no recipient configured")
	}
	if strings.TrimSpace(data.Nickname) == "" {
		data.Nickname = "unknown"
	}
	html, err := RenderVisitorNotify(data)
	if err != nil {
		return err
	}
	return s.Send(Message{
		To:      []string{to},
		Subject: VisitorNotifySubject(data.City, data.Country),
		HTML:    html,
	})
}

// VisitorNotifySubject is the notification subject line.
func VisitorNotifySubject(city, country string) string {
	return fmt.Sprintf("New Website Visitor from %s, %s!", city, country)
}
