package mailer

import (
	"embed"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"hackerdigest/pkg/digest"
)

//go:embed tmpl/*.tmpl
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "tmpl/*.html.tmpl"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "tmpl/*.txt.tmpl"))
)

// Template names, one html/text pair per email kind.
const (
	verificationHTML = "verification.html.tmpl"
	verificationText = "verification.txt.tmpl"
	preferenceHTML   = "preference_update.html.tmpl"
	preferenceText   = "preference_update.txt.tmpl"
	digestHTML       = "digest.html.tmpl"
	digestText       = "digest.txt.tmpl"
)

type verificationData struct {
	VerifyURL    string
	StrategyDesc string
}

type preferenceData struct {
	OldDesc string
	NewDesc string
}

type digestData struct {
	Date         string
	StrategyDesc string
	Posts        []digest.Item
}

// renderPair renders the html and text variants of one email.
func renderPair(htmlName, textName string, data any) (html, text string, err error) {
	var htmlBuf strings.Builder
	if err := htmlTemplates.ExecuteTemplate(&htmlBuf, htmlName, data); err != nil {
		return "", "", err
	}
	var textBuf strings.Builder
	if err := textTemplates.ExecuteTemplate(&textBuf, textName, data); err != nil {
		return "", "", err
	}
	return htmlBuf.String(), textBuf.String(), nil
}
