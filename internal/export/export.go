// Package export renders nutrition plans as standalone HTML and PDF documents.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"github.com/kamilpajak/nourish/internal/playwright"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// SafetyFooter closes every exported plan.
const SafetyFooter = "This plan supports clinical decision-making and does not replace medical advice. " +
	"Review it with the child's clinician before making changes."

// ErrBrowserUnavailable is returned by PDF when headless Chromium is not installed.
var ErrBrowserUnavailable = errors.New("playwright browsers not installed; run: nourish export --install")

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

var page = template.Must(template.New("plan").Parse(`<!DOCTYPE html>
<html lang="en-GB">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: "Helvetica Neue", Arial, sans-serif; font-size: 11pt; line-height: 1.5; color: #222; max-width: 48em; margin: 2em auto; }
h1, h2, h3 { color: #1f4e5f; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.3em 0.6em; }
footer { margin-top: 3em; padding-top: 1em; border-top: 1px solid #ccc; font-size: 9pt; color: #555; }
</style>
</head>
<body>
<header><h1>{{.Title}}</h1></header>
<main>
{{.Body}}
</main>
<footer>{{.Footer}}</footer>
</body>
</html>
`))

// HTML renders markdown as a complete HTML page. Raw HTML in the markdown is
// not passed through.
func HTML(title, markdown string) (string, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title  string
		Body   template.HTML
		Footer string
	}{
		Title:  title,
		Body:   template.HTML(body.String()),
		Footer: SafetyFooter,
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

// PDF renders markdown to HTML and prints it with headless Chromium.
func PDF(ctx context.Context, title, markdown string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	html, err := HTML(title, markdown)
	if err != nil {
		return nil, err
	}
	if !playwright.IsAvailable() {
		return nil, ErrBrowserUnavailable
	}
	return playwright.PrintPDF(ctx, html, playwright.PDFOptions{})
}

// InstallBrowser installs the Chromium build used by PDF.
func InstallBrowser() error {
	return playwright.Install()
}
