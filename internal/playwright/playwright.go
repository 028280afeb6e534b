// Package playwright drives headless Chromium to print HTML documents.
package playwright

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PDFOptions controls page layout. Zero values use A4 with 15mm margins.
type PDFOptions struct {
	Format string
	Margin string
}

// PrintPDF renders html in a headless browser and returns it printed as PDF.
func PrintPDF(ctx context.Context, html string, opts PDFOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Format == "" {
		opts.Format = "A4"
	}
	if opts.Margin == "" {
		opts.Margin = "15mm"
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		page.SetDefaultTimeout(float64(time.Until(deadline).Milliseconds()))
	}

	if err := page.SetContent(html, playwright.PageSetContentOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	}); err != nil {
		return nil, fmt.Errorf("could not load document: %w", err)
	}

	pdf, err := page.PDF(playwright.PagePdfOptions{
		Format:          playwright.String(opts.Format),
		PrintBackground: playwright.Bool(true),
		Margin: &playwright.Margin{
			Top:    playwright.String(opts.Margin),
			Right:  playwright.String(opts.Margin),
			Bottom: playwright.String(opts.Margin),
			Left:   playwright.String(opts.Margin),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not print pdf: %w", err)
	}
	return pdf, nil
}

// Install installs the playwright driver and browsers.
func Install() error {
	return playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
}

// IsAvailable checks if the playwright driver and browsers are installed.
func IsAvailable() bool {
	pw, err := playwright.Run()
	if err != nil {
		return false
	}
	pw.Stop()
	return true
}
