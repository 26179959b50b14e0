package fetch

import (
	"context"
	"log/slog"
)

// PostingText fetches a job posting and returns its text. When the static
// page yields too little text and opts.UseBrowser is set, the page is
// rendered in a headless browser and extracted again.
func PostingText(ctx context.Context, rawURL string, opts *Options) (string, error) {
	opts = opts.normalize()
	board := DetectBoard(rawURL)

	page, err := URL(ctx, rawURL, opts)
	if err != nil {
		return "", err
	}

	text, err := ExtractText(page.HTML, ContentSelectors(board), NoiseSelectors(board))
	if err != nil {
		return "", &Error{URL: rawURL, Message: "failed to extract text", Cause: err}
	}

	if !opts.UseBrowser || !ShouldUseBrowser(text) {
		return text, nil
	}

	render := opts.Render
	if render == nil {
		render = RenderWithBrowser
	}

	slog.Info("static page text is short, rendering in browser", "url", rawURL, "chars", len(text))
	html, err := render(ctx, rawURL, opts.Timeout)
	if err != nil {
		return "", &Error{URL: rawURL, Message: "browser rendering failed", Cause: err}
	}

	rendered, err := ExtractText(html, ContentSelectors(board), NoiseSelectors(board))
	if err != nil {
		return "", &Error{URL: rawURL, Message: "failed to extract rendered text", Cause: err}
	}
	if len(rendered) < len(text) {
		return text, nil
	}
	return rendered, nil
}
