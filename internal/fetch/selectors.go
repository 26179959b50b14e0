package fetch

import (
	"net/url"
	"strings"
)

// Board is a job board platform with its own page layout.
type Board string

// Known boards
const (
	BoardGreenhouse Board = "greenhouse"
	BoardLever      Board = "lever"
	BoardWorkday    Board = "workday"
	BoardGeneric    Board = "generic"
)

type boardLayout struct {
	hosts   []string
	content []string
	noise   []string
}

var layouts = map[Board]boardLayout{
	BoardGreenhouse: {
		hosts:   []string{"greenhouse.io"},
		content: []string{".job__description.body", ".job__description", ".job-description__content", "#content"},
		noise:   []string{".application--wrapper", ".voluntary-self-id", "#usa_self_id_section", ".post-apply"},
	},
	BoardLever: {
		hosts:   []string{"lever.co"},
		content: []string{".posting-page", ".section-wrapper.page-full-width", ".posting-description", ".content"},
		noise:   []string{".apply-section", ".lever-application-form", ".posting-apply"},
	},
	BoardWorkday: {
		hosts:   []string{"workday.com", "myworkdayjobs.com"},
		content: []string{"[data-automation-id='jobDescription']", ".job-description"},
		noise:   []string{"[data-automation-id='applyButton']", ".application-section"},
	},
}

// genericContent covers job pages on unrecognised hosts.
var genericContent = []string{
	".job-description",
	"#job-description",
	".job-content",
	".posting-content",
	".job-details",
	"[data-testid='job-description']",
	"main",
	"article",
	".content",
	"#content",
}

// commonNoise is removed on every board: application forms, EEO text and share widgets.
var commonNoise = []string{
	"form",
	".application-form",
	".apply-button-container",
	".eeo-statement",
	".voluntary-disclosure",
	".legal-disclosure",
	".social-share",
	".share-buttons",
	".cookie-consent",
}

// DetectBoard identifies the job board from a URL's host.
func DetectBoard(rawURL string) Board {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return BoardGeneric
	}
	host := strings.ToLower(parsed.Hostname())

	for board, layout := range layouts {
		for _, h := range layout.hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return board
			}
		}
	}
	return BoardGeneric
}

// ContentSelectors returns the selectors tried, in order, for a board's posting text.
func ContentSelectors(board Board) []string {
	if layout, ok := layouts[board]; ok {
		return append(append([]string{}, layout.content...), genericContent...)
	}
	return genericContent
}

// NoiseSelectors returns the selectors removed before extracting a board's posting text.
func NoiseSelectors(board Board) []string {
	out := append([]string{}, commonNoise...)
	if layout, ok := layouts[board]; ok {
		out = append(out, layout.noise...)
	}
	return out
}
