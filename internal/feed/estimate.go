package feed

import (
	"unicode/utf8"

	"github.com/zfogg/sparkfeed/internal/models"
)

// Height estimates for a feed card, in the same unit the viewport uses
const (
	cardChrome       = 96.0  // header, author row and action bar
	lineHeight       = 20.0  // one line of body text
	charsPerLine     = 60    // average characters per rendered line
	maxEstimateLines = 24    // long text is clamped behind "show more"
	mediaHeight      = 280.0 // one image or video block
	pollOptionHeight = 44.0
	linkPreview      = 88.0
	eventBanner      = 56.0
	pendingBanner    = 24.0
)

// EstimateSize guesses a record's rendered height from its content so the
// windowing engine can lay out cards before they are measured
func EstimateSize(rec Record, _ int) float64 {
	p := rec.Post
	size := cardChrome

	if p.Title != "" {
		size += lineHeight * 1.5
	}
	if n := utf8.RuneCountInString(p.Content); n > 0 {
		lines := (n + charsPerLine - 1) / charsPerLine
		size += lineHeight * float64(min(lines, maxEstimateLines))
	}

	switch p.Kind {
	case models.KindImage, models.KindVideo:
		if len(p.Media) > 0 {
			size += mediaHeight
		}
	case models.KindPoll:
		if p.Poll != nil {
			size += lineHeight + pollOptionHeight*float64(len(p.Poll.Options))
		}
	case models.KindLink:
		size += linkPreview
	case models.KindEvent:
		size += eventBanner
	}
	if rec.Pending() {
		size += pendingBanner
	}
	return size
}
