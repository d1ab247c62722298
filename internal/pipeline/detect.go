package pipeline

import (
	"path/filepath"
	"strings"

	"ocrr/internal/util"
)

type DetectResult struct {
	IsOrderForm bool
	Score       float64
	Reason      string
}

var detectKeywords = []string{"bon de commande", "commande", "reference", "ref", "coloris", "taille", "quantite", "qte", "prix"}

// DetectOrderForm scores an email on how much it looks like a mailed bon.
func DetectOrderForm(subject, text, html string, attachmentNames []string) DetectResult {
	subject = foldText(subject)
	text = foldText(text)
	html = foldText(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	anchors := len(util.DigitAnchors(util.NormalizeKey(text)))
	if anchors >= 2 {
		score += 0.4
	} else if anchors == 1 {
		score += 0.2
	}

	for _, name := range attachmentNames {
		if isBonAttachment(name) {
			score += 0.25
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	isOrder := score >= 0.45
	reason := "rules_negative"
	if isOrder {
		reason = "rules_positive"
	}
	return DetectResult{IsOrderForm: isOrder, Score: score, Reason: reason}
}

func foldText(s string) string {
	return strings.ToLower(util.StripDiacritics(s))
}

func isBonAttachment(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".xlsx", ".xlsm", ".pdf":
		return true
	}
	return false
}
