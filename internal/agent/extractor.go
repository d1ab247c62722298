package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"ocrr/internal"
)

const extractionPrompt = `Tu es un expert en extraction de donnees a partir de bons de commande scannes.
Lis le texte OCR fourni et extrais les lignes de commande.

Regles :
- Ne garde que les lignes de produits commandes, ignore la publicite et les mentions hors commande.
- Pour chaque ligne, rends un objet avec : page (int|null), model_name_raw, coloris_raw,
  reference_ocr (telle qu'ecrite), size_or_code_raw (ex: 50/52, 38, code10), quantity_raw (en chiffres),
  unit_price_raw (point decimal, ex: 16.99).
- N'invente rien : un champ manquant ou illisible vaut null.
- Corrige les erreurs OCR evidentes ("5Q/52" -> "50/52", "313.968l" -> "313.9681").

Reponds uniquement avec ce JSON : {"items": [ ... ]}

Texte OCR a analyser :
---
%s
---`

// Extractor structures recognized text into order lines with a language model.
type Extractor struct {
	completer Completer
	log       zerolog.Logger
}

func NewExtractor(completer Completer, log zerolog.Logger) *Extractor {
	return &Extractor{completer: completer, log: log.With().Str("component", "extractor").Logger()}
}

// ExtractLines returns the lines and the raw model answer.
func (e *Extractor) ExtractLines(ctx context.Context, ocrText string) ([]internal.ExtractedItem, string, error) {
	if strings.TrimSpace(ocrText) == "" {
		return nil, "", errors.New("no text to extract lines from")
	}
	raw, err := e.completer.Complete(ctx, fmt.Sprintf(extractionPrompt, ocrText))
	if err != nil {
		return nil, "", fmt.Errorf("line extraction: %w", err)
	}
	items, _, err := decodeLines(raw)
	if err != nil {
		return nil, raw, fmt.Errorf("line extraction: %w", err)
	}
	e.log.Debug().Int("items", len(items)).Msg("lines extracted")
	return items, raw, nil
}
