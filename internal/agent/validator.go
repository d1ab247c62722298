package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"ocrr/internal"
	"ocrr/internal/config"
	"ocrr/internal/exporter"
	"ocrr/internal/util"
)

const mockNotes = "mock mode: no correction applied"

// SnippetSource renders catalog excerpts for prompts.
type SnippetSource interface {
	PromptSnippet(ctx context.Context, limit int) string
}

// Validator is the correction agent of the export loop: it shows the model
// the failing lines, the error and a catalog excerpt, and reads fixed lines
// back. Without a completer it returns the lines unchanged.
type Validator struct {
	completer Completer
	catalog   SnippetSource
	cfg       config.Config
	log       zerolog.Logger
}

func NewValidator(completer Completer, catalog SnippetSource, cfg config.Config, log zerolog.Logger) *Validator {
	return &Validator{completer: completer, catalog: catalog, cfg: cfg, log: log.With().Str("component", "validator").Logger()}
}

func (v *Validator) Correct(ctx context.Context, req exporter.CorrectionRequest) (exporter.Correction, error) {
	if v.completer == nil {
		return exporter.Correction{Items: internal.ExtractedFromResolved(req.Items), Notes: util.StringPtr(mockNotes)}, nil
	}

	prompt, err := v.prompt(ctx, req)
	if err != nil {
		return exporter.Correction{}, err
	}
	raw, err := v.completer.Complete(ctx, prompt)
	if err != nil {
		return exporter.Correction{}, fmt.Errorf("validation agent: %w", err)
	}
	items, notes, err := decodeLines(raw)
	if err != nil {
		return exporter.Correction{}, fmt.Errorf("validation agent: %w", err)
	}
	if len(items) == 0 {
		return exporter.Correction{}, ErrEmptyCorrection
	}
	v.log.Info().Int("attempt", req.Attempt).Int("items", len(items)).Msg("correction received")
	return exporter.Correction{Items: items, Notes: notes}, nil
}

func (v *Validator) prompt(ctx context.Context, req exporter.CorrectionRequest) (string, error) {
	itemsJSON, err := json.MarshalIndent(internal.ExtractedFromResolved(req.Items), "", "  ")
	if err != nil {
		return "", err
	}
	snippet := ""
	if v.catalog != nil {
		snippet = v.catalog.PromptSnippet(ctx, v.cfg.PromptCatalogLimit)
	}

	lengths := make([]string, 0, len(v.cfg.ReferenceLengths))
	for _, l := range v.cfg.ReferenceLengths {
		lengths = append(lengths, fmt.Sprint(l))
	}
	lastError := req.LastError
	if lastError == "" {
		lastError = "inconnue"
	}
	ocrText := req.OCRText
	if strings.TrimSpace(ocrText) == "" {
		ocrText = "non fourni"
	}

	var b strings.Builder
	b.WriteString("Tu es un agent de validation pour des bons de commande.\n")
	b.WriteString("Corrige les lignes pour respecter strictement les contraintes suivantes :\n")
	fmt.Fprintf(&b, "- reference_ocr : %s caracteres alphanumeriques apres retrait des separateurs. Si une taille est collee a la reference, isole-la dans size_or_code_raw.\n", strings.Join(lengths, " ou "))
	fmt.Fprintf(&b, "- coloris_raw : texte d'au moins %d caracteres.\n", v.cfg.ColorMinLength)
	fmt.Fprintf(&b, "- quantity_raw : entier positif <= %d.\n", v.cfg.MaxQuantity)
	fmt.Fprintf(&b, "- unit_price_raw : nombre avec point decimal et 2 decimales (ex: 16.99), >= %g.\n", v.cfg.MinPriceValue)
	b.WriteString("- model_name_raw : ne doit pas etre un coloris. Si seul le coloris est connu, laisse model_name_raw a null.\n\n")
	b.WriteString("Catalogue (reference: modele | coloris | taille | prix), a utiliser pour recuperer les valeurs exactes :\n---\n")
	b.WriteString(snippet)
	b.WriteString("\n---\n\n")
	b.WriteString("Consignes :\n")
	b.WriteString("1. Utilise le texte OCR pour retrouver les valeurs manquantes.\n")
	b.WriteString("2. Remplace chaque champ par la valeur exacte du catalogue pour la reference.\n")
	b.WriteString("3. En cas de doute, laisse null et explique dans \"notes\".\n")
	b.WriteString("4. Reponds en JSON strict : {\"items\": [...], \"notes\": string|null}\n\n")
	fmt.Fprintf(&b, "Tentative actuelle : %d\n", req.Attempt)
	fmt.Fprintf(&b, "Erreur API : %s\n\n", lastError)
	fmt.Fprintf(&b, "Texte OCR :\n---\n%s\n---\n\n", ocrText)
	fmt.Fprintf(&b, "Items actuels :\n%s\n", itemsJSON)
	return b.String(), nil
}
