package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ocrr/internal"
)

// ExtractBonFromInput reads a bon from a file. For "text", an input that is
// not an existing file is taken as the text itself. An empty inputType is
// inferred from the file extension.
func ExtractBonFromInput(inputType string, input string) (internal.Bon, error) {
	if inputType == "" {
		inputType = InputTypeForName(input)
	}
	if inputType == string(internal.SourceText) {
		if info, err := os.Stat(input); err != nil || info.IsDir() {
			return BonFromText(input), nil
		}
	}

	blob, err := os.ReadFile(input)
	if err != nil {
		return internal.Bon{}, err
	}
	return ExtractBon(inputType, blob)
}

// ExtractBon decodes an uploaded document of the given type.
func ExtractBon(inputType string, blob []byte) (internal.Bon, error) {
	switch internal.BonSource(inputType) {
	case internal.SourceJSON:
		return MapBon(blob)
	case internal.SourceText:
		return BonFromText(string(blob)), nil
	case internal.SourceXLSX:
		items, err := parseOrderSheet(blob)
		if err != nil {
			return internal.Bon{}, err
		}
		return internal.Bon{Source: internal.SourceXLSX, Items: items}, nil
	case internal.SourcePDF:
		text, items, err := parsePDF(blob)
		if err != nil {
			return internal.Bon{}, err
		}
		return internal.Bon{Source: internal.SourcePDF, Items: items, OCRText: text}, nil
	case internal.SourceEmail:
		mail, err := ExtractBonFromEmailRaw(blob)
		if err != nil {
			return internal.Bon{}, err
		}
		return mail.Bon, nil
	default:
		return internal.Bon{}, fmt.Errorf("unsupported input type: %s", inputType)
	}
}

func BonFromText(text string) internal.Bon {
	return internal.Bon{Source: internal.SourceText, Items: parseTextLines(text, nil), OCRText: text}
}

func InputTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return string(internal.SourceJSON)
	case ".xlsx", ".xlsm":
		return string(internal.SourceXLSX)
	case ".pdf":
		return string(internal.SourcePDF)
	case ".eml":
		return string(internal.SourceEmail)
	default:
		return string(internal.SourceText)
	}
}
