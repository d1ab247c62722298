package pipeline

import (
	"strings"
	"testing"
)

func TestMapBon(t *testing.T) {
	blob := []byte(`{
  "texteOCR": "BON DE COMMANDE Afibel - Ballerine noire 7654321 x2 - Sandale AB12345C",
  "pages": [
    {"items": [
      {"Modèle": "Ballerine", "Couleur": "Noir", "CODIFCAT": "7654321", "Taille": 40, "Qté": "2 paires", "PV": "24,5 €"},
      {"quantite": 3, "prix": 12}
    ]},
    {"meta": {"items": [{"ref": "AB12345C", "quantity": 0}]}}
  ]
}`)
	bon, err := MapBon(blob)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(bon.OCRText, "BON DE COMMANDE") {
		t.Fatalf("embedded text not detected: %q", bon.OCRText)
	}
	if len(bon.Items) != 2 {
		t.Fatalf("len=%d %+v", len(bon.Items), bon.Items)
	}
	first := bon.Items[0]
	if first.ModelNameRaw.String() != "Ballerine" || first.ColorisRaw.String() != "Noir" || first.ReferenceOCR.String() != "7654321" ||
		first.SizeOrCodeRaw.String() != "40" || first.QuantityRaw.String() != "2" || first.UnitPriceRaw.String() != "24.50" {
		t.Fatalf("unexpected first item %+v", first)
	}
	second := bon.Items[1]
	if second.ReferenceOCR.String() != "AB12345C" || second.QuantityRaw.String() != "1" || second.UnitPriceRaw.Value != nil {
		t.Fatalf("unexpected second item %+v", second)
	}
	if !strings.Contains(bon.RawResponse, "\n  \"pages\"") {
		t.Fatalf("raw response should be indented: %s", bon.RawResponse)
	}
}

func TestMapBonShortTextIgnored(t *testing.T) {
	bon, err := MapBon([]byte(`{"text": "trop court", "items": [{"reference": "1234567"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if bon.OCRText != "" || len(bon.Items) != 1 {
		t.Fatalf("unexpected bon %+v", bon)
	}
}

func TestMapBonInvalid(t *testing.T) {
	if _, err := MapBon([]byte(`{"items": [`)); err == nil {
		t.Fatal("expected an error")
	}
}
