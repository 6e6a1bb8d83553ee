package export

import (
	"encoding/json"
	"testing"

	"github.com/matsen/labpubs/internal/model"
)

func TestToCSLJSON(t *testing.T) {
	data, err := ToCSLJSON([]model.Work{sampleWork()})
	if err != nil {
		t.Fatal(err)
	}

	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
	item := items[0]

	if item["id"] != "doe2021adaptive" {
		t.Errorf("id = %v", item["id"])
	}
	if item["type"] != "article-journal" {
		t.Errorf("type = %v", item["type"])
	}
	if item["DOI"] != "10.1093/sysbio/syab001" {
		t.Errorf("DOI = %v", item["DOI"])
	}
	if item["container-title"] != "Systematic Biology" {
		t.Errorf("container-title = %v", item["container-title"])
	}

	authors, ok := item["author"].([]any)
	if !ok || len(authors) != 2 {
		t.Fatalf("author = %v", item["author"])
	}
	first := authors[0].(map[string]any)
	if first["family"] != "Doe" || first["given"] != "Jane" {
		t.Errorf("first author = %v", first)
	}

	issued := item["issued"].(map[string]any)
	parts := issued["date-parts"].([]any)[0].([]any)
	if len(parts) != 3 || parts[0].(float64) != 2021 {
		t.Errorf("issued = %v", issued)
	}
}

func TestToCSLJSONYearOnly(t *testing.T) {
	w := model.Work{Title: "Year Only", Year: 2018, Type: model.TypePreprint}
	data, err := ToCSLJSON([]model.Work{w})
	if err != nil {
		t.Fatal(err)
	}
	var items []cslItem
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatal(err)
	}
	if items[0].Type != "article" {
		t.Errorf("type = %q", items[0].Type)
	}
	if items[0].Issued == nil || items[0].Issued.DateParts[0][0] != 2018 {
		t.Errorf("issued = %+v", items[0].Issued)
	}
}

func TestToCSLJSONEmpty(t *testing.T) {
	data, err := ToCSLJSON(nil)
	if err != nil {
		t.Fatal(err)
	}
	var items []cslItem
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("items = %d", len(items))
	}
}
