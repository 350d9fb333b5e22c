package export

import (
	"encoding/csv"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/formbase/formbase/internal/models"
	"gorm.io/datatypes"
)

func submission(raw string, at time.Time) models.FormData {
	return models.FormData{Data: datatypes.JSON(raw), CreatedAt: at}
}

func TestCreateCSVContentQuotingAndMissingCells(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	subs := []models.FormData{
		submission(`{"name":"Ada, Countess","message":"line1\nline2 \"quoted\"","tags":["a","b"],"age":36}`, at),
		submission(`{"name":null,"extra":"ignored"}`, at),
	}

	out, err := CreateCSVContent([]string{"name", "message", "tags", "age"}, subs)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv output: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	if !reflect.DeepEqual(records[0], []string{"name", "message", "tags", "age", "createdAt"}) {
		t.Fatalf("unexpected header %v", records[0])
	}
	want := []string{"Ada, Countess", "line1\nline2 \"quoted\"", `["a","b"]`, "36", "2026-03-01T12:00:00Z"}
	if !reflect.DeepEqual(records[1], want) {
		t.Fatalf("expected row %q, got %q", want, records[1])
	}
	if !reflect.DeepEqual(records[2], []string{"", "", "", "", "2026-03-01T12:00:00Z"}) {
		t.Fatalf("expected empty cells for missing and null fields, got %q", records[2])
	}
	if !strings.Contains(out, `"Ada, Countess"`) {
		t.Fatalf("expected comma-containing cell to be quoted, got %s", out)
	}
}

func TestCreateCSVContentNoSubmissions(t *testing.T) {
	out, err := CreateCSVContent(nil, nil)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if out != "createdAt\n" {
		t.Fatalf("expected header only, got %q", out)
	}
}

func TestCreateJSONContentRoundTrip(t *testing.T) {
	raw := []string{
		`{"name":"Zoë","nested":{"list":[1,2,{"x":null}]},"html":"<b>&</b>"}`,
		`{"empty":null}`,
	}
	subs := []models.FormData{submission(raw[0], time.Now()), submission(raw[1], time.Now())}

	out, err := CreateJSONContent(subs)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(out, "\n  {") {
		t.Fatalf("expected 2-space indentation, got %s", out)
	}
	if !strings.Contains(out, "Zoë") || !strings.Contains(out, "<b>&</b>") {
		t.Fatalf("expected unicode and html kept unescaped, got %s", out)
	}

	var decoded []map[string]any
	if errUnmarshal := json.Unmarshal([]byte(out), &decoded); errUnmarshal != nil {
		t.Fatalf("decode output: %v", errUnmarshal)
	}
	for i, item := range decoded {
		var original map[string]any
		_ = json.Unmarshal([]byte(raw[i]), &original)
		if !reflect.DeepEqual(item, original) {
			t.Fatalf("item %d: expected %v, got %v", i, original, item)
		}
	}
}

func TestCreateJSONContentEmpty(t *testing.T) {
	out, err := CreateJSONContent(nil)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if out != "[]" {
		t.Fatalf("expected empty array, got %q", out)
	}
}

func TestFileName(t *testing.T) {
	name := FileName("Contact / Sales!", FormatCSV)
	if !strings.HasPrefix(name, "Contact--Sales-") || !strings.HasSuffix(name, ".csv") {
		t.Fatalf("unexpected file name %q", name)
	}
}
