package extraction

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/healthcompanion/api/internal/platform/ocr"
)

func word(id, text string) ocr.Block {
	return ocr.Block{ID: id, Type: ocr.BlockWord, Text: text}
}

func child(ids ...string) ocr.Relationship {
	return ocr.Relationship{Type: ocr.RelationChild, IDs: ids}
}

func TestJoinLines(t *testing.T) {
	blocks := []ocr.Block{
		{Type: ocr.BlockLine, Text: "Patient: Jane Roe"},
		{Type: ocr.BlockWord, Text: "Patient:"},
		{Type: ocr.BlockLine, Text: "Hemoglobin 13.5 g/dL"},
	}
	got := JoinLines(blocks)
	want := "Patient: Jane Roe\nHemoglobin 13.5 g/dL"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestResolveKeyValuePairs(t *testing.T) {
	blocks := []ocr.Block{
		{
			ID:          "key-1",
			Type:        ocr.BlockKeyValueSet,
			EntityTypes: []string{ocr.EntityKey},
			Relationships: []ocr.Relationship{
				child("w1", "w2"),
				{Type: ocr.RelationValue, IDs: []string{"val-1"}},
			},
		},
		{
			ID:            "val-1",
			Type:          ocr.BlockKeyValueSet,
			Relationships: []ocr.Relationship{child("w3", "w4")},
		},
		word("w1", "Patient"),
		word("w2", "Name"),
		word("w3", "Jane"),
		word("w4", "Roe"),
	}

	res := Resolve(blocks)
	if got := res.KeyValues["Patient Name"]; got != "Jane Roe" {
		t.Errorf("expected Jane Roe, got %q (%v)", got, res.KeyValues)
	}
}

func TestResolveSkipsKeyWithoutValue(t *testing.T) {
	blocks := []ocr.Block{
		{
			ID:            "key-1",
			Type:          ocr.BlockKeyValueSet,
			EntityTypes:   []string{ocr.EntityKey},
			Relationships: []ocr.Relationship{child("w1")},
		},
		word("w1", "Orphan"),
	}
	res := Resolve(blocks)
	if len(res.KeyValues) != 0 {
		t.Errorf("expected no pairs, got %v", res.KeyValues)
	}
}

func tableFixture() []ocr.Block {
	// 2x2 table with the bottom-right cell missing.
	return []ocr.Block{
		{
			ID:            "table-1",
			Type:          ocr.BlockTable,
			Relationships: []ocr.Relationship{child("c11", "c12", "c21")},
		},
		{ID: "c11", Type: ocr.BlockCell, RowIndex: 1, ColumnIndex: 1, Relationships: []ocr.Relationship{child("wa")}},
		{ID: "c12", Type: ocr.BlockCell, RowIndex: 1, ColumnIndex: 2, Relationships: []ocr.Relationship{child("wb")}},
		{ID: "c21", Type: ocr.BlockCell, RowIndex: 2, ColumnIndex: 1, Relationships: []ocr.Relationship{child("wc")}},
		word("wa", "A"),
		word("wb", "B"),
		word("wc", "C"),
	}
}

func TestResolveTableFillsMissingCells(t *testing.T) {
	res := Resolve(tableFixture())
	if len(res.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(res.Tables))
	}
	want := [][]string{{"A", "B"}, {"C", ""}}
	if !reflect.DeepEqual(res.Tables[0], want) {
		t.Errorf("expected %v, got %v", want, res.Tables[0])
	}
}

func TestResolveDeterministic(t *testing.T) {
	blocks := tableFixture()
	first := Resolve(blocks)
	for i := 0; i < 5; i++ {
		again := Resolve(blocks)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("resolution not deterministic: %v vs %v", first, again)
		}
	}
}

type fakeOCR struct {
	blocks []ocr.Block
	err    error
}

func (f *fakeOCR) DetectText(context.Context, []byte) ([]ocr.Block, error) {
	return f.blocks, f.err
}

func (f *fakeOCR) AnalyzeDocument(context.Context, []byte) ([]ocr.Block, error) {
	return f.blocks, f.err
}

func TestServicePropagatesBackendFailure(t *testing.T) {
	svc := NewService(&fakeOCR{err: ocr.ErrServiceUnavailable})

	if _, err := svc.ExtractText(context.Background(), []byte("img")); !errors.Is(err, ocr.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
	if _, err := svc.Extract(context.Background(), []byte("img")); !errors.Is(err, ocr.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestServiceExtract(t *testing.T) {
	svc := NewService(&fakeOCR{blocks: tableFixture()})

	res, err := svc.Extract(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Tables) != 1 {
		t.Errorf("expected 1 table, got %d", len(res.Tables))
	}
}
