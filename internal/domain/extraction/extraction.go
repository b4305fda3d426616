// Package extraction turns OCR layout blocks into structured document data:
// raw text, form key/value pairs, and reconstructed tables. It also parses
// lab result tables into candidate observations for the record pipeline.
package extraction

import (
	"context"
	"strings"

	"github.com/healthcompanion/api/internal/platform/ocr"
)

// Result holds the structured data extracted from one document.
type Result struct {
	RawText   string              `json:"raw_text"`
	KeyValues map[string]string   `json:"key_value_pairs"`
	Tables    [][][]string        `json:"tables"`
}

// Service runs OCR-backed extraction over uploaded documents.
type Service struct {
	client ocr.Client
}

// NewService creates an extraction Service over the given OCR client.
func NewService(client ocr.Client) *Service {
	return &Service{client: client}
}

// ExtractText returns the plain text of a document, one detected line per
// output line.
func (s *Service) ExtractText(ctx context.Context, image []byte) (string, error) {
	blocks, err := s.client.DetectText(ctx, image)
	if err != nil {
		return "", err
	}
	return JoinLines(blocks), nil
}

// Extract returns the full structured extraction for a document.
func (s *Service) Extract(ctx context.Context, image []byte) (*Result, error) {
	blocks, err := s.client.AnalyzeDocument(ctx, image)
	if err != nil {
		return nil, err
	}
	return Resolve(blocks), nil
}

// JoinLines concatenates the text of all line blocks, newline separated.
func JoinLines(blocks []ocr.Block) string {
	var lines []string
	for _, b := range blocks {
		if b.Type == ocr.BlockLine {
			lines = append(lines, b.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// Resolve builds a Result from analyzed layout blocks. Resolution is
// deterministic: blocks are walked in input order and relationship ids in
// declaration order.
func Resolve(blocks []ocr.Block) *Result {
	byID := make(map[string]*ocr.Block, len(blocks))
	for i := range blocks {
		byID[blocks[i].ID] = &blocks[i]
	}

	res := &Result{
		RawText:   JoinLines(blocks),
		KeyValues: make(map[string]string),
	}

	for i := range blocks {
		b := &blocks[i]
		switch b.Type {
		case ocr.BlockKeyValueSet:
			if !hasEntityType(b, ocr.EntityKey) {
				continue
			}
			key := childWordText(b, byID)
			value := ""
			if vb := valueBlock(b, byID); vb != nil {
				value = childWordText(vb, byID)
			}
			if key != "" && value != "" {
				res.KeyValues[key] = value
			}
		case ocr.BlockTable:
			if table := resolveTable(b, byID); len(table) > 0 {
				res.Tables = append(res.Tables, table)
			}
		}
	}
	return res
}

func hasEntityType(b *ocr.Block, entityType string) bool {
	for _, et := range b.EntityTypes {
		if et == entityType {
			return true
		}
	}
	return false
}

// childWordText joins the text of all word children of a block with single
// spaces, trimming the result.
func childWordText(b *ocr.Block, byID map[string]*ocr.Block) string {
	var sb strings.Builder
	for _, rel := range b.Relationships {
		if rel.Type != ocr.RelationChild {
			continue
		}
		for _, id := range rel.IDs {
			child, ok := byID[id]
			if !ok || child.Type != ocr.BlockWord {
				continue
			}
			sb.WriteString(child.Text)
			sb.WriteString(" ")
		}
	}
	return strings.TrimSpace(sb.String())
}

// valueBlock follows the first value edge of a key block.
func valueBlock(key *ocr.Block, byID map[string]*ocr.Block) *ocr.Block {
	for _, rel := range key.Relationships {
		if rel.Type != ocr.RelationValue {
			continue
		}
		for _, id := range rel.IDs {
			if vb, ok := byID[id]; ok {
				return vb
			}
		}
	}
	return nil
}

// resolveTable reconstructs a table as a dense 2D grid. Cells are addressed
// by their 1-based row and column indexes; positions with no cell resolve to
// the empty string.
func resolveTable(table *ocr.Block, byID map[string]*ocr.Block) [][]string {
	type coord struct{ row, col int }
	cells := make(map[coord]string)
	maxRow, maxCol := 0, 0

	for _, rel := range table.Relationships {
		if rel.Type != ocr.RelationChild {
			continue
		}
		for _, id := range rel.IDs {
			cell, ok := byID[id]
			if !ok || cell.Type != ocr.BlockCell {
				continue
			}
			cells[coord{cell.RowIndex, cell.ColumnIndex}] = childWordText(cell, byID)
			if cell.RowIndex > maxRow {
				maxRow = cell.RowIndex
			}
			if cell.ColumnIndex > maxCol {
				maxCol = cell.ColumnIndex
			}
		}
	}
	if len(cells) == 0 {
		return nil
	}

	grid := make([][]string, 0, maxRow)
	for row := 1; row <= maxRow; row++ {
		rowData := make([]string, 0, maxCol)
		for col := 1; col <= maxCol; col++ {
			rowData = append(rowData, cells[coord{row, col}])
		}
		grid = append(grid, rowData)
	}
	return grid
}
