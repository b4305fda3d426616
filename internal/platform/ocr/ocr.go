// Package ocr provides document text detection and layout analysis for
// uploaded medical documents. It exposes a provider-neutral block model so
// the extraction pipeline can be exercised without a live OCR backend; the
// production implementation is Amazon Textract.
package ocr

import (
	"context"
	"errors"
)

// ErrServiceUnavailable indicates the OCR backend could not process the
// request. Callers treat this as non-fatal and may fall back to other means
// of understanding the document.
var ErrServiceUnavailable = errors.New("ocr service unavailable")

// Block types in the analyzed document layout.
const (
	BlockLine        = "LINE"
	BlockWord        = "WORD"
	BlockKeyValueSet = "KEY_VALUE_SET"
	BlockTable       = "TABLE"
	BlockCell        = "CELL"
)

// Relationship types linking blocks.
const (
	RelationChild = "CHILD"
	RelationValue = "VALUE"
)

// EntityKey marks the key side of a key/value pair.
const EntityKey = "KEY"

// Relationship links a block to related block ids.
type Relationship struct {
	Type string
	IDs  []string
}

// Block is one element of the detected document layout.
type Block struct {
	ID            string
	Type          string
	Text          string
	EntityTypes   []string
	RowIndex      int
	ColumnIndex   int
	Relationships []Relationship
}

// Client defines the contract for OCR backends.
type Client interface {
	// DetectText returns the line and word blocks detected in the image.
	DetectText(ctx context.Context, image []byte) ([]Block, error)
	// AnalyzeDocument returns the full layout including form key/value sets
	// and table structure.
	AnalyzeDocument(ctx context.Context, image []byte) ([]Block, error)
}
