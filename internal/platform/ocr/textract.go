package ocr

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/textract"
	txtypes "github.com/aws/aws-sdk-go-v2/service/textract/types"
)

// TextractAPI is the subset of the Textract client the implementation uses.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
	AnalyzeDocument(ctx context.Context, params *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
}

// TextractClient is the Amazon Textract implementation of Client.
type TextractClient struct {
	client TextractAPI
}

// NewTextractClient creates a TextractClient over the given API client.
func NewTextractClient(client TextractAPI) *TextractClient {
	return &TextractClient{client: client}
}

func (c *TextractClient) DetectText(ctx context.Context, image []byte) ([]Block, error) {
	out, err := c.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &txtypes.Document{Bytes: image},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: detect document text: %v", ErrServiceUnavailable, err)
	}
	return convertBlocks(out.Blocks), nil
}

func (c *TextractClient) AnalyzeDocument(ctx context.Context, image []byte) ([]Block, error) {
	out, err := c.client.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
		Document:     &txtypes.Document{Bytes: image},
		FeatureTypes: []txtypes.FeatureType{txtypes.FeatureTypeForms, txtypes.FeatureTypeTables},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: analyze document: %v", ErrServiceUnavailable, err)
	}
	return convertBlocks(out.Blocks), nil
}

func convertBlocks(src []txtypes.Block) []Block {
	out := make([]Block, 0, len(src))
	for _, b := range src {
		blk := Block{Type: string(b.BlockType)}
		if b.Id != nil {
			blk.ID = *b.Id
		}
		if b.Text != nil {
			blk.Text = *b.Text
		}
		if b.RowIndex != nil {
			blk.RowIndex = int(*b.RowIndex)
		}
		if b.ColumnIndex != nil {
			blk.ColumnIndex = int(*b.ColumnIndex)
		}
		for _, et := range b.EntityTypes {
			blk.EntityTypes = append(blk.EntityTypes, string(et))
		}
		for _, rel := range b.Relationships {
			blk.Relationships = append(blk.Relationships, Relationship{
				Type: string(rel.Type),
				IDs:  rel.Ids,
			})
		}
		out = append(out, blk)
	}
	return out
}
