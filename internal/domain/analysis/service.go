// Package analysis categorizes uploaded medical documents and produces
// patient-friendly explanations of their contents.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/healthcompanion/api/internal/domain/extraction"
	"github.com/healthcompanion/api/internal/platform/llm"
)

// Document categories.
const (
	CategoryPrescription = "prescription"
	CategoryLabReport    = "lab_report"
	CategoryMedicalImage = "medical_image"
)

// categorizePromptChars bounds how much extracted text the classifier sees.
const categorizePromptChars = 1000

// Analysis is the outcome of the full pipeline: category plus explanation.
type Analysis struct {
	Category        string `json:"category"`
	CategoryDisplay string `json:"category_display"`
	Explanation     string `json:"explanation"`
}

// Service runs categorization and explanation over documents.
type Service struct {
	extract *extraction.Service
	model   llm.Invoker
	logger  zerolog.Logger
}

// NewService creates an analysis Service.
func NewService(extract *extraction.Service, model llm.Invoker, logger zerolog.Logger) *Service {
	return &Service{extract: extract, model: model, logger: logger}
}

const categorizeSystemPrompt = "You are a medical document classifier. Respond only with the category name."

func categorizePrompt(extractedText string) string {
	return fmt.Sprintf(`Extracted text from document:
%s

Categorize this medical document into ONE of these types:
1. PRESCRIPTION - Contains medication names, dosages, doctor's signature
2. LAB_REPORT - Contains test results, lab values, pathology findings
3. MEDICAL_IMAGE - X-ray, MRI, CT scan, ultrasound, or other diagnostic imaging

Respond with ONLY: PRESCRIPTION, LAB_REPORT, or MEDICAL_IMAGE`, extractedText)
}

// Categorize classifies a document. Classification reads the extracted text
// when OCR succeeds and falls back to the vision model otherwise. Unknown
// classifier output resolves to lab_report.
func (s *Service) Categorize(ctx context.Context, image []byte, mediaType string) (category, display string, err error) {
	prompt := ""
	text, ocrErr := s.extract.ExtractText(ctx, image)
	if ocrErr != nil {
		s.logger.Warn().Err(ocrErr).Msg("text extraction failed, categorizing from image")
	} else {
		prompt = categorizePrompt(truncate(text, categorizePromptChars))
	}

	var label string
	if prompt != "" {
		label, err = s.model.Complete(ctx, prompt, categorizeSystemPrompt)
	} else {
		label, err = s.model.CompleteWithImage(ctx, categorizePrompt(""), image, mediaType, categorizeSystemPrompt)
	}
	if err != nil {
		return "", "", err
	}

	display = strings.ToUpper(strings.TrimSpace(label))
	switch display {
	case "PRESCRIPTION":
		category = CategoryPrescription
	case "LAB_REPORT":
		category = CategoryLabReport
	case "MEDICAL_IMAGE":
		category = CategoryMedicalImage
	default:
		category = CategoryLabReport
	}
	return category, display, nil
}

// ExplainPrescription explains a prescription using extracted text and form
// fields.
func (s *Service) ExplainPrescription(ctx context.Context, image []byte, mediaType string) (string, error) {
	res, err := s.extract.Extract(ctx, image)
	if err != nil {
		return "", err
	}

	var ctxText strings.Builder
	fmt.Fprintf(&ctxText, "Extracted Text:\n%s\n\n", res.RawText)
	writeKeyValues(&ctxText, "Key Information:", res.KeyValues)

	prompt := ctxText.String() + `
Based on the extracted prescription data above, explain:
1. Medications prescribed (names and purposes)
2. Dosage instructions in simple terms
3. Duration of treatment
4. Important precautions or side effects
5. When to take each medication

Use simple, patient-friendly language.`

	return s.model.Complete(ctx, prompt,
		"You are a compassionate healthcare assistant explaining prescriptions to patients.")
}

// ExplainLabReport explains a lab report using extracted text, form fields
// and reconstructed tables.
func (s *Service) ExplainLabReport(ctx context.Context, image []byte, mediaType string) (string, error) {
	res, err := s.extract.Extract(ctx, image)
	if err != nil {
		return "", err
	}

	var ctxText strings.Builder
	fmt.Fprintf(&ctxText, "Extracted Lab Report Data:\n%s\n\n", res.RawText)
	writeKeyValues(&ctxText, "Patient/Test Information:", res.KeyValues)

	if len(res.Tables) > 0 {
		ctxText.WriteString("Lab Test Results (Tables):\n")
		for i, table := range res.Tables {
			fmt.Fprintf(&ctxText, "Table %d:\n", i+1)
			for _, row := range table {
				ctxText.WriteString(strings.Join(row, " | "))
				ctxText.WriteString("\n")
			}
			ctxText.WriteString("\n")
		}
	}

	prompt := ctxText.String() + `
Based on the extracted lab report data above, explain:
1. What tests were performed
2. Key findings and values
3. Which values are normal vs abnormal
4. What abnormal values might indicate
5. General health implications

Use simple language that patients can understand.`

	return s.model.Complete(ctx, prompt,
		"You are a healthcare assistant explaining lab results to patients in simple terms.")
}

// ExplainMedicalImage explains diagnostic imaging using the vision model.
func (s *Service) ExplainMedicalImage(ctx context.Context, image []byte, mediaType string) (string, error) {
	prompt := `Analyze this medical image and explain:
1. Type of imaging (X-ray, MRI, CT, etc.)
2. Body part or area being examined
3. Visible findings or abnormalities
4. What these findings might mean
5. General observations

Use simple, reassuring language.`

	return s.model.CompleteWithImage(ctx, prompt, image, mediaType,
		"You are a healthcare assistant explaining medical images to patients.")
}

// Analyze runs the full pipeline: categorize, then explain per category.
// When the category-specific explainer fails, the vision model explains the
// raw image instead.
func (s *Service) Analyze(ctx context.Context, image []byte, mediaType string) (*Analysis, error) {
	category, display, err := s.Categorize(ctx, image, mediaType)
	if err != nil {
		return nil, err
	}

	var explanation string
	switch category {
	case CategoryPrescription:
		explanation, err = s.ExplainPrescription(ctx, image, mediaType)
	case CategoryMedicalImage:
		explanation, err = s.ExplainMedicalImage(ctx, image, mediaType)
	default:
		explanation, err = s.ExplainLabReport(ctx, image, mediaType)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("category", category).
			Msg("explanation failed, falling back to image analysis")
		explanation, err = s.model.CompleteWithImage(ctx,
			"Analyze this medical document and explain all visible information in simple, patient-friendly terms.",
			image, mediaType,
			"You are a healthcare assistant explaining medical documents to patients.")
		if err != nil {
			return nil, err
		}
	}

	return &Analysis{
		Category:        category,
		CategoryDisplay: display,
		Explanation:     explanation,
	}, nil
}

func writeKeyValues(sb *strings.Builder, heading string, kv map[string]string) {
	if len(kv) == 0 {
		return
	}
	sb.WriteString(heading + "\n")
	for _, k := range sortedKeys(kv) {
		fmt.Fprintf(sb, "- %s: %s\n", k, kv[k])
	}
	sb.WriteString("\n")
}

// truncate caps s at max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Stable prompt assembly keeps model inputs reproducible.
	sort.Strings(keys)
	return keys
}
