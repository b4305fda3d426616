package records

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthcompanion/api/internal/platform/fhir"
	"github.com/healthcompanion/api/internal/platform/objectstore"
	"github.com/healthcompanion/api/internal/platform/recordstore"
)

// Service builds, persists and compares patient records.
type Service struct {
	objects objectstore.Store
	index   recordstore.Store
	logger  zerolog.Logger

	now   func() time.Time
	newID func(prefix string) string
}

// NewService creates a records Service.
func NewService(objects objectstore.Store, index recordstore.Store, logger zerolog.Logger) *Service {
	return &Service{
		objects: objects,
		index:   index,
		logger:  logger,
		now:     time.Now,
		newID:   shortID,
	}
}

func shortID(prefix string) string {
	u := uuid.New()
	return prefix + "-" + hex.EncodeToString(u[:])[:12]
}

// Fingerprint returns the stable content hash used for duplicate detection.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ObservationInput is one parsed test result handed to BuildAndStore.
type ObservationInput struct {
	Name           string
	Value          *float64
	Unit           string
	ReferenceRange string
	Interpretation string
}

// BuildInput carries everything needed to build records for one upload.
type BuildInput struct {
	FileName      string
	FileData      []byte
	DocumentType  string
	EffectiveDate string
	Observations  []ObservationInput
	ExtractedText string
}

// BuildResult reports what BuildAndStore persisted.
type BuildResult struct {
	ReportID         string `json:"report_id"`
	ObservationCount int    `json:"observation_count"`
	OriginalKey      string `json:"original_key"`
	FHIRKey          string `json:"fhir_key,omitempty"`
	Fingerprint      string `json:"-"`
	Timestamp        string `json:"timestamp"`
}

// IsDuplicate reports whether the user already stored a document with this
// fingerprint. Lookup failures resolve to false so an unreachable index
// never blocks uploads.
func (s *Service) IsDuplicate(ctx context.Context, userID, fingerprint string) bool {
	existing, err := s.index.FindByFingerprint(ctx, userID, fingerprint)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).
			Msg("fingerprint lookup failed, treating document as new")
		return false
	}
	return len(existing) > 0
}

// BuildAndStore runs the record pipeline for one uploaded document:
// duplicate check, original file storage, per-test Observations, the
// DiagnosticReport, the index item, and the user's document counter.
// The original file is stored before any derived resource so a failure
// partway never loses the upload itself.
func (s *Service) BuildAndStore(ctx context.Context, userID string, in BuildInput) (*BuildResult, error) {
	if in.FileName == "" {
		return nil, &ValidationError{Field: "file_name", Message: "is required"}
	}
	if len(in.FileData) == 0 {
		return nil, &ValidationError{Field: "file", Message: "is empty"}
	}

	patientID := s.ensurePatient(ctx, userID)

	fingerprint := Fingerprint(in.FileData)
	if s.IsDuplicate(ctx, userID, fingerprint) {
		return nil, ErrDuplicateDocument
	}

	reportID := s.newID("report")
	timestamp := s.now().UTC().Format(time.RFC3339)
	effective := in.EffectiveDate
	if effective == "" {
		effective = timestamp
	}

	originalKey := OriginalKey(patientID, timestamp, in.FileName)
	if err := s.objects.Put(ctx, originalKey, in.FileData, ""); err != nil {
		return nil, &StorageError{Op: "put original", Key: originalKey, Err: err}
	}

	if len(in.Observations) == 0 {
		// Nothing to structure. Keep the original and record it as a plain
		// medical document.
		docType := in.DocumentType
		if docType == "" {
			docType = DocTypeMedicalDocument
		}
		doc := &recordstore.DocumentRecord{
			UserID:          userID,
			DocumentID:      reportID,
			PatientID:       patientID,
			Fingerprint:     fingerprint,
			DocumentType:    docType,
			FileName:        in.FileName,
			OriginalKey:     originalKey,
			UploadTimestamp: timestamp,
			ExtractedText:   excerpt(in.ExtractedText, 500),
		}
		if err := s.index.PutDocument(ctx, doc); err != nil {
			return nil, &StorageError{Op: "index document", Key: reportID, Err: err}
		}
		return &BuildResult{
			ReportID:    reportID,
			OriginalKey: originalKey,
			Fingerprint: fingerprint,
			Timestamp:   timestamp,
		}, nil
	}

	report := &DiagnosticReport{
		ResourceType: "DiagnosticReport",
		ID:           reportID,
		Status:       "final",
		Category: []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{
				System:  reportCategorySystem,
				Code:    "LAB",
				Display: "Laboratory",
			}},
		}},
		Code:              fhir.CodeableConcept{Text: "Laboratory Report"},
		Subject:           fhir.Reference{Reference: fhir.FormatReference("Patient", patientID)},
		EffectiveDateTime: effective,
		Issued:            timestamp,
		Result:            []fhir.Reference{},
		Meta:              &fhir.Meta{LastUpdated: timestamp},
	}

	count := 0
	for _, obsIn := range in.Observations {
		obsID := s.newID("obs")
		obs := buildObservation(obsID, patientID, effective, timestamp, obsIn)

		obsKey := ObservationKey(patientID, obsID)
		if err := s.putJSON(ctx, obsKey, obs); err != nil {
			return nil, &StorageError{Op: "put observation", Key: obsKey, Err: err}
		}
		report.Result = append(report.Result, fhir.Reference{
			Reference: fhir.FormatReference("Observation", obsID),
		})
		count++
	}

	reportKey := ReportKey(patientID, reportID)
	if err := s.putJSON(ctx, reportKey, report); err != nil {
		return nil, &StorageError{Op: "put report", Key: reportKey, Err: err}
	}

	docType := in.DocumentType
	if docType == "" {
		docType = DocTypeDiagnosticReport
	}
	doc := &recordstore.DocumentRecord{
		UserID:           userID,
		DocumentID:       reportID,
		PatientID:        patientID,
		Fingerprint:      fingerprint,
		DocumentType:     docType,
		FileName:         in.FileName,
		FHIRKey:          reportKey,
		OriginalKey:      originalKey,
		UploadTimestamp:  timestamp,
		ObservationCount: count,
		TestDate:         effective,
		ExtractedText:    excerpt(in.ExtractedText, 500),
	}
	if err := s.index.PutDocument(ctx, doc); err != nil {
		return nil, &StorageError{Op: "index document", Key: reportID, Err: err}
	}

	if err := s.index.IncrementDocumentCount(ctx, userID); err != nil {
		// The records are all persisted at this point; a stale counter is
		// recoverable, losing the upload is not.
		s.logger.Warn().Err(err).Str("user_id", userID).
			Msg("failed to increment document count")
	}

	return &BuildResult{
		ReportID:         reportID,
		ObservationCount: count,
		OriginalKey:      originalKey,
		FHIRKey:          reportKey,
		Fingerprint:      fingerprint,
		Timestamp:        timestamp,
	}, nil
}

func buildObservation(obsID, patientID, effective, issued string, in ObservationInput) *Observation {
	interpretation := in.Interpretation
	if interpretation == "" {
		interpretation = "normal"
	}
	obs := &Observation{
		ResourceType: "Observation",
		ID:           obsID,
		Status:       "final",
		Category: []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{
				System:  observationCategorySystem,
				Code:    "laboratory",
				Display: "Laboratory",
			}},
		}},
		Code:              fhir.CodeableConcept{Text: in.Name},
		Subject:           fhir.Reference{Reference: fhir.FormatReference("Patient", patientID)},
		EffectiveDateTime: effective,
		Issued:            issued,
		ValueQuantity: &fhir.Quantity{
			Value:  in.Value,
			Unit:   in.Unit,
			System: ucumSystem,
		},
		Interpretation: []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{Code: interpretation}},
		}},
	}
	if in.ReferenceRange != "" {
		obs.ReferenceRange = []fhir.ReferenceRange{{Text: in.ReferenceRange}}
	}
	return obs
}

// ensurePatient resolves the user's patient id, creating a minimal index
// item when the user has none yet. Only a clean not-found result triggers
// creation; a lookup failure must never overwrite an existing account, so
// it falls back to the derived patient id without writing.
func (s *Service) ensurePatient(ctx context.Context, userID string) string {
	user, err := s.index.GetUser(ctx, userID)
	if err == nil {
		return user.PatientID
	}

	patientID := "patient-" + userID
	if !errors.Is(err, recordstore.ErrUserNotFound) {
		s.logger.Warn().Err(err).Str("user_id", userID).
			Msg("user lookup failed, proceeding without touching the index item")
		return patientID
	}
	if err := s.index.PutUser(ctx, &recordstore.UserRecord{
		UserID:     userID,
		PatientID:  patientID,
		Username:   "user",
		PatientKey: PatientKey(patientID),
		CreatedAt:  s.now().UTC().Format(time.RFC3339),
	}); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).
			Msg("failed to create minimal patient index item")
	}
	return patientID
}

func (s *Service) putJSON(ctx context.Context, key string, v interface{}) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.objects.Put(ctx, key, body, objectstore.ContentTypeFHIRJSON)
}

// excerpt truncates s to at most max bytes without splitting a rune.
func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Documents lists the user's document index items, most recent first.
func (s *Service) Documents(ctx context.Context, userID string, limit int) ([]*recordstore.DocumentRecord, error) {
	return s.index.ListDocuments(ctx, userID, limit)
}

// LatestReports loads up to limit stored diagnostic reports with their
// observations, most recent upload first. Index items without a FHIR record
// (plain document uploads) are skipped, as are observations that fail to
// load.
func (s *Service) LatestReports(ctx context.Context, userID string, limit int) ([]*ReportWithObservations, error) {
	docs, err := s.index.ListDocuments(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var out []*ReportWithObservations
	for _, doc := range docs {
		if doc.FHIRKey == "" {
			continue
		}
		body, err := s.objects.Get(ctx, doc.FHIRKey)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", doc.FHIRKey).Msg("failed to load report")
			continue
		}
		var report DiagnosticReport
		if err := json.Unmarshal(body, &report); err != nil {
			s.logger.Warn().Err(err).Str("key", doc.FHIRKey).Msg("failed to decode report")
			continue
		}

		entry := &ReportWithObservations{Report: &report}
		for _, ref := range report.Result {
			obsID := fhir.ParseReference(ref.Reference)
			obsBody, err := s.objects.Get(ctx, ObservationKey(doc.PatientID, obsID))
			if err != nil {
				continue
			}
			var obs Observation
			if err := json.Unmarshal(obsBody, &obs); err != nil {
				continue
			}
			entry.Observations = append(entry.Observations, &obs)
		}
		out = append(out, entry)

		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// CompareLatest compares the two most recent reports. Only tests present in
// both reports with a numeric value in both contribute a change; a zero
// value counts as present.
func (s *Service) CompareLatest(ctx context.Context, userID string) (*Comparison, error) {
	reports, err := s.LatestReports(ctx, userID, 2)
	if err != nil {
		return nil, err
	}
	if len(reports) < 2 {
		return nil, ErrNotEnoughHistory
	}

	newer, older := reports[0], reports[1]

	previous := make(map[string]*Observation, len(older.Observations))
	for _, obs := range older.Observations {
		previous[obs.Code.Text] = obs
	}

	cmp := &Comparison{
		PreviousDate: older.Report.EffectiveDateTime,
		CurrentDate:  newer.Report.EffectiveDateTime,
		Changes:      []Change{},
	}
	for _, current := range newer.Observations {
		prior, ok := previous[current.Code.Text]
		if !ok {
			continue
		}
		if current.ValueQuantity == nil || current.ValueQuantity.Value == nil ||
			prior.ValueQuantity == nil || prior.ValueQuantity.Value == nil {
			continue
		}
		prev, curr := *prior.ValueQuantity.Value, *current.ValueQuantity.Value
		delta := curr - prev
		trend := TrendStable
		switch {
		case delta > 0:
			trend = TrendUp
		case delta < 0:
			trend = TrendDown
		}
		cmp.Changes = append(cmp.Changes, Change{
			Test:     current.Code.Text,
			Previous: prev,
			Current:  curr,
			Delta:    delta,
			Unit:     current.ValueQuantity.Unit,
			Trend:    trend,
		})
	}
	return cmp, nil
}
