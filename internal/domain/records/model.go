// Package records builds and persists the FHIR record set derived from
// uploaded medical documents: one DiagnosticReport per upload plus an
// Observation per parsed test result, with a metadata item in the record
// index. It also compares the two most recent reports.
package records

import (
	"fmt"

	"github.com/healthcompanion/api/internal/platform/fhir"
)

// Coding systems used on generated resources.
const (
	reportCategorySystem      = "http://terminology.hl7.org/CodeSystem/v2-0074"
	observationCategorySystem = "http://terminology.hl7.org/CodeSystem/observation-category"
	ucumSystem                = "http://unitsofmeasure.org"
)

// Document types recorded in the index.
const (
	DocTypeDiagnosticReport = "diagnostic_report"
	DocTypeMedicalDocument  = "medical_document"
)

// Observation is a FHIR Observation resource for one lab test result.
type Observation struct {
	ResourceType      string                 `json:"resourceType"`
	ID                string                 `json:"id"`
	Status            string                 `json:"status"`
	Category          []fhir.CodeableConcept `json:"category,omitempty"`
	Code              fhir.CodeableConcept   `json:"code"`
	Subject           fhir.Reference         `json:"subject"`
	EffectiveDateTime string                 `json:"effectiveDateTime,omitempty"`
	Issued            string                 `json:"issued,omitempty"`
	ValueQuantity     *fhir.Quantity         `json:"valueQuantity,omitempty"`
	Interpretation    []fhir.CodeableConcept `json:"interpretation,omitempty"`
	ReferenceRange    []fhir.ReferenceRange  `json:"referenceRange,omitempty"`
}

// DiagnosticReport is a FHIR DiagnosticReport resource tying the upload's
// observations together.
type DiagnosticReport struct {
	ResourceType      string                 `json:"resourceType"`
	ID                string                 `json:"id"`
	Status            string                 `json:"status"`
	Category          []fhir.CodeableConcept `json:"category,omitempty"`
	Code              fhir.CodeableConcept   `json:"code"`
	Subject           fhir.Reference         `json:"subject"`
	EffectiveDateTime string                 `json:"effectiveDateTime,omitempty"`
	Issued            string                 `json:"issued,omitempty"`
	Result            []fhir.Reference       `json:"result"`
	Meta              *fhir.Meta             `json:"meta,omitempty"`
}

// ReportWithObservations pairs a stored report with its resolved
// observations.
type ReportWithObservations struct {
	Report       *DiagnosticReport `json:"report"`
	Observations []*Observation    `json:"observations"`
}

// Comparison is the result of comparing the two most recent reports.
type Comparison struct {
	PreviousDate string   `json:"previous_date"`
	CurrentDate  string   `json:"current_date"`
	Changes      []Change `json:"changes"`
}

// Change tracks one test shared by both compared reports.
type Change struct {
	Test     string  `json:"test"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
	Delta    float64 `json:"change"`
	Unit     string  `json:"unit,omitempty"`
	Trend    string  `json:"trend"`
}

// Trend values on a Change.
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// Object keys under the patient prefix.

func PatientKey(patientID string) string {
	return fmt.Sprintf("patients/%s/patient.json", patientID)
}

func OriginalKey(patientID, timestamp, fileName string) string {
	return fmt.Sprintf("patients/%s/originals/%s_%s", patientID, timestamp, fileName)
}

func ObservationKey(patientID, observationID string) string {
	return fmt.Sprintf("patients/%s/observations/%s.json", patientID, observationID)
}

func ReportKey(patientID, reportID string) string {
	return fmt.Sprintf("patients/%s/diagnostic-reports/%s.json", patientID, reportID)
}
