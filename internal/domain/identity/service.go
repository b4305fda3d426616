// Package identity manages user accounts and their FHIR Patient profiles.
// Registration creates the account in the record index and the Patient
// resource in object storage; login verifies credentials and issues a
// session token.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthcompanion/api/internal/domain/records"
	"github.com/healthcompanion/api/internal/platform/auth"
	"github.com/healthcompanion/api/internal/platform/fhir"
	"github.com/healthcompanion/api/internal/platform/objectstore"
	"github.com/healthcompanion/api/internal/platform/recordstore"
)

var ErrUsernameTaken = errors.New("username already exists")

const identifierSystem = "health-companion"

// Patient is the FHIR Patient resource stored for each account.
type Patient struct {
	ResourceType string              `json:"resourceType"`
	ID           string              `json:"id"`
	Identifier   []fhir.Identifier   `json:"identifier,omitempty"`
	Name         []fhir.HumanName    `json:"name,omitempty"`
	Telecom      []fhir.ContactPoint `json:"telecom,omitempty"`
	Active       bool                `json:"active"`
	Meta         *fhir.Meta          `json:"meta,omitempty"`
}

// Service handles registration and login.
type Service struct {
	objects  objectstore.Store
	index    recordstore.Store
	sessions *auth.Manager
	logger   zerolog.Logger

	now func() time.Time
}

// NewService creates an identity Service.
func NewService(objects objectstore.Store, index recordstore.Store, sessions *auth.Manager, logger zerolog.Logger) *Service {
	return &Service{
		objects:  objects,
		index:    index,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Register creates a new account with its Patient profile. The username
// doubles as the user id.
func (s *Service) Register(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return &records.ValidationError{Field: "username", Message: "is required"}
	}
	if password == "" {
		return &records.ValidationError{Field: "password", Message: "is required"}
	}

	if _, err := s.index.GetUser(ctx, username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, recordstore.ErrUserNotFound) {
		return fmt.Errorf("check username: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	patientID := "patient-" + username
	now := s.now().UTC().Format(time.RFC3339)

	patient := buildPatient(patientID, username, email, now)
	body, err := json.MarshalIndent(patient, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal patient resource: %w", err)
	}
	patientKey := records.PatientKey(patientID)
	if err := s.objects.Put(ctx, patientKey, body, objectstore.ContentTypeFHIRJSON); err != nil {
		return fmt.Errorf("store patient resource: %w", err)
	}

	if err := s.index.PutUser(ctx, &recordstore.UserRecord{
		UserID:       username,
		PatientID:    patientID,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		PatientKey:   patientKey,
		CreatedAt:    now,
	}); err != nil {
		return fmt.Errorf("store user record: %w", err)
	}

	s.logger.Info().Str("user_id", username).Str("patient_id", patientID).Msg("registered user")
	return nil
}

// Login verifies credentials and returns a signed session token with its
// session.
func (s *Service) Login(ctx context.Context, username, password string) (string, *auth.Session, error) {
	user, err := s.index.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, recordstore.ErrUserNotFound) {
			return "", nil, auth.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("look up user: %w", err)
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return "", nil, err
	}

	session := auth.Session{
		UserID:    user.UserID,
		Username:  user.Username,
		PatientID: user.PatientID,
	}
	token, err := s.sessions.Issue(session)
	if err != nil {
		return "", nil, err
	}
	return token, &session, nil
}

// buildPatient assembles the Patient resource. Multi-word usernames split
// into given and family parts.
func buildPatient(patientID, username, email, now string) *Patient {
	name := fhir.HumanName{Text: username, Family: username, Given: []string{username}}
	if parts := strings.Fields(username); len(parts) > 1 {
		name.Given = []string{parts[0]}
		name.Family = parts[len(parts)-1]
	}

	p := &Patient{
		ResourceType: "Patient",
		ID:           patientID,
		Identifier: []fhir.Identifier{{
			System: identifierSystem,
			Value:  strings.TrimPrefix(patientID, "patient-"),
		}},
		Name:   []fhir.HumanName{name},
		Active: true,
		Meta:   &fhir.Meta{LastUpdated: now},
	}
	if email != "" {
		p.Telecom = []fhir.ContactPoint{{System: "email", Value: email, Use: "home"}}
	}
	return p
}
