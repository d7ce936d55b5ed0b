package domain

import (
	"time"

	"github.com/google/uuid"
)

type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusVerified  ScanStatus = "verified"
	ScanStatusBlocked   ScanStatus = "blocked"
	ScanStatusError     ScanStatus = "error"
	ScanStatusWontCheck ScanStatus = "wont_check"
)

const (
	reasonNotScanned   = "not yet scanned"
	reasonClean        = "Clean"
	reasonNoResult     = "No scan result"
	reasonFileTooLarge = "File is too big for security check"
)

// SecurityCheck состояние антивирусной проверки файла
type SecurityCheck struct {
	Status       ScanStatus `json:"status"`
	Reason       string     `json:"reason"`
	RequestToken string     `json:"request_token,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func NewSecurityCheck(now time.Time) SecurityCheck {
	return SecurityCheck{
		Status:       ScanStatusPending,
		Reason:       reasonNotScanned,
		RequestToken: uuid.NewString(),
		UpdatedAt:    now,
	}
}

// ScanResult ответ антивируса. VirusDetected == nil означает, что результата нет.
type ScanResult struct {
	VirusDetected  *bool  `json:"virus_detected,omitempty"`
	VirusSignature string `json:"virus_signature,omitempty"`
	Error          string `json:"error,omitempty"`
}

// applyScanResult не меняет окончательные статусы и возвращает false в этом случае
func (s *SecurityCheck) applyScanResult(result ScanResult, now time.Time) bool {
	if s.IsFinal() {
		return false
	}

	s.UpdatedAt = now
	switch {
	case result.Error != "":
		s.Status = ScanStatusError
		s.Reason = result.Error
	case result.VirusDetected == nil:
		s.Status = ScanStatusError
		s.Reason = reasonNoResult
	case *result.VirusDetected:
		s.Status = ScanStatusBlocked
		s.Reason = result.VirusSignature
	default:
		s.Status = ScanStatusVerified
		s.Reason = reasonClean
	}
	return true
}

func (s *SecurityCheck) markWontCheck(now time.Time) {
	s.Status = ScanStatusWontCheck
	s.Reason = reasonFileTooLarge
	s.UpdatedAt = now
}

func (s SecurityCheck) copyVerified(now time.Time) SecurityCheck {
	return SecurityCheck{
		Status:       ScanStatusVerified,
		Reason:       s.Reason,
		RequestToken: uuid.NewString(),
		UpdatedAt:    now,
	}
}

// IsFinal BLOCKED и WONT_CHECK больше не меняются
func (s SecurityCheck) IsFinal() bool {
	return s.Status == ScanStatusBlocked || s.Status == ScanStatusWontCheck
}

// NeedsScan true для записей, которые нужно отправить в антивирус
func (s SecurityCheck) NeedsScan() bool {
	return s.Status == ScanStatusPending || s.Status == ScanStatusError
}
