package models

import (
	"fmt"
	"strings"
	"time"
)

type HazardType string

const (
	HazardTypeCCTV           HazardType = "cctv" // surveillance gap
	HazardTypeNoStreetLight  HazardType = "no_street_light"
	HazardTypeAbandonedHouse HazardType = "abandoned_house"
	HazardTypePothole        HazardType = "pothole"
	HazardTypeAccidentProne  HazardType = "accident_prone"
	HazardTypeDarkArea       HazardType = "dark_area"
	HazardTypeOther          HazardType = "other"
)

// HazardTypes lists every known hazard type in display order.
var HazardTypes = []HazardType{
	HazardTypeCCTV,
	HazardTypeNoStreetLight,
	HazardTypeAbandonedHouse,
	HazardTypePothole,
	HazardTypeAccidentProne,
	HazardTypeDarkArea,
	HazardTypeOther,
}

func ParseHazardType(s string) (HazardType, error) {
	t := HazardType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range HazardTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown hazard type %q", s)
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium, "":
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Rank orders severities low < medium < high. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	}
	return 0
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusVerified:
		return StatusVerified, nil
	case StatusRejected:
		return StatusRejected, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

type Votes struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}

// Net is upvotes minus downvotes.
func (v Votes) Net() int {
	return v.Upvotes - v.Downvotes
}

type HazardReport struct {
	ID              string     `json:"id"`
	Type            HazardType `json:"type"`
	Location        Coordinate `json:"location"`
	Severity        Severity   `json:"severity"`
	Status          Status     `json:"status"`
	Votes           Votes      `json:"votes"`
	Address         string     `json:"address,omitempty"`
	Description     string     `json:"description,omitempty"` // max 500 chars
	ContributorName string     `json:"contributorName,omitempty"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty"`
	VerifiedBy      string     `json:"verifiedBy,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

const MaxDescriptionLength = 500

// ReferenceTime is the moment a report's age is measured from: verification
// if it happened, creation otherwise.
func (h *HazardReport) ReferenceTime() time.Time {
	if h.VerifiedAt != nil && !h.VerifiedAt.IsZero() {
		return *h.VerifiedAt
	}
	return h.CreatedAt
}

func (h *HazardReport) Validate() error {
	if _, err := ParseHazardType(string(h.Type)); err != nil {
		return err
	}
	if h.Severity.Rank() == 0 {
		return fmt.Errorf("unknown severity %q", h.Severity)
	}
	if _, err := ParseStatus(string(h.Status)); err != nil {
		return err
	}
	if len(h.Description) > MaxDescriptionLength {
		return fmt.Errorf("description exceeds %d characters", MaxDescriptionLength)
	}
	return h.Location.Validate()
}
