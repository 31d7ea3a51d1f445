package integrity

import (
	"errors"
	"fmt"
)

// Category identifies one kind of violation.
type Category string

const (
	VerifiedWithoutIdentity   Category = "verified_without_identity"
	VerifiedWrongConfidence   Category = "verified_wrong_confidence"
	ConfidenceWithoutVerified Category = "confidence_without_verified"
	IdentityWithoutConfidence Category = "identity_without_confidence"
	ConfidenceWithoutIdentity Category = "confidence_without_identity"
	DanglingIdentityReference Category = "dangling_identity_reference"
	DanglingPhotoReference    Category = "dangling_photo_reference"
	WeakLinks                 Category = "weak_links"
	Unrecognized              Category = "unrecognized"
	PeopleWithoutLinks        Category = "people_without_links"
	DuplicateIdentityGroups   Category = "duplicate_identity_groups"
)

// Severity is used for triage only; it never changes detection.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

var (
	ErrUnknownCategory = errors.New("unknown violation type")
	ErrNotAutoFixable  = errors.New("violation type is not auto-fixable")
)

// CategoryInfo describes a category for operators.
type CategoryInfo struct {
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	AutoFixable bool     `json:"auto_fixable"`
	Description string   `json:"description"`
	Fix         string   `json:"fix,omitempty"`
}

// catalog is ordered so that running every fix once, top to bottom, leaves
// no fixable violation behind.
var catalog = []CategoryInfo{
	{
		Category: DanglingPhotoReference, Severity: SeverityCritical, AutoFixable: true,
		Description: "face link references an image that no longer exists",
		Fix:         "delete the face link",
	},
	{
		Category: DanglingIdentityReference, Severity: SeverityCritical, AutoFixable: true,
		Description: "face link references a person that no longer exists",
		Fix:         "unassign the link, clear verification and confidence",
	},
	{
		Category: VerifiedWithoutIdentity, Severity: SeverityCritical, AutoFixable: true,
		Description: "face link is verified but has no person",
		Fix:         "clear verification and confidence",
	},
	{
		Category: ConfidenceWithoutIdentity, Severity: SeverityLow, AutoFixable: true,
		Description: "face link has a recognition confidence but no person",
		Fix:         "clear confidence",
	},
	{
		Category: VerifiedWrongConfidence, Severity: SeverityHigh, AutoFixable: true,
		Description: "verified face link has a confidence below the verified threshold",
		Fix:         "set confidence to 1.0",
	},
	{
		Category: IdentityWithoutConfidence, Severity: SeverityHigh, AutoFixable: true,
		Description: "assigned, unverified face link has no recognition confidence",
		Fix:         "set confidence to the conservative unknown default",
	},
	{
		Category: ConfidenceWithoutVerified, Severity: SeverityMedium, AutoFixable: true,
		Description: "face link confidence is at the verified level but the link is not verified",
		Fix:         "mark verified",
	},
	{
		Category: WeakLinks, Severity: SeverityMedium, AutoFixable: true,
		Description: "assigned, unverified face link with a descriptor sits below the match threshold and never surfaces",
		Fix:         "raise confidence to the match threshold",
	},
	{
		Category: Unrecognized, Severity: SeverityInfo,
		Description: "face link with a descriptor awaiting identification",
	},
	{
		Category: PeopleWithoutLinks, Severity: SeverityLow,
		Description: "person has no face links",
	},
	{
		Category: DuplicateIdentityGroups, Severity: SeverityMedium,
		Description: "people sharing a normalized identity field; merge is operator driven",
	},
}

// Categories returns the catalog in repair order.
func Categories() []CategoryInfo {
	return append([]CategoryInfo(nil), catalog...)
}

// Lookup returns the catalog entry for c.
func Lookup(c Category) (CategoryInfo, error) {
	for _, info := range catalog {
		if info.Category == c {
			return info, nil
		}
	}
	return CategoryInfo{}, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
}

// ParseCategory validates a category identifier.
func ParseCategory(s string) (Category, error) {
	info, err := Lookup(Category(s))
	if err != nil {
		return "", err
	}
	return info.Category, nil
}
