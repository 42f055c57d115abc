package model

import (
	"errors"
	"strings"
)

// FallbackReason is the rejection reason substituted whenever the remote
// verification call or its response cannot be trusted.
const FallbackReason = "AI connection failed. Unable to verify authenticity. Please check your internet or try again."

// DefaultRejectionReason is used when the model rejects an image without saying why
const DefaultRejectionReason = "This does not appear to be a heritage structure."

// VerificationVerdict is the accept/reject result of analysing one photo.
// Exactly one attribute group is populated, selected by Valid:
// Name/Era/Narrative when valid, RejectionReason otherwise.
type VerificationVerdict struct {
	Valid           bool   `json:"valid"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	Name            string `json:"name,omitempty"`
	Era             string `json:"era,omitempty"`
	Narrative       string `json:"narrative,omitempty"`
}

// Accept builds a valid verdict
func Accept(name, era, narrative string) VerificationVerdict {
	return VerificationVerdict{
		Valid:     true,
		Name:      strings.TrimSpace(name),
		Era:       strings.TrimSpace(era),
		Narrative: strings.TrimSpace(narrative),
	}
}

// Reject builds an invalid verdict. An empty reason becomes DefaultRejectionReason.
func Reject(reason string) VerificationVerdict {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultRejectionReason
	}
	return VerificationVerdict{Valid: false, RejectionReason: reason}
}

// FallbackVerdict returns the canonical rejection used on any verification failure
func FallbackVerdict() VerificationVerdict {
	return VerificationVerdict{Valid: false, RejectionReason: FallbackReason}
}

// IsFallback reports whether v is the canonical fallback verdict
func (v VerificationVerdict) IsFallback() bool {
	return !v.Valid && v.RejectionReason == FallbackReason
}

var (
	errAcceptedWithReason = errors.New("accepted verdict carries a rejection reason")
	errAcceptedIncomplete = errors.New("accepted verdict is missing name, era or narrative")
	errRejectedWithSite   = errors.New("rejected verdict carries site attributes")
	errRejectedNoReason   = errors.New("rejected verdict has no reason")
)

// Check reports whether the verdict violates the one-group-only invariant
func (v VerificationVerdict) Check() error {
	if v.Valid {
		if v.RejectionReason != "" {
			return errAcceptedWithReason
		}
		if v.Name == "" || v.Era == "" || v.Narrative == "" {
			return errAcceptedIncomplete
		}
		return nil
	}
	if v.Name != "" || v.Era != "" || v.Narrative != "" {
		return errRejectedWithSite
	}
	if v.RejectionReason == "" {
		return errRejectedNoReason
	}
	return nil
}
