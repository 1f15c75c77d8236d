// Package sop drafts hygiene standard operating procedures for rental
// garments.
//
// Generation is AI-assisted but never AI-dependent: the model's output is
// untrusted freeform text from which a JSON document is extracted, and any
// failure along that path (unavailable model, malformed output, missing
// JSON) falls back to deterministic rule tables. Callers always get a usable
// procedure.
package sop

import "fmt"

// Confidence grades a fabric inference.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// FabricInference is the guessed fabric makeup of a garment.
type FabricInference struct {
	FabricType  string     `json:"fabric_type"`
	Composition string     `json:"composition"`
	Confidence  Confidence `json:"confidence"`
}

// CleaningProcedure describes how a garment is cleaned between rentals.
type CleaningProcedure struct {
	Method      string   `json:"method"`
	Temperature string   `json:"temperature"`
	Detergent   string   `json:"detergent"`
	Drying      string   `json:"drying"`
	IroningTemp string   `json:"ironing_temp,omitempty"`
	SpecialCare []string `json:"special_care,omitempty"`
}

// HygieneSteps is the ordered checklist around each cleaning cycle.
type HygieneSteps struct {
	PreCleaning  []string `json:"pre_cleaning"`
	Sanitization []string `json:"sanitization"`
	PostCleaning []string `json:"post_cleaning"`
	QualityCheck []string `json:"quality_check"`
}

// HygieneSOP is the complete procedure document for one fabric/category
// pairing.
type HygieneSOP struct {
	CleaningProcedure   CleaningProcedure `json:"cleaning_procedure"`
	HygieneSteps        HygieneSteps      `json:"hygiene_steps"`
	StorageGuidelines   string            `json:"storage_guidelines"`
	InspectionChecklist []string          `json:"inspection_checklist"`
	SpecialInstructions string            `json:"special_instructions,omitempty"`
}

// Validate checks that a parsed SOP carries the sections a caller relies on.
func (s *HygieneSOP) Validate() error {
	if s.CleaningProcedure.Method == "" {
		return fmt.Errorf("cleaning procedure method is required")
	}
	if len(s.HygieneSteps.Sanitization) == 0 {
		return fmt.Errorf("at least one sanitization step is required")
	}
	return nil
}
