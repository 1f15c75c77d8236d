package sop

import (
	"fmt"
	"strings"
)

// categoryFabricHints maps a product category to its likely fabrics, most
// common first. Used when no model is available or its output is unusable.
var categoryFabricHints = map[string][]string{
	"blazer": {"wool", "cotton", "polyester"},
	"kurta":  {"cotton", "silk", "linen"},
	"dress":  {"cotton", "silk", "polyester", "chiffon"},
	"shirt":  {"cotton", "linen", "polyester"},
	"pants":  {"cotton", "wool", "polyester"},
	"jacket": {"leather", "denim", "wool"},
	"saree":  {"silk", "cotton", "chiffon"},
	"suit":   {"wool", "cotton-polyester"},
}

// dryCleanOnly lists fabrics that must never see a washing machine.
var dryCleanOnly = map[string]bool{
	"wool":     true,
	"silk":     true,
	"cashmere": true,
	"leather":  true,
	"chiffon":  true,
}

var sanitizationSteps = []string{
	"Steam sanitization at 100°C for 10 minutes",
	"UV-C light treatment for 15 minutes",
	"Fabric-safe disinfectant spray application",
}

var inspectionChecklist = []string{
	"Visual inspection for stains, tears, or damage",
	"Odor check",
	"Button, zipper, and fastener functionality check",
	"Lining and seam integrity check",
}

const storageGuidelines = "Store in breathable garment bags at 18-22°C, " +
	"40-50% humidity, away from direct sunlight."

// fallbackInference answers a fabric inference from the rule tables alone.
func fallbackInference(category, fabricHint string) FabricInference {
	if fabricHint != "" {
		return FabricInference{
			FabricType:  strings.ToLower(fabricHint),
			Composition: "Primary: " + fabricHint,
			Confidence:  ConfidenceMedium,
		}
	}

	hints, ok := categoryFabricHints[strings.ToLower(category)]
	if !ok {
		hints = []string{"cotton"}
	}
	return FabricInference{
		FabricType:  hints[0],
		Composition: "Estimated: " + hints[0],
		Confidence:  ConfidenceLow,
	}
}

// fallbackSOP builds a deterministic procedure for the fabric. It is
// intentionally conservative: unknown fabrics get the gentlest treatment.
func fallbackSOP(fabricType, category string) HygieneSOP {
	fabric := strings.ToLower(fabricType)

	var proc CleaningProcedure
	switch {
	case dryCleanOnly[fabric]:
		proc = CleaningProcedure{
			Method:      "Professional Dry Cleaning",
			Temperature: "N/A",
			Detergent:   "Professional dry cleaning solvents",
			Drying:      "Hang dry in ventilated area after cleaning",
			SpecialCare: []string{"Do not machine wash", "Do not tumble dry"},
		}
	case fabric == "cotton" || fabric == "linen":
		proc = CleaningProcedure{
			Method:      "Machine Wash",
			Temperature: "30°C (Cold)",
			Detergent:   "Mild liquid detergent",
			Drying:      "Line dry or tumble dry low",
			IroningTemp: "Medium-high",
		}
	default:
		proc = CleaningProcedure{
			Method:      "Hand Wash",
			Temperature: "Lukewarm (30-40°C)",
			Detergent:   "Gentle fabric wash",
			Drying:      "Flat dry away from sunlight",
			SpecialCare: []string{"Test colorfastness before full wash"},
		}
	}

	return HygieneSOP{
		CleaningProcedure: proc,
		HygieneSteps: HygieneSteps{
			PreCleaning:  []string{"Empty all pockets", "Check for stains and pre-treat", "Close zippers and fastenings"},
			Sanitization: sanitizationSteps,
			PostCleaning: []string{"Inspect for residual odor", "Press or steam per fabric"},
			QualityCheck: inspectionChecklist,
		},
		StorageGuidelines:   storageGuidelines,
		InspectionChecklist: inspectionChecklist,
		SpecialInstructions: fmt.Sprintf("Rule-based procedure for %s (%s); review before first use.", fabric, category),
	}
}
