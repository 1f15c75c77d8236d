package sop

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
)

// Service drives fabric inference and SOP generation, falling back to the
// rule tables on any generator failure.
type Service struct {
	gen    Generator
	logger *log.Logger
}

// NewService creates a Service. gen may be nil, in which case every call
// answers from the fallback tables. If logger is nil, a default stderr
// logger is used.
func NewService(gen Generator, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[sop] ", log.LstdFlags)
	}
	return &Service{gen: gen, logger: logger}
}

// Available reports whether an AI generator is configured.
func (s *Service) Available() bool {
	return s.gen != nil
}

// InferFabric guesses a garment's fabric from its category and gender,
// optionally steered by a merchandiser-supplied hint. Never fails: generator
// problems degrade to the rule tables.
func (s *Service) InferFabric(ctx context.Context, category, gender, fabricHint string) FabricInference {
	if s.gen == nil {
		return fallbackInference(category, fabricHint)
	}

	text, err := s.gen.Generate(ctx, fabricInferencePrompt(category, gender, fabricHint))
	if err != nil {
		s.logger.Printf("Fabric inference generation failed, using rules: %v", err)
		return fallbackInference(category, fabricHint)
	}

	var inference FabricInference
	if err := parseJSON(text, &inference); err != nil {
		s.logger.Printf("Fabric inference response unusable, using rules: %v", err)
		return fallbackInference(category, fabricHint)
	}
	if inference.FabricType == "" {
		s.logger.Printf("Fabric inference response missing fabric type, using rules")
		return fallbackInference(category, fabricHint)
	}
	return inference
}

// GenerateSOP drafts a hygiene procedure for the fabric/category pairing.
// Never fails: generator problems degrade to the rule tables.
func (s *Service) GenerateSOP(ctx context.Context, fabricType, composition, category, gender string) HygieneSOP {
	if s.gen == nil {
		return fallbackSOP(fabricType, category)
	}

	text, err := s.gen.Generate(ctx, sopPrompt(fabricType, composition, category, gender))
	if err != nil {
		s.logger.Printf("SOP generation failed, using rules: %v", err)
		return fallbackSOP(fabricType, category)
	}

	var sop HygieneSOP
	if err := parseJSON(text, &sop); err != nil {
		s.logger.Printf("SOP response unusable, using rules: %v", err)
		return fallbackSOP(fabricType, category)
	}
	if err := sop.Validate(); err != nil {
		s.logger.Printf("SOP response incomplete (%v), using rules", err)
		return fallbackSOP(fabricType, category)
	}
	return sop
}

// parseJSON extracts the JSON object embedded in freeform model output and
// unmarshals it into out.
func parseJSON(text string, out any) error {
	doc, err := extractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("malformed JSON in response: %w", err)
	}
	return nil
}

// extractJSON returns the substring from the first '{' to the last '}'.
// Models routinely wrap the document in prose or code fences; everything
// outside the braces is discarded.
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return text[start : end+1], nil
}

func fabricInferencePrompt(category, gender, hint string) string {
	var sb strings.Builder
	sb.WriteString("You are a textile expert. Based on the following garment, infer the most likely fabric type and composition.\n\n")
	fmt.Fprintf(&sb, "Category: %s\nGender: %s\n", category, gender)
	if hint != "" {
		fmt.Fprintf(&sb, "Fabric hint from intake: %s\n", hint)
	}
	sb.WriteString(`
Respond with only a JSON object of this exact shape:
{"fabric_type": "...", "composition": "...", "confidence": "high|medium|low"}`)
	return sb.String()
}

func sopPrompt(fabricType, composition, category, gender string) string {
	var sb strings.Builder
	sb.WriteString("You are a garment-care specialist for an apparel rental service. ")
	sb.WriteString("Draft a cleaning and hygiene procedure to run between rentals.\n\n")
	fmt.Fprintf(&sb, "Fabric: %s\nComposition: %s\nCategory: %s\nGender: %s\n", fabricType, composition, category, gender)
	sb.WriteString(`
Respond with only a JSON object of this exact shape:
{
  "cleaning_procedure": {"method": "...", "temperature": "...", "detergent": "...", "drying": "...", "ironing_temp": "...", "special_care": ["..."]},
  "hygiene_steps": {"pre_cleaning": ["..."], "sanitization": ["..."], "post_cleaning": ["..."], "quality_check": ["..."]},
  "storage_guidelines": "...",
  "inspection_checklist": ["..."],
  "special_instructions": "..."
}`)
	return sb.String()
}
