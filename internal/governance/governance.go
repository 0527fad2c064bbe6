// Package governance holds the deterministic risk and fairness checks run on
// extracted document text. Nothing here performs I/O.
package governance

import (
	"strings"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

type FairnessStatus string

const (
	FairnessPass    FairnessStatus = "PASS"
	FairnessWarning FairnessStatus = "WARNING"
	FairnessUnknown FairnessStatus = "UNKNOWN"
)

const (
	FactorPII              = "Contains PII"
	FactorSensitiveDocType = "High Sensitivity Document Type"
	FactorSensitiveWords   = "Sensitive Keywords Detected"

	IssueLowConfidence = "Low confidence score - potential quality or model bias issue"

	// FairnessThreshold is the mean confidence (0..1) below which a warning is raised.
	FairnessThreshold = 0.6
)

var (
	sensitiveDocTypes = []string{"aadhaar", "pan", "passport", "medical_record", "bank_statement"}
	sensitiveKeywords = []string{"confidential", "secret", "restricted", "internal use only"}
)

type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors"`
}

type FairnessCheck struct {
	Status        FairnessStatus `json:"status"`
	AvgConfidence *float64       `json:"avg_confidence,omitempty"`
	Issues        []string       `json:"issues"`
	Details       string         `json:"details,omitempty"`
}

// GuardrailFlags is the document stored in a job's guardrail_flags column.
type GuardrailFlags struct {
	RiskAssessment RiskAssessment `json:"risk_assessment"`
	FairnessCheck  FairnessCheck  `json:"fairness_check"`
	PIITypes       []string       `json:"pii_types"`
}

// AssessRisk grades a document. PII or a sensitive label make it HIGH;
// sensitive keywords raise it to at least MEDIUM.
func AssessRisk(label, content string, piiDetected bool) RiskAssessment {
	level := RiskLow
	factors := []string{}

	if piiDetected {
		level = RiskHigh
		factors = append(factors, FactorPII)
	}

	if containsAny(strings.ToLower(label), sensitiveDocTypes) {
		level = RiskHigh
		factors = append(factors, FactorSensitiveDocType)
	}

	if containsAny(strings.ToLower(content), sensitiveKeywords) {
		if level != RiskHigh {
			level = RiskMedium
		}
		factors = append(factors, FactorSensitiveWords)
	}

	return RiskAssessment{Level: level, Factors: factors}
}

// ValidateFairness checks the mean of confidences given on a 0..1 scale.
func ValidateFairness(confidences []float64) FairnessCheck {
	if len(confidences) == 0 {
		return FairnessCheck{Status: FairnessUnknown, Issues: []string{}, Details: "No results to analyze"}
	}

	var sum float64
	for _, c := range confidences {
		sum += c
	}
	avg := sum / float64(len(confidences))

	check := FairnessCheck{Status: FairnessPass, AvgConfidence: &avg, Issues: []string{}}
	if avg < FairnessThreshold {
		check.Status = FairnessWarning
		check.Issues = append(check.Issues, IssueLowConfidence)
	}
	return check
}

// Evaluate runs both checks for one extraction.
func Evaluate(label, content string, confidence float64, piiTypes []string) GuardrailFlags {
	if piiTypes == nil {
		piiTypes = []string{}
	}
	return GuardrailFlags{
		RiskAssessment: AssessRisk(label, content, len(piiTypes) > 0),
		FairnessCheck:  ValidateFairness([]float64{confidence}),
		PIITypes:       piiTypes,
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
