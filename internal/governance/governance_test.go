package governance_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/governance"
)

func TestAssessRisk_PIIAlwaysHigh(t *testing.T) {
	for _, label := range []string{"", "invoice.pdf", "scan.png"} {
		got := governance.AssessRisk(label, "hello world", true)
		if got.Level != governance.RiskHigh {
			t.Fatalf("label %q: expected HIGH, got %s", label, got.Level)
		}
	}
}

func TestAssessRisk_NeverDowngradesHigh(t *testing.T) {
	got := governance.AssessRisk("Passport_Scan.pdf", "CONFIDENTIAL: internal use only", false)
	if got.Level != governance.RiskHigh {
		t.Fatalf("expected HIGH, got %s", got.Level)
	}
	want := []string{governance.FactorSensitiveDocType, governance.FactorSensitiveWords}
	if !reflect.DeepEqual(got.Factors, want) {
		t.Fatalf("expected factors %v, got %v", want, got.Factors)
	}
}

func TestAssessRisk_KeywordsRaiseToMedium(t *testing.T) {
	got := governance.AssessRisk("report.pdf", "This memo is Restricted", false)
	if got.Level != governance.RiskMedium {
		t.Fatalf("expected MEDIUM, got %s", got.Level)
	}
}

func TestAssessRisk_LowByDefault(t *testing.T) {
	got := governance.AssessRisk("receipt.png", "total 42", false)
	if got.Level != governance.RiskLow || len(got.Factors) != 0 {
		t.Fatalf("expected LOW with no factors, got %s %v", got.Level, got.Factors)
	}
}

func TestAssessRisk_FactorOrder(t *testing.T) {
	got := governance.AssessRisk("bank_statement.pdf", "secret", true)
	want := []string{governance.FactorPII, governance.FactorSensitiveDocType, governance.FactorSensitiveWords}
	if !reflect.DeepEqual(got.Factors, want) {
		t.Fatalf("expected %v, got %v", want, got.Factors)
	}
}

func TestValidateFairness(t *testing.T) {
	if got := governance.ValidateFairness(nil); got.Status != governance.FairnessUnknown {
		t.Fatalf("expected UNKNOWN for empty input, got %s", got.Status)
	}

	pass := governance.ValidateFairness([]float64{0.6, 0.9})
	if pass.Status != governance.FairnessPass || len(pass.Issues) != 0 {
		t.Fatalf("expected PASS, got %s %v", pass.Status, pass.Issues)
	}

	warn := governance.ValidateFairness([]float64{0.5, 0.6})
	if warn.Status != governance.FairnessWarning {
		t.Fatalf("expected WARNING, got %s", warn.Status)
	}
	if warn.AvgConfidence == nil || *warn.AvgConfidence != 0.55 {
		t.Fatalf("expected avg 0.55, got %v", warn.AvgConfidence)
	}
	if len(warn.Issues) != 1 || warn.Issues[0] != governance.IssueLowConfidence {
		t.Fatalf("unexpected issues: %v", warn.Issues)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	a, _ := json.Marshal(governance.Evaluate("aadhaar.jpg", "text", 0.8, []string{"phone"}))
	b, _ := json.Marshal(governance.Evaluate("aadhaar.jpg", "text", 0.8, []string{"phone"}))
	if string(a) != string(b) {
		t.Fatalf("expected byte-identical output:\n%s\n%s", a, b)
	}
}

func TestBuildTransparencyReport(t *testing.T) {
	purpose := "Financial"
	job := &entity.Job{
		ID:           uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Status:       entity.StatusCompleted,
		OCREngine:    "tesseract",
		ContainsPII:  true,
		PurposeCode:  &purpose,
		ReviewStatus: entity.ReviewPending,
	}
	r := governance.BuildTransparencyReport(job)
	if r.Purpose != "Financial" || r.Steps[1].Status != "Completed" || !*r.Steps[2].Detected {
		t.Fatalf("unexpected report: %+v", r)
	}
}
