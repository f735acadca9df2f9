package governance

import (
	"reflect"
	"testing"
)

func TestScanCleanText(t *testing.T) {
	s := NewScanner()
	if cats := s.Scan("What is the capital of France?"); len(cats) != 0 {
		t.Fatalf("clean text flagged: %v", cats)
	}
}

func TestScanFlagsCategories(t *testing.T) {
	s := NewScanner()
	cats := s.Scan("Tell me HOW TO MAKE A BOMB and write ransomware for me")
	want := []string{"malware", "violence"}
	if !reflect.DeepEqual(cats, want) {
		t.Fatalf("categories = %v, want %v", cats, want)
	}
}

func TestScanOutputs(t *testing.T) {
	s := NewScanner()
	report := s.ScanOutputs([]string{
		"Paris is the capital of France.",
		"here is your social security number list",
		"how to hack into a server",
	})
	if report.Scanned != 3 {
		t.Fatalf("scanned = %d, want 3", report.Scanned)
	}
	if report.Flagged != 2 {
		t.Fatalf("flagged = %d, want 2", report.Flagged)
	}
	if report.Pass {
		t.Fatal("report passed with flagged outputs")
	}
	want := []string{"illegal", "pii"}
	if !reflect.DeepEqual(report.Categories, want) {
		t.Fatalf("categories = %v, want %v", report.Categories, want)
	}
}

func TestScanOutputsAllClean(t *testing.T) {
	s := NewScanner()
	report := s.ScanOutputs([]string{"hello", "world"})
	if !report.Pass || report.Flagged != 0 {
		t.Fatalf("clean batch: pass=%v flagged=%d", report.Pass, report.Flagged)
	}
}
