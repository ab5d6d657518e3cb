package domain

import "testing"

func TestParseSummaryColumnKey(t *testing.T) {
	col, err := ParseSummaryColumnKey("0|sd|Title")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if col.Position != 0 {
		t.Errorf("expected position 0, got %d", col.Position)
	}
	if !col.Sortable {
		t.Error("expected sortable")
	}
	if col.DefaultSort != SortDesc {
		t.Errorf("expected desc default sort, got %q", col.DefaultSort)
	}
	if col.Label != "Title" {
		t.Errorf("expected label Title, got %q", col.Label)
	}
}

func TestParseSummaryColumnKey_NoFlags(t *testing.T) {
	col, err := ParseSummaryColumnKey("3||Published At")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if col.Position != 3 || col.Sortable || col.DefaultSort != SortNone {
		t.Errorf("unexpected column: %+v", col)
	}
	if col.Label != "Published At" {
		t.Errorf("expected label preserved, got %q", col.Label)
	}
}

func TestParseSummaryColumnKey_LabelMayContainSeparator(t *testing.T) {
	col, err := ParseSummaryColumnKey("1|s|A|B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if col.Label != "A|B" {
		t.Errorf("expected label A|B, got %q", col.Label)
	}
}

func TestParseSummaryColumnKey_Invalid(t *testing.T) {
	cases := []string{
		"",
		"Title",
		"x||Title",
		"-1||Title",
		"0|q|Title",
		"0|ad|Title", // conflicting sort flags
		"0|s|",
	}
	for _, key := range cases {
		if _, err := ParseSummaryColumnKey(key); err == nil {
			t.Errorf("expected error for %q", key)
		}
	}
}

func TestFormatSummaryColumnKey_RoundTrip(t *testing.T) {
	cols := []SummaryColumn{
		{Position: 0, Sortable: true, DefaultSort: SortDesc, Label: "Title"},
		{Position: 2, Label: "Icon"},
		{Position: 7, Sortable: true, DefaultSort: SortAsc, Label: "Created"},
	}
	for _, col := range cols {
		parsed, err := ParseSummaryColumnKey(FormatSummaryColumnKey(col))
		if err != nil {
			t.Fatalf("round trip failed for %+v: %v", col, err)
		}
		if parsed != col {
			t.Errorf("round trip mismatch: %+v != %+v", parsed, col)
		}
	}
}
