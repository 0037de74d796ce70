package httpapi

import (
	"net/http/httptest"
	"testing"
)

func TestParsePaginationDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/calls?system=metro", nil)
	p, err := ParsePagination(r)
	if err != nil {
		t.Fatalf("ParsePagination: %v", err)
	}
	if p.Limit != 50 || p.Page != 1 || p.Offset != 0 {
		t.Errorf("got %+v, want limit=50 page=1 offset=0", p)
	}
}

func TestParsePaginationClampsLimit(t *testing.T) {
	// B1: limit > 1000 clamped to 1000.
	r := httptest.NewRequest("GET", "/api/calls?system=metro&limit=5000", nil)
	p, err := ParsePagination(r)
	if err != nil {
		t.Fatalf("ParsePagination: %v", err)
	}
	if p.Limit != 1000 {
		t.Errorf("Limit = %d, want 1000", p.Limit)
	}
}

func TestParsePaginationRejectsZeroPage(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/calls?system=metro&page=0", nil)
	if _, err := ParsePagination(r); err == nil {
		t.Fatal("expected page=0 to be rejected")
	}
}

func TestParsePaginationRejectsNegativeOffset(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/calls?system=metro&offset=-1", nil)
	if _, err := ParsePagination(r); err == nil {
		t.Fatal("expected offset=-1 to be rejected")
	}
}

func TestParsePaginationExplicitOffsetWins(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/calls?system=metro&page=3&limit=10&offset=5", nil)
	p, err := ParsePagination(r)
	if err != nil {
		t.Fatalf("ParsePagination: %v", err)
	}
	if p.Offset != 5 {
		t.Errorf("explicit offset should win: got %d, want 5", p.Offset)
	}
}

func TestBuildMeta(t *testing.T) {
	p := Pagination{Page: 2, Limit: 10, Offset: 10}
	meta := BuildMeta(p, 25)
	if meta.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", meta.TotalPages)
	}
	if !meta.HasNext || !meta.HasPrev {
		t.Error("page 2 of 3 should have both next and prev")
	}
	if meta.NextPage == nil || *meta.NextPage != 3 {
		t.Error("NextPage should be 3")
	}
	if meta.PrevPage == nil || *meta.PrevPage != 1 {
		t.Error("PrevPage should be 1")
	}
}

func TestBuildMetaLastPage(t *testing.T) {
	p := Pagination{Page: 3, Limit: 10, Offset: 20}
	meta := BuildMeta(p, 25)
	if meta.HasNext {
		t.Error("last page should not have next")
	}
	if meta.NextPage != nil {
		t.Error("last page NextPage should be nil")
	}
}
