package shared

import "testing"

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, 25)
	if p.Page != 1 || p.PerPage != 10 {
		t.Fatalf("expected defaults page=1 perPage=10, got %+v", p)
	}
	if p.TotalPages != 3 {
		t.Fatalf("expected 3 pages for 25 rows, got %d", p.TotalPages)
	}
}

func TestPaginationOffset(t *testing.T) {
	p := NewPagination(3, 10, 45)
	if p.Offset() != 20 {
		t.Fatalf("expected offset 20, got %d", p.Offset())
	}
}

func TestPaginationNavigation(t *testing.T) {
	p := NewPagination(1, 10, 35)
	if p.HasPrev() {
		t.Fatal("first page should have no previous")
	}
	if !p.HasNext() || p.NextPage() != 2 {
		t.Fatalf("expected next page 2, got %d", p.NextPage())
	}

	last := NewPagination(4, 10, 35)
	if last.HasNext() {
		t.Fatal("last page should have no next")
	}
	if last.NextPage() != 4 {
		t.Fatalf("next page clamps to last, got %d", last.NextPage())
	}
	if last.PrevPage() != 3 {
		t.Fatalf("expected previous page 3, got %d", last.PrevPage())
	}
}

func TestPaginationEmptyResult(t *testing.T) {
	p := NewPagination(1, 10, 0)
	if p.TotalPages != 0 || p.HasNext() || p.HasPrev() {
		t.Fatalf("unexpected navigation on empty result: %+v", p)
	}
}
