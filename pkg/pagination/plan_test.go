package pagination

import "testing"

func TestPlan(t *testing.T) {
	tests := []struct {
		name      string
		pageCount int
		pageSize  int
		wantLen   int
	}{
		{name: "ten pages", pageCount: 10, pageSize: 100, wantLen: 10},
		{name: "single page", pageCount: 1, pageSize: 30, wantLen: 1},
		{name: "zero pages", pageCount: 0, pageSize: 30, wantLen: 0},
		{name: "negative pages", pageCount: -3, pageSize: 30, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queries := Plan(tt.pageCount, tt.pageSize, "Rust language", "Rust")
			if len(queries) != tt.wantLen {
				t.Fatalf("len(Plan()) = %d, want %d", len(queries), tt.wantLen)
			}

			seen := make(map[int]bool)
			for i, q := range queries {
				if q.PageIndex != i {
					t.Errorf("queries[%d].PageIndex = %d, want %d", i, q.PageIndex, i)
				}
				if seen[q.PageIndex] {
					t.Errorf("duplicate page index %d", q.PageIndex)
				}
				seen[q.PageIndex] = true

				if q.PageSize != tt.pageSize || q.FilterTerm != "Rust language" || q.LanguageFilter != "Rust" {
					t.Errorf("queries[%d] = %+v, want shared filter and size", i, q)
				}
			}
		})
	}
}

func TestPlan_Deterministic(t *testing.T) {
	a := Plan(5, 10, "cli", "Go")
	b := Plan(5, 10, "cli", "Go")
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("Plan() not deterministic at %d: %+v != %+v", i, a[i], b[i])
		}
	}
}
