package vecindex

import "testing"

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("aapl_a:0", "rev1")
	b := PointID("aapl_a:0", "rev1")
	if a != b {
		t.Errorf("same inputs produced different ids: %s vs %s", a, b)
	}
	if PointID("aapl_a:0", "rev2") == a {
		t.Error("different revisions produced the same id")
	}
	if PointID("aapl_a:1", "rev1") == a {
		t.Error("different chunks produced the same id")
	}
	if len(a) != 36 {
		t.Errorf("id %q is not a uuid", a)
	}
}

func TestDateToInt(t *testing.T) {
	tests := []struct {
		date string
		want int
	}{
		{"2020-07-30", 20200730},
		{"1999-01-01", 19990101},
		{"", 0},
		{"2020-7-30", 0},
		{"not-a-date", 0},
	}
	for _, tt := range tests {
		if got := DateToInt(tt.date); got != tt.want {
			t.Errorf("DateToInt(%q) = %d, want %d", tt.date, got, tt.want)
		}
	}
}

func TestQdrantFilter(t *testing.T) {
	if qdrantFilter(Filter{}) != nil {
		t.Error("empty filter should map to nil")
	}

	f := qdrantFilter(Filter{Companies: []string{"AAPL"}, DateFrom: 20200101, DateTo: 20201231})
	must, ok := f["must"].([]map[string]any)
	if !ok || len(must) != 2 {
		t.Fatalf("filter = %v, want two must conditions", f)
	}
	if must[0]["key"] != "company" || must[1]["key"] != "date_int" {
		t.Errorf("condition keys = %v, %v", must[0]["key"], must[1]["key"])
	}
	rng, ok := must[1]["range"].(map[string]any)
	if !ok || rng["gte"] != 20200101 || rng["lte"] != 20201231 {
		t.Errorf("range condition = %v", must[1])
	}
}
