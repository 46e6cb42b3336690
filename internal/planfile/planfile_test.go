package planfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
)

const sample = `name: picnic
query: plan a picnic for four
intent: planning
search_steps:
  - q: "paper plates"
  - q: "sparkling water"
    filters:
      brand: Perrier
      maxPrice: "30"
`

func TestPlanFile_Validate_TableDriven(t *testing.T) {
	tests := []struct {
		name    string
		pf      PlanFile
		wantErr bool
	}{
		{"valid", PlanFile{Intent: "shopping", Steps: []FileEntry{{Q: "milk"}}}, false},
		{"no steps is valid", PlanFile{Intent: "recipe"}, false},
		{"intent is case-insensitive", PlanFile{Intent: " Planning "}, false},
		{"unknown intent", PlanFile{Intent: "browsing"}, true},
		{"blank step", PlanFile{Intent: "shopping", Steps: []FileEntry{{Q: "milk"}, {Q: "  "}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pf.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecode_ToPlan(t *testing.T) {
	pf, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	plan := pf.ToPlan()
	if plan.Intent != shopscale.IntentPlanning {
		t.Errorf("intent = %v", plan.Intent)
	}
	if len(plan.Steps) != 2 || plan.Steps[0].SearchText != "paper plates" {
		t.Fatalf("steps = %+v", plan.Steps)
	}
	if v, _ := plan.Steps[1].Filter(shopscale.FilterBrand); v != "Perrier" {
		t.Errorf("brand filter = %q", v)
	}
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	if _, err := Decode(strings.NewReader("intent: shopping\ntasks: []\n")); !shopscale.IsCode(err, shopscale.ErrCodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSave_LoadAndValidate_RoundTrip(t *testing.T) {
	plan := &shopscale.Plan{Intent: shopscale.IntentRecipe, Steps: []shopscale.SearchDirective{
		shopscale.NewSearchDirective("basmati rice", nil),
		shopscale.NewSearchDirective("garam masala", map[string]string{"brand": "MDH"}),
	}}
	path := filepath.Join(t.TempDir(), "nested", "biryani.yaml")
	if err := Save(path, FromPlan("make biryani", plan)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if loaded.Intent != plan.Intent || len(loaded.Steps) != 2 {
		t.Fatalf("loaded = %+v", loaded)
	}
	if loaded.Steps[1].Filters["brand"] != "MDH" {
		t.Errorf("filters lost: %+v", loaded.Steps[1])
	}
}

func TestLoadAndValidate_Errors(t *testing.T) {
	if _, err := LoadAndValidate(filepath.Join(t.TempDir(), "missing.yaml")); !shopscale.IsCode(err, shopscale.ErrCodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("intent: nonsense\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAndValidate(path); !shopscale.IsCode(err, shopscale.ErrCodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestEncode_UsesPlanKeys(t *testing.T) {
	var buf bytes.Buffer
	pf := FromPlan("", &shopscale.Plan{Intent: shopscale.IntentShopping, Steps: []shopscale.SearchDirective{{SearchText: "eggs"}}})
	if err := Encode(&buf, pf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"intent: shopping", "search_steps:", "q: eggs"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "query:") {
		t.Errorf("empty query should be omitted:\n%s", out)
	}
}

func TestGetLoader(t *testing.T) {
	if _, ok := GetLoader("yaml"); !ok {
		t.Error("yaml loader not registered")
	}
	if _, ok := GetLoader("toml"); ok {
		t.Error("unexpected toml loader")
	}
}
