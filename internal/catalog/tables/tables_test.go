package tables

import (
	"slices"
	"testing"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/rules"
	"github.com/JonMunkholm/campusetl/internal/validate"
)

func defaultRegistry(t *testing.T) *catalog.Registry {
	t.Helper()
	reg, err := catalog.NewRegistry(catalog.Options{
		Rules:      rules.Default(),
		Validators: validate.Default(),
	}, Defaults()...)
	if err != nil {
		t.Fatalf("NewRegistry(Defaults()) error = %v", err)
	}
	return reg
}

func TestDefaults_PipelineOrder(t *testing.T) {
	order, err := defaultRegistry(t).PipelineOrder()
	if err != nil {
		t.Fatalf("PipelineOrder() error = %v", err)
	}
	want := []string{"classes", "students", "enrollments", "receipts"}
	if !slices.Equal(order, want) {
		t.Errorf("PipelineOrder() = %v, want %v", order, want)
	}
}

func TestDefaults_ValidatorFieldsAreMapped(t *testing.T) {
	validators := validate.Default()

	for _, cfg := range defaultRegistry(t).All() {
		t.Run(cfg.TableName, func(t *testing.T) {
			fields, ok := validators.ExpectedFields(cfg.Validator)
			if !ok {
				t.Fatalf("validator %q not registered", cfg.Validator)
			}
			targets := make([]string, len(cfg.ColumnMappings))
			for i, m := range cfg.ColumnMappings {
				targets[i] = m.TargetName
			}
			for _, f := range fields {
				if !slices.Contains(targets, f) {
					t.Errorf("validator %q needs %q, not among targets %v", cfg.Validator, f, targets)
				}
			}
			for _, k := range cfg.UniqueKey {
				if !slices.Contains(targets, k) {
					t.Errorf("unique key %q is not a target column", k)
				}
			}
		})
	}
}

func TestDefaults_ReturnsFreshCopies(t *testing.T) {
	a := Defaults()
	a[0].ColumnMappings[0].CleaningRules[0] = "mutated"

	b := Defaults()
	if b[0].ColumnMappings[0].CleaningRules[0] == "mutated" {
		t.Error("Defaults() shares rule chains between calls")
	}
}
