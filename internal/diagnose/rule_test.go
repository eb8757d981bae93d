package diagnose

import "testing"

func TestCatalogSortedIsStable(t *testing.T) {
	var catalog Catalog
	catalog.Add(RewriteRule{Description: "first at 20", Priority: 20})
	catalog.Add(RewriteRule{Description: "only at 4", Priority: 4})
	catalog.Add(RewriteRule{Description: "second at 20", Priority: 20})
	catalog.Add(RewriteRule{Description: "third at 20", Priority: 20})

	sorted := catalog.Sorted()
	want := []string{"only at 4", "first at 20", "second at 20", "third at 20"}
	for i, desc := range want {
		if sorted[i].Description != desc {
			t.Fatalf("sorted[%d] = %q, want %q", i, sorted[i].Description, desc)
		}
	}
}

func TestCatalogSortedLeavesInsertionOrder(t *testing.T) {
	var catalog Catalog
	catalog.Add(RewriteRule{Description: "late priority", Priority: 80})
	catalog.Add(RewriteRule{Description: "early priority", Priority: 1})

	_ = catalog.Sorted()

	rules := catalog.Rules()
	if rules[0].Description != "late priority" {
		t.Fatalf("Sorted() mutated the catalog: %#v", rules)
	}
}

func TestCatalogNeverDeduplicates(t *testing.T) {
	var catalog Catalog
	rule := RewriteRule{Kind: RuleKindBody, Action: ActionFindReplace, Pattern: "x", Priority: 50}
	catalog.Add(rule)
	catalog.Add(rule)

	if catalog.Len() != 2 {
		t.Fatalf("expected duplicate rules to be kept, got %d", catalog.Len())
	}
}
