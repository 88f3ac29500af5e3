package migrations

import (
	"sort"
	"testing"
)

func TestAllMigrationIDsAreOrderedAndUnique(t *testing.T) {
	t.Parallel()

	all := All()
	if len(all) == 0 {
		t.Fatal("expected migrations")
	}

	seen := make(map[string]struct{}, len(all))
	ids := make([]string, 0, len(all))
	for _, m := range all {
		if m.Migrate == nil || m.Rollback == nil {
			t.Fatalf("migration %s must define Migrate and Rollback", m.ID)
		}
		if _, ok := seen[m.ID]; ok {
			t.Fatalf("duplicate migration id %s", m.ID)
		}
		seen[m.ID] = struct{}{}
		ids = append(ids, m.ID)
	}

	if !sort.StringsAreSorted(ids) {
		t.Fatalf("migration ids must be applied in order: %v", ids)
	}
}
