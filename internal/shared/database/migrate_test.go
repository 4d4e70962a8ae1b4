package database

import "testing"

func TestPendingMigrationsOrderedAndFiltered(t *testing.T) {
	all, err := pendingMigrations(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) == 0 {
		t.Fatal("expected embedded migration files")
	}
	for i := 1; i < len(all); i++ {
		if all[i-1] >= all[i] {
			t.Errorf("migrations out of order: %s before %s", all[i-1], all[i])
		}
	}

	applied := make(map[string]bool)
	applied["001_init"] = true
	pending, err := pendingMigrations(applied)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != len(all)-1 {
		t.Errorf("applied migration still pending: %v", pending)
	}
	for _, f := range pending {
		if f == "001_init.sql" {
			t.Error("001_init.sql was already applied")
		}
	}
}
