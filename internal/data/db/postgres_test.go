package db

import "testing"

func TestPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_USER", "rf")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_PORT", "")
	t.Setenv("POSTGRES_NAME", "")
	t.Setenv("POSTGRES_SSLMODE", "require")

	got := LoadPostgresConfig().DSN()
	want := "postgres://rf:pw@db.internal:5432/roomforge?sslmode=require"
	if got != want {
		t.Fatalf("DSN: want=%s got=%s", want, got)
	}
}
