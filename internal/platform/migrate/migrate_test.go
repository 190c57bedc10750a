package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/migrations"
)

func TestDatabaseURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/db?sslmode=disable", DatabaseURL("postgres://u:p@localhost:5432/db?sslmode=disable"))
	require.Equal(t, "pgx5://localhost/db", DatabaseURL("postgresql://localhost/db"))
	require.Equal(t, "pgx5://already", DatabaseURL("pgx5://already"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	require.Equal(t, ups, downs)
}

func TestLedgerSchemaGuardsInvariants(t *testing.T) {
	body, err := fs.ReadFile(migrations.FS, "000001_stock_ledger.up.sql")
	require.NoError(t, err)
	schema := string(body)

	require.Contains(t, schema, "CHECK (on_hand_quantity >= 0)")
	require.Contains(t, schema, "quantity_remaining <= quantity_received")
	require.Contains(t, schema, "CHECK (quantity_after = quantity_before + quantity)")
	require.Contains(t, schema, "BEFORE UPDATE OR DELETE ON stock_movements")
	require.Contains(t, schema, "WHERE acknowledged_at IS NULL")
}
