package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	reg, err := NewRegistry(DefaultDescription())
	require.NoError(t, err)

	return reg
}

func TestRegistryLookups(t *testing.T) {
	reg := newTestRegistry(t)

	assert.True(t, reg.TableExists("customer"))
	assert.True(t, reg.TableExists("CUSTOMER"))
	assert.False(t, reg.TableExists("ghost"))

	assert.True(t, reg.ColumnExists("settlement_history", "settlement_amount"))
	assert.True(t, reg.ColumnExists("Settlement_History", "Settlement_Amount"))
	assert.False(t, reg.ColumnExists("settlement_history", "nonexistent_col"))
	assert.False(t, reg.ColumnExists("ghost", "settlement_amount"))

	col, ok := reg.Column("customer", "phone_number")
	require.True(t, ok)
	assert.True(t, col.Sensitive)

	canonical, ok := reg.CanonicalTable("FEE_DETAIL")
	require.True(t, ok)
	assert.Equal(t, "fee_detail", canonical)
}

func TestRegistrySensitiveColumns(t *testing.T) {
	reg := newTestRegistry(t)

	assert.Equal(t, []string{"phone_number"}, reg.SensitiveColumns("customer"))
	assert.Empty(t, reg.SensitiveColumns("fee_detail"))
	assert.Nil(t, reg.SensitiveColumns("ghost"))
}

func TestRegistryForeignKeyBetween(t *testing.T) {
	reg := newTestRegistry(t)

	// declared direction
	assert.True(t, reg.ForeignKeyBetween(
		"settlement_history", "customer_id", "customer", "customer_id"))
	// reverse direction
	assert.True(t, reg.ForeignKeyBetween(
		"customer", "customer_id", "settlement_history", "customer_id"))
	// no declared key
	assert.False(t, reg.ForeignKeyBetween(
		"fee_detail", "fee_id", "customer", "customer_id"))
}

func TestRegistryRelatedTables(t *testing.T) {
	reg := newTestRegistry(t)

	assert.Equal(t, []string{"deposit_ledger", "settlement_history"},
		reg.RelatedTables("customer"))
	assert.Equal(t, []string{"settlement_history"}, reg.RelatedTables("fee_detail"))
}

func TestRegistryForeignKeyPath(t *testing.T) {
	reg := newTestRegistry(t)

	t.Run("single hop", func(t *testing.T) {
		path, ok := reg.ForeignKeyPath("settlement_history", "customer")
		require.True(t, ok)
		require.Len(t, path, 1)
		assert.Equal(t, "customer", path[0].ToTable)
	})

	t.Run("two hops through settlement_history", func(t *testing.T) {
		path, ok := reg.ForeignKeyPath("fee_detail", "customer")
		require.True(t, ok)
		require.Len(t, path, 2)
		assert.Equal(t, "settlement_history", path[0].ToTable)
		assert.Equal(t, "customer", path[1].ToTable)
	})

	t.Run("reverse direction", func(t *testing.T) {
		path, ok := reg.ForeignKeyPath("customer", "fee_detail")
		require.True(t, ok)
		require.Len(t, path, 2)
	})

	t.Run("same table", func(t *testing.T) {
		path, ok := reg.ForeignKeyPath("customer", "customer")
		require.True(t, ok)
		assert.Empty(t, path)
	})

	t.Run("unknown table", func(t *testing.T) {
		_, ok := reg.ForeignKeyPath("customer", "ghost")
		assert.False(t, ok)
	})
}

func TestRegistryReloadSwapsSnapshot(t *testing.T) {
	reg := newTestRegistry(t)

	before := reg.Fingerprint()
	assert.False(t, reg.TableExists("billing_run"))

	next := DefaultDescription()
	next["billing_run"] = Table{
		Description: "Monthly billing batch runs",
		PrimaryKey:  "run_id",
		Columns: map[string]Column{
			"run_id": {Type: "BIGINT", Description: "Run identifier"},
		},
	}

	require.NoError(t, reg.Reload(next))

	assert.True(t, reg.TableExists("billing_run"))
	assert.NotEqual(t, before, reg.Fingerprint())
}

func TestRegistryReloadRejectsInvalid(t *testing.T) {
	reg := newTestRegistry(t)
	before := reg.Fingerprint()

	err := reg.Reload(Description{
		"broken": {Description: "no columns", PrimaryKey: "id"},
	})
	require.Error(t, err)

	// previous snapshot stays active
	assert.Equal(t, before, reg.Fingerprint())
	assert.True(t, reg.TableExists("customer"))
}
