package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npsettle/portquery/internal/errors"
)

const sampleYAML = `
customer:
  description: Subscribers
  primary_key: customer_id
  columns:
    customer_id:
      type: BIGINT
      description: id
    phone_number:
      type: VARCHAR
      description: mobile number
      sensitive: true
settlement_history:
  description: Settlement events
  primary_key: settlement_id
  columns:
    settlement_id:
      type: BIGINT
      description: id
    customer_id:
      type: BIGINT
      description: owner
    settlement_amount:
      type: DECIMAL(18,2)
      description: amount
  foreign_keys:
    customer_id: customer.customer_id
`

func TestParse(t *testing.T) {
	desc, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.Len(t, desc, 2)

	assert.Equal(t, "customer_id", desc["customer"].PrimaryKey)
	assert.True(t, desc["customer"].Columns["phone_number"].Sensitive)
	assert.Equal(t, "customer.customer_id", desc["settlement_history"].ForeignKeys["customer_id"])
}

func TestParseJSON(t *testing.T) {
	data := `{
		"customer": {
			"description": "Subscribers",
			"primary_key": "customer_id",
			"columns": {
				"customer_id": {"type": "BIGINT", "description": "id"}
			}
		}
	}`

	desc, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"customer"}, desc.TableNames())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{
			name:    "empty document",
			input:   "",
			wantMsg: "empty",
		},
		{
			name: "duplicate table name",
			input: `
customer:
  description: a
  primary_key: id
  columns:
    id: {type: BIGINT, description: id}
customer:
  description: b
  primary_key: id
  columns:
    id: {type: BIGINT, description: id}
`,
			wantMsg: "duplicate table name: customer",
		},
		{
			name: "missing description",
			input: `
customer:
  primary_key: id
  columns:
    id: {type: BIGINT, description: id}
`,
			wantMsg: "missing required key 'description'",
		},
		{
			name: "missing columns",
			input: `
customer:
  description: a
  primary_key: id
`,
			wantMsg: "missing required key 'columns'",
		},
		{
			name: "primary key not a column",
			input: `
customer:
  description: a
  primary_key: missing
  columns:
    id: {type: BIGINT, description: id}
`,
			wantMsg: "primary key missing is not a declared column",
		},
		{
			name: "foreign key to unknown table",
			input: `
customer:
  description: a
  primary_key: id
  columns:
    id: {type: BIGINT, description: id}
  foreign_keys:
    id: ghost.id
`,
			wantMsg: "references unknown table ghost",
		},
		{
			name: "foreign key to unknown column",
			input: `
customer:
  description: a
  primary_key: id
  columns:
    id: {type: BIGINT, description: id}
other:
  description: b
  primary_key: oid
  columns:
    oid: {type: BIGINT, description: id}
  foreign_keys:
    oid: customer.ghost
`,
			wantMsg: "references unknown column customer.ghost",
		},
		{
			name: "malformed foreign key reference",
			input: `
customer:
  description: a
  primary_key: id
  columns:
    id: {type: BIGINT, description: id}
  foreign_keys:
    id: noseparator
`,
			wantMsg: "want table.column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeSchemaLoad))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	desc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Contains(t, desc, "settlement_history")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/schema.yaml")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeSchemaLoad))
}

func TestFingerprintStable(t *testing.T) {
	a, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	b, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	// Changing a column definition changes the fingerprint
	modified := a["customer"]
	modified.Columns = map[string]Column{
		"customer_id": {Type: "VARCHAR", Description: "id"},
	}
	c := Description{"customer": modified, "settlement_history": a["settlement_history"]}
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestDefaultDescription(t *testing.T) {
	desc := DefaultDescription()
	require.NoError(t, desc.Validate())

	assert.ElementsMatch(t,
		[]string{"customer", "settlement_history", "fee_detail", "deposit_ledger"},
		desc.TableNames())
	assert.True(t, desc["customer"].Columns["phone_number"].Sensitive)
}

func TestPromptText(t *testing.T) {
	desc := DefaultDescription()

	full := desc.PromptText(nil)
	assert.Contains(t, full, "Table: customer")
	assert.Contains(t, full, "Table: deposit_ledger")
	assert.Contains(t, full, "phone_number (VARCHAR)")
	assert.Contains(t, full, "[sensitive]")
	assert.Contains(t, full, "settlement_history.customer_id -> customer.customer_id")

	subset := desc.PromptText([]string{"customer"})
	assert.Contains(t, subset, "Table: customer")
	assert.NotContains(t, subset, "Table: settlement_history")
}
