package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunSchemaListsDefaultTables(t *testing.T) {
	output, err := captureStdout(t, func() error {
		return runSchema(testContext(), false)
	})
	if err != nil {
		t.Fatalf("runSchema() error = %v", err)
	}

	for _, expected := range []string{
		"built-in settlement schema",
		"Fingerprint:",
		"customer",
		"settlement_history",
		"fee_detail",
		"deposit_ledger",
		"phone_number",
		"sensitive",
		"primary key",
		"-> customer.customer_id",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("output does not contain %q\nOutput: %s", expected, output)
		}
	}
}

func TestRunSchemaFingerprintOnly(t *testing.T) {
	output, err := captureStdout(t, func() error {
		return runSchema(testContext(), true)
	})
	if err != nil {
		t.Fatalf("runSchema() error = %v", err)
	}

	fingerprint := strings.TrimSpace(output)
	if len(fingerprint) != 64 {
		t.Errorf("fingerprint = %q, want a 64-character hash", fingerprint)
	}
}

func TestRunSchemaCheck(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	validYAML := `
customer:
  description: Subscribers
  primary_key: customer_id
  columns:
    customer_id:
      type: BIGINT
      description: Subscriber identifier
`

	if err := os.WriteFile(valid, []byte(validYAML), 0600); err != nil {
		t.Fatalf("failed to write schema file: %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	invalidYAML := `
customer:
  description: Subscribers
  primary_key: missing_col
  columns:
    customer_id:
      type: BIGINT
      description: Subscriber identifier
`

	if err := os.WriteFile(invalid, []byte(invalidYAML), 0600); err != nil {
		t.Fatalf("failed to write schema file: %v", err)
	}

	t.Run("valid schema", func(t *testing.T) {
		output, err := captureStdout(t, func() error {
			return runSchemaCheck(valid)
		})
		if err != nil {
			t.Fatalf("runSchemaCheck() error = %v", err)
		}

		if !strings.Contains(output, "is valid") {
			t.Errorf("output does not confirm validity:\n%s", output)
		}
	})

	t.Run("invalid schema", func(t *testing.T) {
		if err := runSchemaCheck(invalid); err == nil {
			t.Fatal("runSchemaCheck() expected an error for an invalid schema")
		}
	})
}
