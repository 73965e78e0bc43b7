package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/npsettle/portquery/internal/config"
)

func testContext() context.Context {
	cfg := &config.Config{}

	return context.WithValue(context.Background(), configContextKey, cfg)
}

func TestRunValidate(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantErr  bool
		contains string
	}{
		{
			name:     "accepted select",
			query:    "SELECT customer_id, operator_name FROM customer",
			wantErr:  false,
			contains: "Query accepted",
		},
		{
			name: "accepted join along foreign key",
			query: "SELECT c.customer_id, s.settlement_amount FROM customer c " +
				"JOIN settlement_history s ON s.customer_id = c.customer_id",
			wantErr:  false,
			contains: "Query accepted",
		},
		{
			name:     "rejected write statement",
			query:    "DELETE FROM customer",
			wantErr:  true,
			contains: "Query rejected",
		},
		{
			name:     "rejected unknown table",
			query:    "SELECT * FROM billing_run",
			wantErr:  true,
			contains: "billing_run",
		},
		{
			name:     "rejected unknown column",
			query:    "SELECT settlement_history.nonexistent_col FROM settlement_history",
			wantErr:  true,
			contains: "Offending fragment: settlement_history.nonexistent_col",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := captureStdout(t, func() error {
				return runValidate(testContext(), tt.query)
			})

			if (err != nil) != tt.wantErr {
				t.Errorf("runValidate() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !strings.Contains(output, tt.contains) {
				t.Errorf("output does not contain %q\nOutput: %s", tt.contains, output)
			}
		})
	}
}
