package cmd

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/npsettle/portquery/internal/config"
	"github.com/npsettle/portquery/internal/formatter"
	"github.com/npsettle/portquery/internal/intent"
	"github.com/npsettle/portquery/internal/pipeline"
	"github.com/npsettle/portquery/internal/schema"
)

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}

	os.Stdout = w

	runErr := fn()

	w.Close()

	os.Stdout = oldStdout

	var buf bytes.Buffer

	_, _ = buf.ReadFrom(r)

	return buf.String(), runErr
}

func testFormatter(t *testing.T) *formatter.Formatter {
	t.Helper()

	registry, err := schema.Load("")
	if err != nil {
		t.Fatalf("failed to load default schema: %v", err)
	}

	return formatter.New(registry, config.FormatterConfig{PageSize: 20, MaskPII: true})
}

func TestPrintResponseClarification(t *testing.T) {
	resp := &pipeline.Response{
		Clarification: "I could not understand the question.",
	}

	output, err := captureStdout(t, func() error {
		return printResponse(testFormatter(t), resp, askOptions{})
	})
	if err != nil {
		t.Fatalf("printResponse() error = %v", err)
	}

	if !strings.Contains(output, "could not understand") {
		t.Errorf("output missing clarification message:\n%s", output)
	}
}

func TestPrintResponseRejected(t *testing.T) {
	resp := &pipeline.Response{
		Rejected:     true,
		RejectReason: "unknown table billing_run",
		Offending:    "billing_run",
	}

	output, err := captureStdout(t, func() error {
		return printResponse(testFormatter(t), resp, askOptions{})
	})
	if err == nil {
		t.Fatal("printResponse() expected an error for a rejected query")
	}

	if !strings.Contains(output, "Query rejected: unknown table billing_run") {
		t.Errorf("output missing rejection reason:\n%s", output)
	}

	if !strings.Contains(output, "Offending fragment: billing_run") {
		t.Errorf("output missing offending fragment:\n%s", output)
	}
}

func TestPrintResponseSQLOnly(t *testing.T) {
	resp := &pipeline.Response{
		Intent:      intent.Intent{Kind: intent.KindPointLookup},
		SQL:         "SELECT * FROM customer",
		Explanation: "Lists all customers",
		Confidence:  0.9,
	}

	output, err := captureStdout(t, func() error {
		return printResponse(testFormatter(t), resp, askOptions{SQLOnly: true})
	})
	if err != nil {
		t.Fatalf("printResponse() error = %v", err)
	}

	if strings.TrimSpace(output) != "SELECT * FROM customer" {
		t.Errorf("sql-only output = %q, want just the SQL", output)
	}
}

func TestPrintResponseWithResults(t *testing.T) {
	f := testFormatter(t)

	page := f.Paginate(
		[]string{"customer_id", "phone_number"},
		[][]any{{int64(1), "010-1234-5678"}},
		1,
		false,
	)

	resp := &pipeline.Response{
		Intent:      intent.Intent{Kind: intent.KindPointLookup},
		SQL:         "SELECT customer_id, phone_number FROM customer",
		Explanation: "Lists customers with their phone numbers",
		Confidence:  0.8,
		Executed:    true,
		RowCount:    1,
		Duration:    12 * time.Millisecond,
		Results:     &page,
	}

	output, err := captureStdout(t, func() error {
		return printResponse(f, resp, askOptions{})
	})
	if err != nil {
		t.Fatalf("printResponse() error = %v", err)
	}

	for _, expected := range []string{
		"Question type: point_lookup",
		"SELECT customer_id, phone_number FROM customer",
		"Explanation: Lists customers with their phone numbers",
		"Confidence: 0.80",
		"1 rows in 12ms",
		"010****5678",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("output does not contain %q\nOutput: %s", expected, output)
		}
	}

	if strings.Contains(output, "010-1234-5678") {
		t.Errorf("output leaks the unmasked phone number:\n%s", output)
	}
}

func TestPrintResponseExecutionError(t *testing.T) {
	resp := &pipeline.Response{
		Intent:       intent.Intent{Kind: intent.KindAggregateTrend},
		SQL:          "SELECT SUM(settlement_amount) FROM settlement_history",
		Confidence:   0.7,
		ExecutionErr: "query execution timed out",
	}

	output, err := captureStdout(t, func() error {
		return printResponse(testFormatter(t), resp, askOptions{})
	})
	if err != nil {
		t.Fatalf("printResponse() error = %v", err)
	}

	if !strings.Contains(output, "Execution failed: query execution timed out") {
		t.Errorf("output missing execution error:\n%s", output)
	}
}

func TestPrintResponseFromCache(t *testing.T) {
	resp := &pipeline.Response{
		Intent:     intent.Intent{Kind: intent.KindPointLookup},
		SQL:        "SELECT * FROM customer",
		Confidence: 0.9,
		FromCache:  true,
	}

	output, err := captureStdout(t, func() error {
		return printResponse(testFormatter(t), resp, askOptions{})
	})
	if err != nil {
		t.Fatalf("printResponse() error = %v", err)
	}

	if !strings.Contains(output, "(cached)") {
		t.Errorf("output missing cache marker:\n%s", output)
	}
}
