package synth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/npsettle/portquery/internal/errors"
	"github.com/npsettle/portquery/internal/intent"
	"github.com/npsettle/portquery/internal/llm"
	"github.com/npsettle/portquery/internal/schema"
)

type stubService struct {
	resp       *llm.QueryResponse
	err        error
	lastPrompt string
}

func (s *stubService) GenerateQuery(_ context.Context, req llm.Request) (*llm.QueryResponse, error) {
	s.lastPrompt = req.Prompt

	return s.resp, s.err
}

func (s *stubService) Configure(llm.Config) error { return nil }

func newTestSynthesizer(t *testing.T, service llm.Service) *Synthesizer {
	t.Helper()

	registry, err := schema.NewRegistry(schema.DefaultDescription())
	require.NoError(t, err)

	return New(registry, service, nil)
}

func TestSynthesize(t *testing.T) {
	service := &stubService{resp: &llm.QueryResponse{
		SQL:         "SELECT settlement_amount FROM settlement_history",
		Explanation: "Lists settlement amounts",
		Confidence:  0.9,
	}}
	s := newTestSynthesizer(t, service)

	candidate, err := s.Synthesize(context.Background(),
		intent.Classify("월별 정산 추이"), "")
	require.NoError(t, err)

	assert.Equal(t, "SELECT settlement_amount FROM settlement_history", candidate.SQL)
	assert.Equal(t, "Lists settlement amounts", candidate.Explanation)
	assert.InDelta(t, 0.9, candidate.Confidence, 0.001)
}

func TestSynthesizeStripsFences(t *testing.T) {
	service := &stubService{resp: &llm.QueryResponse{
		SQL: "```sql\nSELECT 1 FROM customer\n```",
	}}
	s := newTestSynthesizer(t, service)

	candidate, err := s.Synthesize(context.Background(),
		intent.Classify("고객 조회 2024년 1월"), "")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 FROM customer", candidate.SQL)
}

func TestSynthesizeFillsMissingExplanation(t *testing.T) {
	service := &stubService{resp: &llm.QueryResponse{
		SQL: "SELECT year, month, SUM(settlement_amount) FROM settlement_history " +
			"WHERE port_type = 'PORT_IN' GROUP BY year, month",
	}}
	s := newTestSynthesizer(t, service)

	candidate, err := s.Synthesize(context.Background(),
		intent.Classify("포트인 월별 추이"), "")
	require.NoError(t, err)

	assert.Contains(t, candidate.Explanation, "Aggregates")
	assert.Contains(t, candidate.Explanation, "grouped by")
}

func TestSynthesizeRejectsUnknownIntent(t *testing.T) {
	s := newTestSynthesizer(t, &stubService{})

	_, err := s.Synthesize(context.Background(), intent.Classify("안녕하세요"), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeIntent))
}

func TestSynthesizeServiceError(t *testing.T) {
	service := &stubService{err: errors.New("provider down")}
	s := newTestSynthesizer(t, service)

	_, err := s.Synthesize(context.Background(), intent.Classify("월별 추이"), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSynthesis))
}

func TestSynthesizeTimeout(t *testing.T) {
	service := &stubService{err: context.DeadlineExceeded}
	s := newTestSynthesizer(t, service)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()

	time.Sleep(time.Millisecond)

	_, err := s.Synthesize(ctx, intent.Classify("월별 추이"), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeTimeout))
}

func TestSynthesizeWrappedDeadline(t *testing.T) {
	// the backend applies its own timeout, so the deadline arrives wrapped
	// in the error while the caller's context is still live
	service := &stubService{err: fmt.Errorf("provider call: %w", context.DeadlineExceeded)}
	s := newTestSynthesizer(t, service)

	_, err := s.Synthesize(context.Background(), intent.Classify("월별 추이"), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeTimeout))
}

func TestSynthesizeEmptySQL(t *testing.T) {
	service := &stubService{resp: &llm.QueryResponse{SQL: "   "}}
	s := newTestSynthesizer(t, service)

	_, err := s.Synthesize(context.Background(), intent.Classify("월별 추이"), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSynthesis))
}

func TestBuildPrompt(t *testing.T) {
	s := newTestSynthesizer(t, &stubService{})

	in := intent.Classify("010-1234-5678 수수료 내역")
	prompt := s.BuildPrompt(in, "")

	assert.Contains(t, prompt, "Table: customer")
	assert.Contains(t, prompt, "Table: settlement_history")
	assert.Contains(t, prompt, "Table: fee_detail")
	assert.NotContains(t, prompt, "Table: deposit_ledger")
	assert.Contains(t, prompt, "phone numbers: 010-1234-5678")
	assert.Contains(t, prompt, "User Question:")
}

func TestBuildPromptWithFeedback(t *testing.T) {
	s := newTestSynthesizer(t, &stubService{})

	in := intent.Classify("월별 정산 추이")
	prompt := s.BuildPrompt(in, "unknown column x on table settlement_history")

	assert.Contains(t, prompt, "rejected by the query validator")
	assert.Contains(t, prompt, "unknown column x on table settlement_history")
	assert.Contains(t, prompt, "corrected query")
}

func TestBuildPromptWithHistory(t *testing.T) {
	s := newTestSynthesizer(t, &stubService{})

	in := intent.Classify("월별 정산 추이")
	prompt := s.BuildPrompt(in, "", "SKT 고객 수", "2024년 1월 정산 총액")

	assert.Contains(t, prompt, "Earlier questions in this session")
	assert.Contains(t, prompt, "- SKT 고객 수")
	assert.Contains(t, prompt, "- 2024년 1월 정산 총액")
}

func TestStripMarkdownSQL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"SELECT 1", "SELECT 1"},
		{"```sql\nSELECT 1\n```", "SELECT 1"},
		{"```\nSELECT 1\n```", "SELECT 1"},
		{"  ```SQL\nSELECT 1\n```  ", "SELECT 1"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StripMarkdownSQL(tt.input), tt.input)
	}
}
