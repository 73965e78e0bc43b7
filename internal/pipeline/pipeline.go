// Package pipeline wires the full question-to-result flow: classify the
// question, synthesize a candidate query, validate it against the schema,
// optionally execute it, and format the results. Each request is
// synchronous and independently identified; the only shared state is the
// schema registry snapshot.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/npsettle/portquery/internal/cache"
	"github.com/npsettle/portquery/internal/errors"
	"github.com/npsettle/portquery/internal/formatter"
	"github.com/npsettle/portquery/internal/intent"
	"github.com/npsettle/portquery/internal/logging"
	"github.com/npsettle/portquery/internal/schema"
	"github.com/npsettle/portquery/internal/storage"
	"github.com/npsettle/portquery/internal/synth"
	"github.com/npsettle/portquery/internal/validate"
)

// Executor runs accepted queries. Satisfied by storage.Executor; kept as an
// interface so the pipeline can run without any database configured.
type Executor interface {
	Execute(ctx context.Context, query string) (*storage.Result, error)
}

// Response is the structured outcome of one question
type Response struct {
	RequestID string
	Intent    intent.Intent

	// Clarification is set instead of a query when the question could not
	// be classified
	Clarification string

	// Accepted query and its description
	SQL         string
	Explanation string
	Confidence  float64
	FromCache   bool

	// Rejection after the feedback retry was also rejected
	Rejected     bool
	RejectReason string
	Offending    string

	// Execution outcome, when a database is configured. Execution failures
	// are reported here, never as a pipeline error.
	Results      *formatter.Page
	RowCount     int
	Duration     time.Duration
	Truncated    bool
	ExecutionErr string
	Executed     bool
}

// Pipeline orchestrates one request at a time
type Pipeline struct {
	registry    *schema.Registry
	synthesizer *synth.Synthesizer
	validator   *validate.Validator
	formatter   *formatter.Formatter
	executor    Executor          // nil disables execution
	queries     *cache.QueryCache // nil disables caching
	page        int
	logger      *logging.Logger
}

// Options collects the pipeline collaborators
type Options struct {
	Registry    *schema.Registry
	Synthesizer *synth.Synthesizer
	Validator   *validate.Validator
	Formatter   *formatter.Formatter
	Executor    Executor
	Queries     *cache.QueryCache
	// Page selects which result page to format; zero means the first.
	Page   int
	Logger *logging.Logger
}

// New assembles a pipeline
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		if logging.GetLogger() == nil {
			logging.SetupFallbackLogger()
		}

		logger = logging.GetLogger()
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}

	return &Pipeline{
		registry:    opts.Registry,
		synthesizer: opts.Synthesizer,
		validator:   opts.Validator,
		formatter:   opts.Formatter,
		executor:    opts.Executor,
		queries:     opts.Queries,
		page:        page,
		logger:      logger,
	}
}

const clarificationMessage = "I could not understand the question. " +
	"Try naming a phone number (010-XXXX-XXXX), an operator, a month (2024-01), " +
	"or asking for monthly totals or trends."

// Run processes one question end to end. Earlier questions from the same
// session may be passed as history; they are forwarded to the synthesizer
// so follow-up questions generate in context.
func (p *Pipeline) Run(ctx context.Context, question string, history ...string) (*Response, error) {
	resp := &Response{RequestID: uuid.NewString()}
	logger := p.logger.WithField("request_id", resp.RequestID)

	resp.Intent = intent.Classify(question)
	logger.WithField("kind", string(resp.Intent.Kind)).Debug("classified question")

	// An unclassifiable question gets a clarification request, never a
	// synthesized guess
	if resp.Intent.Kind == intent.KindUnknown {
		resp.Clarification = clarificationMessage

		return resp, nil
	}

	candidate, fromCache, err := p.obtainCandidate(ctx, resp.Intent, history, logger)
	if err != nil {
		return nil, err
	}

	resp.FromCache = fromCache

	result := p.validator.Check(candidate.SQL)

	if !result.Accepted && !fromCache {
		// exactly one re-prompt with the rejection as feedback
		logger.WithField("reason", result.Reason).Info("candidate rejected, retrying with feedback")

		candidate, err = p.synthesizer.Synthesize(ctx, resp.Intent, result.Feedback(), history...)
		if err != nil {
			return nil, err
		}

		result = p.validator.Check(candidate.SQL)
	} else if !result.Accepted && fromCache {
		// a cached query can go stale when the schema file changes between
		// fingerprint collisions; regenerate once from scratch
		candidate, err = p.synthesizer.Synthesize(ctx, resp.Intent, "", history...)
		if err != nil {
			return nil, err
		}

		result = p.validator.Check(candidate.SQL)
		resp.FromCache = false
	}

	if !result.Accepted {
		resp.Rejected = true
		resp.RejectReason = result.Reason
		resp.Offending = result.Offending

		logger.WithField("reason", result.Reason).Warn("query rejected after feedback retry")

		return resp, nil
	}

	resp.SQL = result.Query
	resp.Explanation = candidate.Explanation
	resp.Confidence = candidate.Confidence

	if p.queries != nil && !resp.FromCache {
		if err := p.queries.Put(ctx, resp.Intent.Question, p.registry.Fingerprint(), candidate); err != nil {
			logger.Warnf("failed to cache query: %v", err)
		}
	}

	p.execute(ctx, resp, logger)

	return resp, nil
}

// obtainCandidate checks the cache before synthesizing
func (p *Pipeline) obtainCandidate(ctx context.Context, in intent.Intent, history []string, logger *logging.Logger) (*synth.CandidateQuery, bool, error) {
	if p.queries != nil {
		candidate, err := p.queries.Get(ctx, in.Question, p.registry.Fingerprint())
		if err == nil {
			logger.Debug("using cached query")

			return candidate, true, nil
		}
	}

	candidate, err := p.synthesizer.Synthesize(ctx, in, "", history...)
	if err != nil {
		return nil, false, err
	}

	return candidate, false, nil
}

// execute runs the accepted query when an executor is configured.
// Execution failures are reported on the response rather than failing the
// request: the user still gets the query and its explanation.
func (p *Pipeline) execute(ctx context.Context, resp *Response, logger *logging.Logger) {
	if p.executor == nil {
		return
	}

	result, err := p.executor.Execute(ctx, resp.SQL)
	if err != nil {
		resp.ExecutionErr = err.Error()

		if errors.IsType(err, errors.ErrTypeTimeout) {
			logger.Warn("query execution timed out")
		} else {
			logger.Warnf("query execution failed: %v", err)
		}

		return
	}

	resp.Executed = true
	resp.RowCount = result.RowCount
	resp.Duration = result.Duration
	resp.Truncated = result.Truncated

	page := p.formatter.Paginate(result.Columns, result.Rows, p.page, result.Truncated)
	resp.Results = &page

	logger.WithFields(map[string]interface{}{
		"rows":        result.RowCount,
		"duration_ms": result.Duration.Milliseconds(),
	}).Info("query executed")
}
