package service

import (
	"context"
	"log"
	"time"

	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/telemetry"
)

// AnswerGenerator produces the model answer for a fully rendered prompt
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// QueryRecorder persists executed queries for the history endpoints
type QueryRecorder interface {
	RecordQuery(ctx context.Context, record domain.QueryRecord) error
}

// AnswerResult is the outcome of a single answered query
type AnswerResult struct {
	Query       string                    `json:"query"`
	Response    string                    `json:"response"`
	Entities    domain.Entities           `json:"entities"`
	Filters     domain.FilterSet          `json:"filters_used"`
	Applied     domain.FilterSet          `json:"filters_applied"`
	ResultCount int                       `json:"search_results_count"`
	Results     []domain.CorrelatedResult `json:"results,omitempty"`
	Source      domain.Source             `json:"source_info"`
	Duration    time.Duration             `json:"-"`
	Timestamp   time.Time                 `json:"timestamp"`
}

// AnswerRequest is one query of a batch with its own result budget
type AnswerRequest struct {
	Query string
	TopK  int
}

// BatchAnswer pairs one query of a batch with its outcome. Failures are
// isolated per query so one bad query does not abort the batch.
type BatchAnswer struct {
	Query  string        `json:"query"`
	Result *AnswerResult `json:"result,omitempty"`
	Err    error         `json:"-"`
}

// AnswerService runs the full query path: retrieval, context assembly,
// answer generation and the citation footer.
type AnswerService struct {
	correlator *Correlator
	assembler  *ResponseAssembler
	generator  AnswerGenerator
	recorder   QueryRecorder
	logger     *log.Logger
}

// NewAnswerService creates an AnswerService. generator and recorder may be
// nil: without a generator answers degrade to the assembled context, and
// without a recorder no history is kept.
func NewAnswerService(correlator *Correlator, generator AnswerGenerator, recorder QueryRecorder, logger *log.Logger) (*AnswerService, error) {
	if correlator == nil {
		return nil, domain.NewConfigurationError("correlator", "is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	return &AnswerService{
		correlator: correlator,
		assembler:  NewResponseAssembler(),
		generator:  generator,
		recorder:   recorder,
		logger:     logger,
	}, nil
}

// Answer runs one query end to end. topK <= 0 uses the correlator default.
// The citation footer names the top result; with no results the answer is
// built over the no-documents message and cites the unknown source.
func (s *AnswerService) Answer(ctx context.Context, query string, topK int) (*AnswerResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "AnswerService.Answer", telemetry.SpanAttributes{
		Operation: "answer",
	})
	defer span.End()

	start := time.Now()

	results, analysis, err := s.correlator.RetrieveTopK(ctx, query, topK)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	contextBlock := s.assembler.BuildContext(results)

	source := domain.UnknownSource()
	if len(results) > 0 {
		source = results[0].Source
	}

	response := contextBlock
	if s.generator != nil {
		prompt := s.assembler.BuildPrompt(contextBlock, query)
		generated, genErr := s.generator.Generate(ctx, prompt)
		if genErr != nil {
			s.logger.Printf("answer: generation failed for query %q, returning context only: %v", query, genErr)
		} else {
			response = generated
		}
	}
	response += s.assembler.CitationFooter(source)

	result := &AnswerResult{
		Query:       query,
		Response:    response,
		Entities:    analysis.Entities,
		Filters:     analysis.Filters,
		Applied:     analysis.AppliedFilters,
		ResultCount: len(results),
		Results:     results,
		Source:      source,
		Duration:    time.Since(start),
		Timestamp:   time.Now().UTC(),
	}

	s.record(ctx, result)

	return result, nil
}

// AnswerBatch answers queries sequentially in input order
func (s *AnswerService) AnswerBatch(ctx context.Context, requests []AnswerRequest) []BatchAnswer {
	answers := make([]BatchAnswer, 0, len(requests))
	for _, req := range requests {
		result, err := s.Answer(ctx, req.Query, req.TopK)
		if err != nil {
			s.logger.Printf("answer: batch query %q failed: %v", req.Query, err)
		}
		answers = append(answers, BatchAnswer{Query: req.Query, Result: result, Err: err})
	}

	return answers
}

func (s *AnswerService) record(ctx context.Context, result *AnswerResult) {
	if s.recorder == nil {
		return
	}

	sources := make([]domain.Source, 0, len(result.Results))
	for _, r := range result.Results {
		sources = append(sources, r.Source)
	}

	record := domain.QueryRecord{
		Query:       result.Query,
		Response:    result.Response,
		Entities:    result.Entities,
		Filters:     result.Filters,
		ResultCount: result.ResultCount,
		Sources:     sources,
		DurationMS:  result.Duration.Milliseconds(),
		CreatedAt:   result.Timestamp,
	}
	if err := s.recorder.RecordQuery(ctx, record); err != nil {
		s.logger.Printf("answer: failed to record query history: %v", err)
	}
}
