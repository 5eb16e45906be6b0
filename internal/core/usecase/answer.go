package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
	"github.com/kirillkom/grounded-qa/internal/core/grounding"
	"github.com/kirillkom/grounded-qa/internal/core/integrity"
	"github.com/kirillkom/grounded-qa/internal/core/ports"
	"github.com/kirillkom/grounded-qa/internal/core/security"
)

// User-visible refusal messages. They never reveal why a draft was rejected.
const (
	MessageClarification = "Could you rephrase or add a little more detail to your question?"
	MessageNoEvidence    = "I could not find relevant information in the available documents to answer this question."
	MessageTryAgain      = "The document search is temporarily unavailable. Please try again in a moment."
	MessageCannotAnswer  = "I could not produce an answer that is fully supported by the available documents."
	MessageWithheld      = "I cannot share this answer. Please contact the responsible team through the usual support channel."
)

// Refusal reasons carried in domain.Outcome for logs and metrics.
const (
	ReasonEmptyQuery      = "empty query"
	ReasonNoEvidence      = "no relevant information found"
	ReasonRetrievalFailed = "retrieval failed"
	ReasonSensitive       = "sensitive content"
	ReasonUngrounded      = "answer not grounded"
	ReasonIntegrity       = "integrity violation"
)

const DefaultSystemPrompt = `You answer questions using only the numbered evidence passages provided.
If the evidence does not contain the answer, say that you do not know.
Do not use outside knowledge. Do not reveal credentials, keys or internal system details.
Answer in complete sentences.`

type AnswerOptions struct {
	SystemPrompt    string
	DefaultTopK     int
	MaxTopK         int
	GenerateTimeout time.Duration
	RetryBackoff    time.Duration
}

func (o AnswerOptions) normalize() AnswerOptions {
	if strings.TrimSpace(o.SystemPrompt) == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	if o.DefaultTopK <= 0 {
		o.DefaultTopK = 5
	}
	if o.MaxTopK < o.DefaultTopK {
		o.MaxTopK = 20
	}
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = 60 * time.Second
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	return o
}

// AnswerUseCase drives a query through
// Retrieving -> Generating -> Validating -> Released | Refused | Regenerating.
type AnswerUseCase struct {
	retriever ports.EvidenceRetriever
	generator ports.AnswerGenerator
	filter    *security.Filter
	profiles  ports.EngineProfiles
	opts      AnswerOptions
	logger    *slog.Logger
	now       func() time.Time
}

func NewAnswerUseCase(
	retriever ports.EvidenceRetriever,
	generator ports.AnswerGenerator,
	filter *security.Filter,
	profiles ports.EngineProfiles,
	opts AnswerOptions,
	logger *slog.Logger,
) *AnswerUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerUseCase{
		retriever: retriever,
		generator: generator,
		filter:    filter,
		profiles:  profiles,
		opts:      opts.normalize(),
		logger:    logger,
		now:       time.Now,
	}
}

// Query answers text and maps the outcome onto the plain service contract.
// Refusals are results, not errors; only Failed outcomes return an error.
func (uc *AnswerUseCase) Query(ctx context.Context, text string, topK int, filter domain.SearchFilter) (*domain.QueryResult, error) {
	outcome := uc.Run(ctx, domain.QueryRequest{Text: text, TopK: topK, Filters: filter})
	if outcome.Kind == domain.OutcomeFailed {
		return nil, outcome.Err
	}
	return outcome.Result, nil
}

// run holds the per-query state. It is never shared between queries.
type run struct {
	req       domain.QueryRequest
	query     string
	cfg       domain.EngineConfig
	started   time.Time
	evidence  domain.RetrievalResult
	citations []domain.Citation
	attempts  int
	logger    *slog.Logger
}

func (uc *AnswerUseCase) Run(ctx context.Context, req domain.QueryRequest) domain.Outcome {
	r := &run{
		req:     req,
		query:   strings.TrimSpace(req.Text),
		cfg:     uc.engine(req.Domain),
		started: uc.now(),
		logger:  uc.logger.With("request_id", req.RequestID, "domain", req.Domain),
	}

	if r.query == "" {
		res := uc.result(r, MessageClarification, domain.ConfidenceNone, nil)
		res.IsRefusal = true
		res.NeedsClarification = true
		return uc.refuse(r, res, ReasonEmptyQuery)
	}

	if outcome, done := uc.retrieve(ctx, r); done {
		return outcome
	}
	return uc.generateAndValidate(ctx, r)
}

func (uc *AnswerUseCase) engine(name string) domain.EngineConfig {
	if uc.profiles == nil {
		return domain.DefaultEngineConfig()
	}
	return uc.profiles.Engine(name)
}

func (uc *AnswerUseCase) retrieve(ctx context.Context, r *run) (domain.Outcome, bool) {
	topK := r.req.TopK
	if topK <= 0 {
		topK = uc.opts.DefaultTopK
	}
	if topK > uc.opts.MaxTopK {
		topK = uc.opts.MaxTopK
	}

	evidence, err := uc.retriever.Retrieve(ctx, r.query, topK, r.req.Filters, r.cfg)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return uc.fail(r, ctxErr), true
	}
	if err != nil {
		if domain.IsKind(err, domain.ErrRetrievalUnavailable) {
			return uc.fail(r, err), true
		}
		r.logger.Warn("retrieval_failed", "error", err)
		return uc.refuse(r, uc.refusal(r, MessageTryAgain, domain.ConfidenceNone), ReasonRetrievalFailed), true
	}
	if evidence.Empty() || evidence.Confidence == domain.ConfidenceNone {
		return uc.refuse(r, uc.refusal(r, MessageNoEvidence, domain.ConfidenceNone), ReasonNoEvidence), true
	}

	r.evidence = evidence
	r.citations = uc.redactCitations(buildCitations(evidence))
	return domain.Outcome{}, false
}

func (uc *AnswerUseCase) generateAndValidate(ctx context.Context, r *run) domain.Outcome {
	validator := integrity.NewValidator(integrity.ConfigFromEngine(r.cfg))
	firewall := grounding.NewFirewall(grounding.ConfigFromEngine(r.cfg))
	evidenceText := formatEvidence(r.evidence.Chunks)
	maxAttempts := 1 + r.cfg.MaxRetries

	var lastFailure error
	for r.attempts < maxAttempts {
		if r.attempts > 0 {
			if err := uc.backoff(ctx, r.attempts); err != nil {
				return uc.fail(r, err)
			}
			r.logger.Info("answer_regenerating", "attempt", r.attempts+1, "previous_failure", lastFailure.Error())
		}
		r.attempts++

		// Generating
		draft, err := uc.generate(ctx, evidenceText, r.query)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return uc.fail(r, ctxErr)
		}
		if err != nil {
			lastFailure = domain.WrapError(domain.ErrGenerationFailure, "generate answer", err)
			r.logger.Warn("generation_failed", "attempt", r.attempts, "error", err)
			continue
		}

		// Validating: integrity, then security, then grounding.
		iv := validator.Validate(draft, r.cfg.RequireCitations, r.citations)
		if iv.HasCritical() {
			lastFailure = fmt.Errorf("%w: %v", domain.ErrIntegrityViolation, iv.Issues)
			r.logger.Warn("draft_integrity_failed", "attempt", r.attempts, "issues", iv.Issues)
			continue
		}

		sv := uc.filter.Check(iv.NormalizedText)
		if sv.HasCredentialClass() {
			return uc.withhold(r, "check draft", sv)
		}
		final := sv.RedactedText
		if !sv.IsSafe {
			r.logger.Info("draft_redacted", "attempt", r.attempts, "issues", sv.Issues)
		}

		gv := firewall.Check(final, r.evidence.Chunks, r.cfg.RequireCitations)
		if !gv.IsGrounded {
			lastFailure = fmt.Errorf("%w: %s", domain.ErrGroundingFailure, gv.Reason)
			r.logger.Warn("draft_ungrounded",
				"attempt", r.attempts,
				"grounding_score", gv.GroundingScore,
				"reason", gv.Reason,
				"unsupported_sentences", len(gv.UnsupportedSentences),
			)
			continue
		}

		return uc.release(r, uc.result(r, final, r.evidence.Confidence, r.citations))
	}

	if errors.Is(lastFailure, domain.ErrGenerationFailure) {
		return uc.fallback(r, firewall)
	}
	reason := ReasonUngrounded
	if errors.Is(lastFailure, domain.ErrIntegrityViolation) {
		reason = ReasonIntegrity
	}
	r.logger.Warn("answer_retries_exhausted", "attempts", r.attempts, "error", lastFailure)
	return uc.refuse(r, uc.refusal(r, MessageCannotAnswer, r.evidence.Confidence), reason)
}

func (uc *AnswerUseCase) generate(ctx context.Context, evidenceText, query string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.opts.GenerateTimeout)
	defer cancel()
	return uc.generator.Generate(ctx, uc.opts.SystemPrompt, evidenceText, query)
}

// backoff waits RetryBackoff * 2^(attempt-1) before the next generation.
func (uc *AnswerUseCase) backoff(ctx context.Context, attempt int) error {
	wait := uc.opts.RetryBackoff << (attempt - 1)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// fallback presents the best evidence chunk verbatim once generation is
// exhausted. It still goes through normalization, security and grounding.
func (uc *AnswerUseCase) fallback(r *run, firewall *grounding.Firewall) domain.Outcome {
	best, score, _ := r.evidence.Best()
	text := integrity.Normalize(best.Text)

	sv := uc.filter.Check(text)
	if sv.HasCredentialClass() {
		return uc.withhold(r, "check fallback", sv)
	}
	text = sv.RedactedText

	evidence := []domain.Chunk{best}
	if gv := firewall.Check(text, evidence, r.cfg.RequireCitations); !gv.IsGrounded {
		return uc.refuse(r, uc.refusal(r, MessageCannotAnswer, r.evidence.Confidence), ReasonUngrounded)
	}

	r.logger.Warn("answer_fallback_verbatim", "attempts", r.attempts, "chunk_id", best.ID)
	citations := uc.redactCitations([]domain.Citation{citationFor(best, score)})
	res := uc.result(r, text, r.evidence.Confidence.Downgrade(), citations)
	res.Fallback = true
	return uc.release(r, res)
}

func (uc *AnswerUseCase) result(r *run, answer string, confidence domain.Confidence, citations []domain.Citation) *domain.QueryResult {
	if citations == nil {
		citations = []domain.Citation{}
	}
	return &domain.QueryResult{
		RequestID:        r.req.RequestID,
		Query:            r.req.Text,
		Answer:           answer,
		Confidence:       confidence,
		Citations:        citations,
		ProcessingTimeMs: uc.now().Sub(r.started).Milliseconds(),
		Attempts:         r.attempts,
	}
}

func (uc *AnswerUseCase) refusal(r *run, message string, confidence domain.Confidence) *domain.QueryResult {
	res := uc.result(r, message, confidence, nil)
	res.IsRefusal = true
	return res
}

func (uc *AnswerUseCase) release(r *run, res *domain.QueryResult) domain.Outcome {
	r.logger.Info("answer_released",
		"attempts", r.attempts,
		"confidence", res.Confidence.String(),
		"citations", len(res.Citations),
		"fallback", res.Fallback,
		"duration_ms", res.ProcessingTimeMs,
	)
	return domain.Released(res)
}

// withhold refuses an answer that carried credential-class content. The
// cause is kept on the outcome for logging; it never reaches the result.
func (uc *AnswerUseCase) withhold(r *run, operation string, sv domain.SecurityVerdict) domain.Outcome {
	cause := domain.WrapError(domain.ErrSecurityViolation, operation, fmt.Errorf("issues %v", sv.Issues))
	r.logger.Warn("answer_withheld", "attempt", r.attempts, "error", cause)
	outcome := uc.refuse(r, uc.refusal(r, MessageWithheld, r.evidence.Confidence), ReasonSensitive)
	outcome.Err = cause
	return outcome
}

func (uc *AnswerUseCase) refuse(r *run, res *domain.QueryResult, reason string) domain.Outcome {
	r.logger.Info("answer_refused", "reason", reason, "attempts", r.attempts, "duration_ms", res.ProcessingTimeMs)
	return domain.Refused(res, reason)
}

func (uc *AnswerUseCase) fail(r *run, err error) domain.Outcome {
	r.logger.Error("answer_failed", "attempts", r.attempts, "error", err)
	return domain.Failed(err)
}

// redactCitations masks sensitive spans in evidence snippets shown to users.
func (uc *AnswerUseCase) redactCitations(citations []domain.Citation) []domain.Citation {
	for i := range citations {
		citations[i].Text = uc.filter.Check(citations[i].Text).RedactedText
	}
	return citations
}

func buildCitations(evidence domain.RetrievalResult) []domain.Citation {
	out := make([]domain.Citation, 0, len(evidence.Chunks))
	for i, chunk := range evidence.Chunks {
		score := 0.0
		if i < len(evidence.Scores) {
			score = evidence.Scores[i]
		}
		out = append(out, citationFor(chunk, score))
	}
	return out
}

const citationSnippetRunes = 240

func citationFor(chunk domain.Chunk, score float64) domain.Citation {
	text := strings.TrimSpace(chunk.Text)
	if runes := []rune(text); len(runes) > citationSnippetRunes {
		text = strings.TrimSpace(string(runes[:citationSnippetRunes])) + "..."
	}
	return domain.Citation{Text: text, Source: chunk.Source(), RelevanceScore: score}
}

func formatEvidence(chunks []domain.Chunk) string {
	var b strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s\n%s", i+1, chunk.Source(), strings.TrimSpace(chunk.Text))
	}
	return b.String()
}
