package webhooks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ManuelReschke/MeliDesk/app/models"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/cache"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/mercadolivre"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/mltoken"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type processorHarness struct {
	questions  *memoryQuestions
	audits     *memoryAuditLogs
	market     *scriptedMarketplace
	notifier   *mockNotifier
	dispatcher *recordingDispatcher
	sleeper    *recordingSleeper
	store      *cache.MemoryStore
	tokens     staticTokens
	processor  *QuestionProcessor
}

func newProcessorHarness(t *testing.T, market *scriptedMarketplace) *processorHarness {
	t.Helper()
	h := &processorHarness{
		questions:  newMemoryQuestions(),
		audits:     &memoryAuditLogs{},
		market:     market,
		notifier:   newQuietNotifier(),
		dispatcher: &recordingDispatcher{enabled: true},
		sleeper:    &recordingSleeper{},
		store:      cache.NewMemoryStore(),
		tokens:     staticTokens{token: "tok"},
	}
	h.build()
	return h
}

func (h *processorHarness) build() {
	h.processor = NewQuestionProcessor(ProcessorDeps{
		Questions:   h.questions,
		AuditLogs:   h.audits,
		Accounts:    &memoryAccounts{accounts: map[string]*models.Account{"acct-1": testAccount()}},
		Tokens:      h.tokens,
		Marketplace: h.market,
		Cache:       h.store,
		Notifier:    h.notifier,
		Dispatcher:  h.dispatcher,
		Sleep:       h.sleeper.Sleep,
	}, DefaultProcessorConfig())
}

func unansweredQuestion() *mercadolivre.Question {
	return &mercadolivre.Question{
		ID:          123456,
		SellerID:    999,
		ItemID:      "MLB1",
		Text:        "Tem garantia?",
		Status:      mercadolivre.QuestionStatusUnanswered,
		DateCreated: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		From:        &mercadolivre.QuestionFrom{ID: 77},
	}
}

func defaultMarket() *scriptedMarketplace {
	return &scriptedMarketplace{
		questions: []questionResult{{question: unansweredQuestion()}},
		items:     []itemResult{{item: &mercadolivre.Item{ID: "MLB1", Title: "Produto X", Price: 100, Permalink: "https://produto.mercadolivre.com.br/MLB-1"}}},
		users: map[string]*mercadolivre.User{
			"999": {ID: 999, Nickname: "LOJA_X"},
			"77":  {ID: 77, Nickname: "COMPRADOR"},
		},
	}
}

func rateLimited(endpoint string) error {
	return &mercadolivre.APIError{Endpoint: endpoint, StatusCode: 429}
}

var questionEvent = WebhookEvent{Topic: TopicQuestions, Resource: "/questions/123456", UserID: "999"}

func TestProcessQuestionWebhook_Idempotent(t *testing.T) {
	h := newProcessorHarness(t, defaultMarket())
	ctx := context.Background()

	first, err := h.processor.ProcessQuestionWebhook(ctx, questionEvent, testAccount())
	require.NoError(t, err)
	second, err := h.processor.ProcessQuestionWebhook(ctx, questionEvent, testAccount())
	require.NoError(t, err)

	assert.Equal(t, OutcomeDispatched, first)
	assert.Equal(t, OutcomeDuplicate, second)
	assert.Equal(t, 1, h.questions.count())
	assert.Equal(t, 1, h.market.questionHits)
	assert.Equal(t, 1, h.dispatcher.calls())
}

func TestProcessQuestionWebhook_TokenFailureStoresFailedQuestion(t *testing.T) {
	h := newProcessorHarness(t, defaultMarket())
	h.tokens = staticTokens{err: mltoken.ErrNoToken}
	h.build()

	outcome, err := h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, testAccount())
	require.NoError(t, err)
	assert.Equal(t, OutcomeTokenFailed, outcome)

	q := h.questions.get("123456")
	require.NotNil(t, q)
	assert.Equal(t, models.QuestionStatusFailed, q.Status)
	assert.Equal(t, FailureReasonNoToken, q.FailureReason)
	assert.NotNil(t, q.FailedAt)
	assert.Equal(t, 0, h.market.questionHits)
	h.notifier.AssertNumberOfCalls(t, "EmitQuestionProcessing", 0)
}

func TestProcessQuestionWebhook_QuestionFetchExhausted(t *testing.T) {
	market := defaultMarket()
	market.questions = []questionResult{{err: rateLimited(mercadolivre.EndpointQuestion)}}
	h := newProcessorHarness(t, market)

	outcome, err := h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, testAccount())
	require.NoError(t, err)

	assert.Equal(t, OutcomeFetchAborted, outcome)
	assert.Equal(t, 0, h.questions.count())
	assert.Equal(t, 2, market.questionHits)
	require.Len(t, h.sleeper.waits, 2)
	assert.GreaterOrEqual(t, h.sleeper.waits[0], 3*time.Second)
	assert.LessOrEqual(t, h.sleeper.waits[0], 5*time.Second)
	assert.Equal(t, 60*time.Second, h.sleeper.waits[1])
}

func TestProcessQuestionWebhook_QuestionGenericFailureUsesShortDelay(t *testing.T) {
	market := defaultMarket()
	market.questions = []questionResult{{err: errors.New("connection reset")}, {question: unansweredQuestion()}}
	h := newProcessorHarness(t, market)

	outcome, err := h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, testAccount())
	require.NoError(t, err)

	assert.Equal(t, OutcomeDispatched, outcome)
	assert.Contains(t, h.sleeper.waits, 30*time.Second)
}

func TestProcessQuestionWebhook_QuestionNotFound(t *testing.T) {
	market := defaultMarket()
	market.questions = []questionResult{{err: &mercadolivre.APIError{Endpoint: mercadolivre.EndpointQuestion, StatusCode: 404}}}
	h := newProcessorHarness(t, market)

	outcome, err := h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, testAccount())
	require.NoError(t, err)

	assert.Equal(t, OutcomeNotFound, outcome)
	assert.Equal(t, 1, market.questionHits)
	assert.Equal(t, 0, h.questions.count())
}

func TestProcessQuestionWebhook_OwnershipMismatch(t *testing.T) {
	market := defaultMarket()
	foreign := unansweredQuestion()
	foreign.SellerID = 555
	market.questions = []questionResult{{question: foreign}}
	h := newProcessorHarness(t, market)

	outcome, err := h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, testAccount())

	assert.ErrorIs(t, err, ErrOwnershipMismatch)
	assert.Equal(t, OutcomeOwnershipMismatch, outcome)
	assert.Equal(t, []string{models.AuditActionQuestionOwnershipMismatch}, h.audits.actions())
	assert.Equal(t, 0, h.dispatcher.calls())

	q := h.questions.get("123456")
	require.NotNil(t, q)
	assert.Equal(t, models.QuestionStatusProcessing, q.Status)

	entries, err := h.audits.ListByEntity(context.Background(), models.AuditEntityQuestion, q.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "999", entries[0].Metadata["expected_seller_id"])
	assert.Equal(t, "555", entries[0].Metadata["actual_seller_id"])
}

func TestProcessQuestionWebhook_ItemFallbackAfterRateLimits(t *testing.T) {
	market := defaultMarket()
	market.items = []itemResult{{err: rateLimited(mercadolivre.EndpointItem)}}
	h := newProcessorHarness(t, market)

	outcome, err := h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, testAccount())
	require.NoError(t, err)

	assert.Equal(t, OutcomeDispatched, outcome)
	assert.Equal(t, 2, market.itemHits)
	assert.Contains(t, h.sleeper.waits, 45*time.Second)

	q := h.questions.get("123456")
	require.NotNil(t, q)
	assert.Equal(t, "Produto MLB1", q.ItemTitle)
	assert.Equal(t, 0.0, q.ItemPrice)
	assert.Equal(t, "https://produto.mercadolivre.com.br/MLB-1", q.ItemPermalink)
	assert.Equal(t, models.QuestionStatusProcessing, q.Status)
	assert.NotNil(t, q.ProcessedAt)
	require.Equal(t, 1, h.dispatcher.calls())
	assert.Contains(t, h.dispatcher.payloads[0].ProductContext, "Produto MLB1")

	var cached mercadolivre.Item
	hit, err := h.store.Get(context.Background(), cache.KindItem, "MLB1", "acct-1", &cached)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestProcessQuestionWebhook_AlreadyAnswered(t *testing.T) {
	market := defaultMarket()
	answered := unansweredQuestion()
	answered.Status = mercadolivre.QuestionStatusAnswered
	answered.Answer = &mercadolivre.Answer{Text: "Sim, 12 meses.", DateCreated: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	market.questions = []questionResult{{question: answered}}
	h := newProcessorHarness(t, market)

	outcome, err := h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, testAccount())
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, outcome)
	q := h.questions.get("123456")
	require.NotNil(t, q)
	assert.Equal(t, models.QuestionStatusCompleted, q.Status)
	assert.Equal(t, "Sim, 12 meses.", q.Answer)
	require.NotNil(t, q.AnsweredAt)
	assert.Equal(t, 2, q.AnsweredAt.Day())
	assert.Equal(t, 0, h.dispatcher.calls())
}

func TestProcessQuestionWebhook_DispatchFailure(t *testing.T) {
	h := newProcessorHarness(t, defaultMarket())
	h.dispatcher.err = errors.New("automation webhook returned status 502")

	outcome, err := h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, testAccount())
	require.NoError(t, err)

	assert.Equal(t, OutcomeDispatchFailed, outcome)
	q := h.questions.get("123456")
	require.NotNil(t, q)
	assert.Equal(t, models.QuestionStatusFailed, q.Status)
	assert.Contains(t, q.FailureReason, "status 502")
	assert.NotNil(t, q.FailedAt)
}

func TestProcessQuestionWebhook_DispatcherDisabled(t *testing.T) {
	h := newProcessorHarness(t, defaultMarket())
	h.dispatcher.enabled = false

	outcome, err := h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, testAccount())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, 0, h.dispatcher.calls())
	assert.Equal(t, models.QuestionStatusProcessing, h.questions.get("123456").Status)
	assert.Equal(t, []string{models.AuditActionQuestionReceived}, h.audits.actions())
}

func TestProcessQuestionWebhook_NotifierFailureDoesNotAbort(t *testing.T) {
	h := newProcessorHarness(t, defaultMarket())
	h.notifier = &mockNotifier{}
	h.notifier.On("EmitNewQuestion", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
	h.notifier.On("EmitQuestionProcessing", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
	h.build()

	outcome, err := h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, testAccount())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDispatched, outcome)
}

func TestProcessQuestionWebhook_ItemIsCached(t *testing.T) {
	market := defaultMarket()
	h := newProcessorHarness(t, market)
	ctx := context.Background()

	_, err := h.processor.ProcessQuestionWebhook(ctx, questionEvent, testAccount())
	require.NoError(t, err)

	second := unansweredQuestion()
	second.ID = 123457
	market.questions = []questionResult{{question: second}}
	_, err = h.processor.ProcessQuestionWebhook(ctx, WebhookEvent{Topic: TopicQuestions, Resource: "/questions/123457"}, testAccount())
	require.NoError(t, err)

	assert.Equal(t, 1, market.itemHits)
	assert.Equal(t, 2, h.questions.count())
	assert.Equal(t, "Produto X", h.questions.get("123457").ItemTitle)
}

func TestProcessQuestionWebhook_PayloadContext(t *testing.T) {
	market := defaultMarket()
	market.description = &mercadolivre.Description{PlainText: "Garantia de fábrica de 12 meses."}
	market.search = &mercadolivre.QuestionSearch{Questions: []mercadolivre.Question{
		{ID: 123456, ItemID: "MLB1", Text: "Tem garantia?"},
		{ID: 100, ItemID: "MLB1", Text: "Tem em azul?", Answer: &mercadolivre.Answer{Text: "Temos sim."}},
		{ID: 101, ItemID: "MLB2", Text: "Serve no modelo Y?"},
	}}
	h := newProcessorHarness(t, market)

	_, err := h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, testAccount())
	require.NoError(t, err)
	require.Equal(t, 1, h.dispatcher.calls())

	p := h.dispatcher.payloads[0]
	assert.Equal(t, "123456", p.QuestionID)
	assert.Equal(t, "MLB1", p.ItemID)
	assert.Equal(t, "MLB1", p.MLItemID)
	assert.Contains(t, p.ProductContext, "Garantia de fábrica de 12 meses.")
	assert.Equal(t, "Vendedor: LOJA_X", p.SellerContext)
	assert.Contains(t, p.BuyerContext, "COMPRADOR")
	assert.Contains(t, p.BuyerQuestionsHistory, "Tem em azul?")
	assert.Contains(t, p.BuyerQuestionsHistory, "Serve no modelo Y?")
	assert.NotContains(t, p.BuyerQuestionsHistory, "Tem garantia?")
	assert.NotEmpty(t, p.Instructions)
}

func TestProcessQuestionWebhook_InvalidInput(t *testing.T) {
	h := newProcessorHarness(t, defaultMarket())

	_, err := h.processor.ProcessQuestionWebhook(context.Background(), WebhookEvent{Resource: ""}, testAccount())
	assert.ErrorIs(t, err, ErrInvalidResource)

	_, err = h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, &models.Account{ID: "acct-1"})
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestProcessQueued(t *testing.T) {
	h := newProcessorHarness(t, defaultMarket())

	require.NoError(t, h.processor.ProcessQueued(context.Background(), "acct-1", questionEvent))
	assert.Equal(t, 1, h.questions.count())

	err := h.processor.ProcessQueued(context.Background(), "missing", questionEvent)
	assert.Error(t, err)
}

func TestProcessQuestionWebhook_DispatchFailureReasonIsValidUTF8(t *testing.T) {
	h := newProcessorHarness(t, defaultMarket())
	h.dispatcher.err = errors.New("automation webhook returned status 400: " + strings.Repeat("a", 20) + "inv\xc3")

	outcome, err := h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, testAccount())
	require.NoError(t, err)

	assert.Equal(t, OutcomeDispatchFailed, outcome)
	q := h.questions.get("123456")
	require.NotNil(t, q)
	assert.Equal(t, models.QuestionStatusFailed, q.Status)
	assert.True(t, utf8.ValidString(q.FailureReason))
	assert.Contains(t, q.FailureReason, "status 400")
}

func TestProcessQuestionWebhook_OtherUpstreamStatusIsAudited(t *testing.T) {
	market := defaultMarket()
	underReview := unansweredQuestion()
	underReview.Status = "UNDER_REVIEW"
	market.questions = []questionResult{{question: underReview}}
	h := newProcessorHarness(t, market)

	outcome, err := h.processor.ProcessQuestionWebhook(context.Background(), questionEvent, testAccount())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, 0, h.dispatcher.calls())
	assert.Equal(t, []string{models.AuditActionQuestionReceived, models.AuditActionQuestionSkipped}, h.audits.actions())

	entries, err := h.audits.ListByEntity(context.Background(), models.AuditEntityQuestion, h.questions.get("123456").ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "UNDER_REVIEW", entries[1].Metadata["ml_status"])
}
