package webhooks

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/ManuelReschke/MeliDesk/app/models"
	"github.com/ManuelReschke/MeliDesk/app/repository"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/automation"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/cache"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/mercadolivre"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/metrics"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/questioncontext"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/retry"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/shortener"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/utils"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// FailureReasonNoToken is stored on questions that arrive while the account has no usable token.
const FailureReasonNoToken = "Não foi possível obter um token de acesso válido do Mercado Livre para esta conta"

// maxFailureReasonLength keeps failure reasons readable in the admin views.
const maxFailureReasonLength = 1000

// Outcome describes how one processing pass ended.
type Outcome string

const (
	OutcomeInvalid           Outcome = "invalid"
	OutcomeDuplicate         Outcome = "duplicate"
	OutcomeTokenFailed       Outcome = "token_failed"
	OutcomeNotFound          Outcome = "not_found"
	OutcomeFetchAborted      Outcome = "fetch_aborted"
	OutcomeOwnershipMismatch Outcome = "ownership_mismatch"
	OutcomeCompleted         Outcome = "completed"
	OutcomeSkipped           Outcome = "skipped"
	OutcomeDispatched        Outcome = "dispatched"
	OutcomeDispatchFailed    Outcome = "dispatch_failed"
	OutcomeError             Outcome = "error"
)

// TokenProvider supplies a bearer token for a seller account.
type TokenProvider interface {
	AccessToken(ctx context.Context, account *models.Account) (string, error)
}

// Marketplace is the subset of the Mercado Livre API the processor calls.
type Marketplace interface {
	GetQuestion(ctx context.Context, token, questionID string) (*mercadolivre.Question, error)
	GetItem(ctx context.Context, token, itemID string) (*mercadolivre.Item, error)
	GetItemDescription(ctx context.Context, token, itemID string) (*mercadolivre.Description, error)
	GetUser(ctx context.Context, token, userID string) (*mercadolivre.User, error)
	SearchQuestions(ctx context.Context, token string, params mercadolivre.SearchParams) (*mercadolivre.QuestionSearch, error)
}

// Dispatcher hands a question over to the answer automation.
type Dispatcher interface {
	Enabled() bool
	Dispatch(ctx context.Context, payload automation.Payload) error
}

// ProcessorConfig holds the delays, retry policy and cache lifetimes of the processor.
type ProcessorConfig struct {
	QuestionWarmupMin      time.Duration
	QuestionWarmupMax      time.Duration
	QuestionRetryDelay     time.Duration
	QuestionRateLimitDelay time.Duration

	ItemWarmupMin      time.Duration
	ItemWarmupMax      time.Duration
	ItemRetryDelay     time.Duration
	ItemRateLimitDelay time.Duration

	UserRetryDelay     time.Duration
	UserRateLimitDelay time.Duration

	// MaxAttempts includes the first call.
	MaxAttempts int

	ItemTTL        time.Duration
	DescriptionTTL time.Duration
	UserTTL        time.Duration

	HistoryLimit int
	Instructions string
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		QuestionWarmupMin:      3 * time.Second,
		QuestionWarmupMax:      5 * time.Second,
		QuestionRetryDelay:     30 * time.Second,
		QuestionRateLimitDelay: 60 * time.Second,
		ItemWarmupMin:          2 * time.Second,
		ItemWarmupMax:          3 * time.Second,
		ItemRetryDelay:         20 * time.Second,
		ItemRateLimitDelay:     45 * time.Second,
		UserRetryDelay:         15 * time.Second,
		UserRateLimitDelay:     45 * time.Second,
		MaxAttempts:            2,
		ItemTTL:                15 * time.Minute,
		DescriptionTTL:         30 * time.Minute,
		UserTTL:                time.Hour,
		HistoryLimit:           questioncontext.MaxHistoryEntries,
		Instructions:           automation.DefaultInstructions,
	}
}

// ProcessorDeps are the collaborators of a QuestionProcessor. Metrics and Sleep are optional.
type ProcessorDeps struct {
	Questions   repository.QuestionRepository
	AuditLogs   repository.AuditLogRepository
	Accounts    repository.AccountRepository
	Tokens      TokenProvider
	Marketplace Marketplace
	Cache       cache.Store
	Notifier    Notifier
	Dispatcher  Dispatcher
	Metrics     *metrics.Metrics
	Sleep       retry.Sleeper
}

// QuestionProcessor runs one webhook through fetch, enrichment, persistence and dispatch.
type QuestionProcessor struct {
	questions  repository.QuestionRepository
	accounts   repository.AccountRepository
	lifecycle  *Lifecycle
	tokens     TokenProvider
	market     Marketplace
	cache      cache.Store
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	cfg        ProcessorConfig
	sleep      retry.Sleeper

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewQuestionProcessor(deps ProcessorDeps, cfg ProcessorConfig) *QuestionProcessor {
	sleep := deps.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}
	store := deps.Cache
	if store == nil {
		store = cache.NewMemoryStore()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	return &QuestionProcessor{
		questions:  deps.Questions,
		accounts:   deps.Accounts,
		lifecycle:  NewLifecycle(deps.Questions, deps.AuditLogs, deps.Notifier),
		tokens:     deps.Tokens,
		market:     deps.Marketplace,
		cache:      store,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		cfg:        cfg,
		sleep:      sleep,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ProcessQueued loads the account by its internal id and processes the event.
// It is the handler the BatchProcessor drains into.
func (p *QuestionProcessor) ProcessQueued(ctx context.Context, accountID string, event WebhookEvent) error {
	account, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load account %s: %w", accountID, err)
	}
	if !account.Active {
		log.Warnf("[QuestionProcessor] Account %s is inactive, dropping webhook %s", accountID, event.Resource)
		return nil
	}

	_, err = p.ProcessQuestionWebhook(ctx, event, account)
	return err
}

// ProcessQuestionWebhook handles one question notification for account.
func (p *QuestionProcessor) ProcessQuestionWebhook(ctx context.Context, event WebhookEvent, account *models.Account) (outcome Outcome, err error) {
	defer func() {
		if err != nil && outcome == "" {
			outcome = OutcomeError
		}
		p.metrics.RecordQuestionOutcome(string(outcome))
	}()

	questionID, err := QuestionIDFromResource(event.Resource)
	if err != nil {
		return OutcomeInvalid, err
	}
	if account == nil || account.ID == "" || account.MLUserID == "" || account.OrganizationID == "" {
		return OutcomeInvalid, ErrInvalidAccount
	}

	existing, err := p.questions.FindByMLQuestionID(ctx, questionID)
	switch {
	case err == nil && existing != nil:
		log.Debugf("[QuestionProcessor] Question %s already exists (status %s), skipping", questionID, existing.Status)
		return OutcomeDuplicate, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return "", fmt.Errorf("lookup question %s: %w", questionID, err)
	}

	token, err := p.tokens.AccessToken(ctx, account)
	if err != nil {
		log.Errorf("[QuestionProcessor] No access token for account %s: %v", account.ID, err)
		return p.recordTokenFailure(ctx, questionID, account)
	}

	mlQuestion, err := p.fetchQuestion(ctx, token, questionID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if mercadolivre.IsNotFound(err) {
			log.Debugf("[QuestionProcessor] Question %s not found upstream, ignoring", questionID)
			return OutcomeNotFound, nil
		}
		log.Warnf("[QuestionProcessor] Giving up on question %s until the next delivery: %v", questionID, err)
		return OutcomeFetchAborted, nil
	}

	item := p.resolveItem(ctx, token, account, mlQuestion.ItemID)

	question := p.newQuestion(questionID, mlQuestion, item, account)
	if err := p.lifecycle.Create(ctx, question, account); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Debugf("[QuestionProcessor] Question %s was stored concurrently, skipping", questionID)
			return OutcomeDuplicate, nil
		}
		return "", fmt.Errorf("create question %s: %w", questionID, err)
	}
	log.Infof("[QuestionProcessor] Question %s stored as %s (%s)", questionID, question.SequentialID, question.Status)

	if mlQuestion.SellerID != 0 {
		sellerID := strconv.FormatInt(mlQuestion.SellerID, 10)
		if sellerID != account.MLUserID {
			log.Errorf("[QuestionProcessor] SECURITY: question %s belongs to seller %s but arrived for account %s (seller %s)",
				questionID, sellerID, account.ID, account.MLUserID)
			if auditErr := p.lifecycle.Audit(ctx, question, models.AuditActionQuestionOwnershipMismatch, map[string]any{
				"ml_question_id":     questionID,
				"expected_seller_id": account.MLUserID,
				"actual_seller_id":   sellerID,
				"item_id":            mlQuestion.ItemID,
				"webhook_user_id":    event.UserID.String(),
			}); auditErr != nil {
				log.Errorf("[QuestionProcessor] %v", auditErr)
			}
			return OutcomeOwnershipMismatch, fmt.Errorf("%w: question %s, seller %s, account seller %s",
				ErrOwnershipMismatch, questionID, sellerID, account.MLUserID)
		}
	}

	if err := p.lifecycle.Audit(ctx, question, models.AuditActionQuestionReceived, map[string]any{
		"ml_question_id": questionID,
		"sequential_id":  question.SequentialID,
		"item_id":        question.ItemID,
		"status":         string(question.Status),
		"ml_status":      mlQuestion.Status,
	}); err != nil {
		log.Errorf("[QuestionProcessor] %v", err)
	}

	bundle := p.enrich(ctx, token, account, mlQuestion, item)

	if mlQuestion.IsAnswered() {
		answer := mlQuestion.Answer
		if err := p.lifecycle.Fire(ctx, question, TriggerComplete, func(q *models.Question) {
			q.Answer = answer.Text
			q.AnsweredBy = "mercadolivre"
			answeredAt := answer.DateCreated
			if answeredAt.IsZero() {
				answeredAt = time.Now()
			}
			q.AnsweredAt = &answeredAt
		}); err != nil {
			log.Errorf("[QuestionProcessor] Failed to complete already answered question %s: %v", questionID, err)
		}
		return OutcomeCompleted, nil
	}

	if mlQuestion.Status != mercadolivre.QuestionStatusUnanswered {
		log.Warnf("[QuestionProcessor] Question %s has upstream status %s, left in %s without dispatch",
			questionID, mlQuestion.Status, question.Status)
		if err := p.lifecycle.Audit(ctx, question, models.AuditActionQuestionSkipped, map[string]any{
			"ml_question_id": questionID,
			"ml_status":      mlQuestion.Status,
			"status":         string(question.Status),
		}); err != nil {
			log.Errorf("[QuestionProcessor] %v", err)
		}
		return OutcomeSkipped, nil
	}
	if p.dispatcher == nil || !p.dispatcher.Enabled() {
		log.Debugf("[QuestionProcessor] Automation webhook not configured, question %s stays in %s", questionID, question.Status)
		return OutcomeSkipped, nil
	}

	payload := p.buildPayload(questionID, mlQuestion, bundle)
	if err := p.dispatcher.Dispatch(ctx, payload); err != nil {
		log.Errorf("[QuestionProcessor] Dispatch of question %s failed: %v", questionID, err)
		reason := utils.Truncate(fmt.Sprintf("Falha ao enviar para a automação: %v", err), maxFailureReasonLength)
		if fireErr := p.lifecycle.Fire(ctx, question, TriggerFail, func(q *models.Question) {
			q.FailureReason = reason
		}); fireErr != nil {
			log.Errorf("[QuestionProcessor] Failed to mark question %s as failed: %v", questionID, fireErr)
		}
		return OutcomeDispatchFailed, nil
	}

	if err := p.lifecycle.Fire(ctx, question, TriggerDispatched, nil); err != nil {
		log.Errorf("[QuestionProcessor] Failed to record dispatch of question %s: %v", questionID, err)
	}
	log.Infof("[QuestionProcessor] Question %s sent to automation", questionID)
	return OutcomeDispatched, nil
}

func (p *QuestionProcessor) recordTokenFailure(ctx context.Context, questionID string, account *models.Account) (Outcome, error) {
	now := time.Now()
	question := &models.Question{
		MLQuestionID:   questionID,
		SequentialID:   shortener.SequentialID(questionID),
		AccountID:      account.ID,
		OrganizationID: account.OrganizationID,
		SellerID:       account.MLUserID,
		Status:         models.QuestionStatusFailed,
		FailedAt:       &now,
		FailureReason:  FailureReasonNoToken,
	}
	if err := p.lifecycle.Create(ctx, question, account); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return OutcomeDuplicate, nil
		}
		return OutcomeTokenFailed, fmt.Errorf("store failed question %s: %w", questionID, err)
	}
	return OutcomeTokenFailed, nil
}

func (p *QuestionProcessor) fetchQuestion(ctx context.Context, token, questionID string) (*mercadolivre.Question, error) {
	if err := p.sleep(ctx, p.between(p.cfg.QuestionWarmupMin, p.cfg.QuestionWarmupMax)); err != nil {
		return nil, err
	}

	var out *mercadolivre.Question
	err := retry.Do(ctx, p.policy(mercadolivre.EndpointQuestion, p.cfg.QuestionRetryDelay, p.cfg.QuestionRateLimitDelay), func(ctx context.Context) error {
		q, err := p.market.GetQuestion(ctx, token, questionID)
		if err != nil {
			return err
		}
		out = q
		return nil
	})
	return out, err
}

// resolveItem never fails: exhausted fetches fall back to a placeholder item.
func (p *QuestionProcessor) resolveItem(ctx context.Context, token string, account *models.Account, itemID string) *mercadolivre.Item {
	if itemID == "" {
		return nil
	}

	item, err := cache.GetOrFetch(ctx, p.cache, cache.KindItem, itemID, account.ID, p.cfg.ItemTTL, func(ctx context.Context) (*mercadolivre.Item, error) {
		if err := p.sleep(ctx, p.between(p.cfg.ItemWarmupMin, p.cfg.ItemWarmupMax)); err != nil {
			return nil, err
		}
		var out *mercadolivre.Item
		err := retry.Do(ctx, p.policy(mercadolivre.EndpointItem, p.cfg.ItemRetryDelay, p.cfg.ItemRateLimitDelay), func(ctx context.Context) error {
			it, err := p.market.GetItem(ctx, token, itemID)
			if err != nil {
				return err
			}
			out = it
			return nil
		})
		return out, err
	})
	if err == nil && item != nil {
		return item
	}

	if mercadolivre.IsNotFound(err) {
		log.Debugf("[QuestionProcessor] Item %s not found upstream, using placeholder", itemID)
	} else {
		log.Warnf("[QuestionProcessor] Item %s unavailable, using placeholder: %v", itemID, err)
	}
	return placeholderItem(itemID)
}

func placeholderItem(itemID string) *mercadolivre.Item {
	return &mercadolivre.Item{
		ID:        itemID,
		Title:     "Produto " + itemID,
		Price:     0,
		Permalink: mercadolivre.ItemPermalink(itemID),
	}
}

type enrichment struct {
	item        *mercadolivre.Item
	description *mercadolivre.Description
	seller      *mercadolivre.User
	buyer       *mercadolivre.User
	history     questioncontext.QuestionHistory
}

// enrich gathers the optional context in parallel. Failures leave fields empty.
func (p *QuestionProcessor) enrich(ctx context.Context, token string, account *models.Account, q *mercadolivre.Question, item *mercadolivre.Item) enrichment {
	out := enrichment{item: item}
	customerID := ""
	if id := q.CustomerID(); id != 0 {
		customerID = strconv.FormatInt(id, 10)
	}

	var g errgroup.Group

	if q.ItemID != "" {
		g.Go(func() error {
			desc, err := cache.GetOrFetch(ctx, p.cache, cache.KindItemDescription, q.ItemID, account.ID, p.cfg.DescriptionTTL,
				func(ctx context.Context) (*mercadolivre.Description, error) {
					return p.market.GetItemDescription(ctx, token, q.ItemID)
				})
			if err != nil {
				log.Debugf("[QuestionProcessor] No description for item %s: %v", q.ItemID, err)
				return nil
			}
			out.description = desc
			return nil
		})
	}

	g.Go(func() error {
		out.seller = p.fetchUser(ctx, token, account, account.MLUserID)
		return nil
	})

	if customerID != "" {
		g.Go(func() error {
			out.buyer = p.fetchUser(ctx, token, account, customerID)
			return nil
		})
		g.Go(func() error {
			out.history = p.buyerHistory(ctx, token, account, q, customerID)
			return nil
		})
	}

	_ = g.Wait()
	return out
}

func (p *QuestionProcessor) fetchUser(ctx context.Context, token string, account *models.Account, userID string) *mercadolivre.User {
	user, err := cache.GetOrFetch(ctx, p.cache, cache.KindUser, userID, account.ID, p.cfg.UserTTL, func(ctx context.Context) (*mercadolivre.User, error) {
		var out *mercadolivre.User
		err := retry.Do(ctx, p.policy(mercadolivre.EndpointUser, p.cfg.UserRetryDelay, p.cfg.UserRateLimitDelay), func(ctx context.Context) error {
			u, err := p.market.GetUser(ctx, token, userID)
			if err != nil {
				return err
			}
			out = u
			return nil
		})
		return out, err
	})
	if err != nil {
		log.Debugf("[QuestionProcessor] No profile for user %s: %v", userID, err)
		return nil
	}
	return user
}

func (p *QuestionProcessor) buyerHistory(ctx context.Context, token string, account *models.Account, q *mercadolivre.Question, customerID string) questioncontext.QuestionHistory {
	var history questioncontext.QuestionHistory
	limit := p.cfg.HistoryLimit + 1

	if q.ItemID != "" {
		res, err := p.market.SearchQuestions(ctx, token, mercadolivre.SearchParams{ItemID: q.ItemID, FromID: customerID, Limit: limit})
		if err != nil {
			log.Debugf("[QuestionProcessor] Item history for buyer %s unavailable: %v", customerID, err)
		} else {
			history.SameItem = filterHistory(res.Questions, q.ID, func(h mercadolivre.Question) bool { return true }, p.cfg.HistoryLimit)
		}
	}

	res, err := p.market.SearchQuestions(ctx, token, mercadolivre.SearchParams{SellerID: account.MLUserID, FromID: customerID, Limit: limit * 2})
	if err != nil {
		log.Debugf("[QuestionProcessor] Seller history for buyer %s unavailable: %v", customerID, err)
		return history
	}
	history.OtherItems = filterHistory(res.Questions, q.ID, func(h mercadolivre.Question) bool { return h.ItemID != q.ItemID }, p.cfg.HistoryLimit)
	return history
}

func filterHistory(questions []mercadolivre.Question, currentID int64, keep func(mercadolivre.Question) bool, limit int) []mercadolivre.Question {
	var out []mercadolivre.Question
	for _, h := range questions {
		if h.ID == currentID || !keep(h) {
			continue
		}
		out = append(out, h)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (p *QuestionProcessor) newQuestion(questionID string, q *mercadolivre.Question, item *mercadolivre.Item, account *models.Account) *models.Question {
	question := &models.Question{
		MLQuestionID:   questionID,
		SequentialID:   shortener.SequentialID(questionID),
		AccountID:      account.ID,
		OrganizationID: account.OrganizationID,
		SellerID:       account.MLUserID,
		ItemID:         q.ItemID,
		Text:           q.Text,
		Status:         models.QuestionStatusProcessing,
		ReceivedAt:     time.Now(),
	}
	if q.SellerID != 0 {
		question.SellerID = strconv.FormatInt(q.SellerID, 10)
	}
	if id := q.CustomerID(); id != 0 {
		question.CustomerID = strconv.FormatInt(id, 10)
	}
	if !q.DateCreated.IsZero() {
		created := q.DateCreated.UTC()
		question.DateCreated = &created
	}
	if item != nil {
		question.ItemTitle = item.Title
		question.ItemPrice = item.Price
		question.ItemPermalink = item.Permalink
	}
	return question
}

func (p *QuestionProcessor) buildPayload(questionID string, q *mercadolivre.Question, e enrichment) automation.Payload {
	return automation.Payload{
		QuestionID:            questionID,
		ItemID:                q.ItemID,
		MLItemID:              q.ItemID,
		Question:              q.Text,
		ProductContext:        questioncontext.FormatProductContext(e.item, e.description),
		SellerContext:         questioncontext.FormatSellerContext(e.seller),
		BuyerContext:          questioncontext.FormatBuyerContext(e.buyer),
		BuyerQuestionsHistory: questioncontext.FormatQuestionHistory(e.history),
		Instructions:          p.cfg.Instructions,
	}
}

func (p *QuestionProcessor) policy(endpoint string, delay, rateLimitDelay time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts:    p.cfg.MaxAttempts,
		Delay:          delay,
		RateLimitDelay: rateLimitDelay,
		IsRateLimited:  mercadolivre.IsRateLimited,
		IsPermanent:    mercadolivre.IsNotFound,
		Sleep:          p.sleep,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			reason := "error"
			if mercadolivre.IsRateLimited(err) {
				reason = "rate_limited"
			}
			p.metrics.RecordUpstreamRetry(endpoint, reason)
			log.Warnf("[QuestionProcessor] %s attempt %d failed (%v), retrying in %s", endpoint, attempt, err, wait)
		},
	}
}

func (p *QuestionProcessor) between(min, max time.Duration) time.Duration {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return retry.Between(p.rng, min, max)
}
