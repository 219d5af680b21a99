package webhooks

import (
	"context"
	"sync"
	"time"

	"github.com/ManuelReschke/MeliDesk/app/models"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/automation"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/mercadolivre"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

type memoryQuestions struct {
	mu   sync.Mutex
	rows map[string]*models.Question
}

func newMemoryQuestions() *memoryQuestions {
	return &memoryQuestions{rows: make(map[string]*models.Question)}
}

func (m *memoryQuestions) FindByMLQuestionID(ctx context.Context, mlQuestionID string) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rows[mlQuestionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *q
	return &cp, nil
}

func (m *memoryQuestions) GetByID(ctx context.Context, id string) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.rows {
		if q.ID == id {
			cp := *q
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryQuestions) Create(ctx context.Context, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[q.MLQuestionID]; ok {
		return gorm.ErrDuplicatedKey
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	cp := *q
	m.rows[q.MLQuestionID] = &cp
	return nil
}

func (m *memoryQuestions) Update(ctx context.Context, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[q.MLQuestionID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *q
	m.rows[q.MLQuestionID] = &cp
	return nil
}

func (m *memoryQuestions) CountByStatus(ctx context.Context, organizationID string) (map[models.QuestionStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[models.QuestionStatus]int64{}
	for _, q := range m.rows {
		if organizationID == "" || q.OrganizationID == organizationID {
			out[q.Status]++
		}
	}
	return out, nil
}

func (m *memoryQuestions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memoryQuestions) get(mlQuestionID string) *models.Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rows[mlQuestionID]
	if !ok {
		return nil
	}
	cp := *q
	return &cp
}

type memoryAuditLogs struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (m *memoryAuditLogs) Append(ctx context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryAuditLogs) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for _, e := range m.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryAuditLogs) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

type memoryAccounts struct {
	accounts map[string]*models.Account
}

func (m *memoryAccounts) GetByID(ctx context.Context, id string) (*models.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memoryAccounts) GetByMLUserID(ctx context.Context, mlUserID string) (*models.Account, error) {
	for _, a := range m.accounts {
		if a.MLUserID == mlUserID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryAccounts) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	return nil
}

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) AccessToken(ctx context.Context, account *models.Account) (string, error) {
	return s.token, s.err
}

// scriptedMarketplace returns queued results per endpoint; the last result repeats.
type scriptedMarketplace struct {
	mu           sync.Mutex
	questions    []questionResult
	items        []itemResult
	description  *mercadolivre.Description
	users        map[string]*mercadolivre.User
	search       *mercadolivre.QuestionSearch
	questionHits int
	itemHits     int
}

type questionResult struct {
	question *mercadolivre.Question
	err      error
}

type itemResult struct {
	item *mercadolivre.Item
	err  error
}

func (s *scriptedMarketplace) GetQuestion(ctx context.Context, token, questionID string) (*mercadolivre.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.questions[min(s.questionHits, len(s.questions)-1)]
	s.questionHits++
	return r.question, r.err
}

func (s *scriptedMarketplace) GetItem(ctx context.Context, token, itemID string) (*mercadolivre.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.items[min(s.itemHits, len(s.items)-1)]
	s.itemHits++
	return r.item, r.err
}

func (s *scriptedMarketplace) GetItemDescription(ctx context.Context, token, itemID string) (*mercadolivre.Description, error) {
	if s.description == nil {
		return nil, &mercadolivre.APIError{Endpoint: mercadolivre.EndpointItemDescription, StatusCode: 404}
	}
	return s.description, nil
}

func (s *scriptedMarketplace) GetUser(ctx context.Context, token, userID string) (*mercadolivre.User, error) {
	if u, ok := s.users[userID]; ok {
		return u, nil
	}
	return nil, &mercadolivre.APIError{Endpoint: mercadolivre.EndpointUser, StatusCode: 404}
}

func (s *scriptedMarketplace) SearchQuestions(ctx context.Context, token string, params mercadolivre.SearchParams) (*mercadolivre.QuestionSearch, error) {
	if s.search == nil {
		return &mercadolivre.QuestionSearch{}, nil
	}
	return s.search, nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) EmitNewQuestion(ctx context.Context, question *models.Question, account *models.Account) error {
	args := m.Called(ctx, question, account)
	return args.Error(0)
}

func (m *mockNotifier) EmitQuestionProcessing(ctx context.Context, mlQuestionID, organizationID string) error {
	args := m.Called(ctx, mlQuestionID, organizationID)
	return args.Error(0)
}

func newQuietNotifier() *mockNotifier {
	n := &mockNotifier{}
	n.On("EmitNewQuestion", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	n.On("EmitQuestionProcessing", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return n
}

type recordingDispatcher struct {
	mu       sync.Mutex
	enabled  bool
	err      error
	payloads []automation.Payload
}

func (d *recordingDispatcher) Enabled() bool { return d.enabled }

func (d *recordingDispatcher) Dispatch(ctx context.Context, payload automation.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, payload)
	return d.err
}

func (d *recordingDispatcher) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.payloads)
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum time.Duration
	for _, w := range r.waits {
		sum += w
	}
	return sum
}

func testAccount() *models.Account {
	return &models.Account{
		ID:             "acct-1",
		OrganizationID: "org-1",
		MLUserID:       "999",
		Nickname:       "LOJA_X",
		Active:         true,
	}
}
