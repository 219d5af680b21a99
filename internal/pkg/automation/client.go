// Package automation delivers enriched questions to the N8N workflow that drafts answers.
package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/MeliDesk/internal/pkg/metrics"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/utils"
	"github.com/go-resty/resty/v2"
)

const DefaultTimeout = 120 * time.Second

// ErrDisabled is returned by Dispatch when no webhook URL is configured.
var ErrDisabled = errors.New("automation: webhook url not configured")

// DefaultInstructions is sent with every question.
const DefaultInstructions = `Você é um assistente de atendimento de um vendedor do Mercado Livre.
Responda a pergunta do comprador em português do Brasil, de forma cordial, objetiva e curta.
Use apenas as informações do contexto do produto e do histórico de perguntas.
Se a informação não estiver disponível, diga que vai verificar e não invente dados.
Não inclua links externos, telefones, e-mails ou qualquer contato fora do Mercado Livre.
Finalize com uma saudação curta em nome da loja.`

// Payload is the JSON body posted to the automation webhook.
type Payload struct {
	QuestionID            string `json:"question-id"`
	ItemID                string `json:"item-id"`
	MLItemID              string `json:"ml_item_id"`
	Question              string `json:"question"`
	ProductContext        string `json:"product_context"`
	SellerContext         string `json:"seller_context"`
	BuyerContext          string `json:"buyer_context"`
	BuyerQuestionsHistory string `json:"buyer_questions_history"`
	Instructions          string `json:"instructions"`
}

type Client struct {
	url     string
	http    *resty.Client
	metrics *metrics.Metrics
}

// NewClient creates a client for webhookURL. An empty URL yields a disabled client.
func NewClient(webhookURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url: strings.TrimSpace(webhookURL),
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		metrics: m,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.url != ""
}

// Dispatch posts p and fails on transport errors, timeouts and non-2xx answers.
func (c *Client) Dispatch(ctx context.Context, p Payload) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	if p.Instructions == "" {
		p.Instructions = DefaultInstructions
	}

	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).SetBody(p).Post(c.url)
	if err != nil {
		c.metrics.RecordDispatch(false, time.Since(start))
		return fmt.Errorf("automation webhook request failed: %w", err)
	}
	if resp.IsError() {
		c.metrics.RecordDispatch(false, time.Since(start))
		body := utils.Truncate(strings.TrimSpace(resp.String()), 200)
		return fmt.Errorf("automation webhook returned status %d: %s", resp.StatusCode(), body)
	}

	c.metrics.RecordDispatch(true, time.Since(start))
	return nil
}
