package mercadolivre

import "time"

// Question statuses reported by the marketplace.
const (
	QuestionStatusUnanswered = "UNANSWERED"
	QuestionStatusAnswered   = "ANSWERED"
)

type Question struct {
	ID          int64         `json:"id"`
	SellerID    int64         `json:"seller_id"`
	ItemID      string        `json:"item_id"`
	Text        string        `json:"text"`
	Status      string        `json:"status"`
	DateCreated time.Time     `json:"date_created"`
	From        *QuestionFrom `json:"from,omitempty"`
	Answer      *Answer       `json:"answer,omitempty"`
}

type QuestionFrom struct {
	ID int64 `json:"id"`
}

type Answer struct {
	Text        string    `json:"text"`
	Status      string    `json:"status"`
	DateCreated time.Time `json:"date_created"`
}

// IsAnswered reports whether the marketplace already holds an answer text.
func (q *Question) IsAnswered() bool {
	return q != nil && q.Answer != nil && q.Answer.Text != ""
}

// CustomerID returns the asking user's id, or 0 when unknown.
func (q *Question) CustomerID() int64 {
	if q == nil || q.From == nil {
		return 0
	}
	return q.From.ID
}

type Item struct {
	ID                string      `json:"id"`
	Title             string      `json:"title"`
	Price             float64     `json:"price"`
	OriginalPrice     *float64    `json:"original_price,omitempty"`
	CurrencyID        string      `json:"currency_id"`
	AvailableQuantity int         `json:"available_quantity"`
	SoldQuantity      int         `json:"sold_quantity"`
	Condition         string      `json:"condition"`
	Permalink         string      `json:"permalink"`
	Warranty          string      `json:"warranty"`
	Shipping          *Shipping   `json:"shipping,omitempty"`
	Attributes        []Attribute `json:"attributes,omitempty"`
}

type Shipping struct {
	FreeShipping bool   `json:"free_shipping"`
	Mode         string `json:"mode"`
	LogisticType string `json:"logistic_type"`
}

type Attribute struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ValueName string `json:"value_name"`
}

type Description struct {
	PlainText string `json:"plain_text"`
}

type User struct {
	ID               int64             `json:"id"`
	Nickname         string            `json:"nickname"`
	FirstName        string            `json:"first_name,omitempty"`
	CountryID        string            `json:"country_id"`
	RegistrationDate *time.Time        `json:"registration_date,omitempty"`
	Points           int               `json:"points"`
	SellerReputation *SellerReputation `json:"seller_reputation,omitempty"`
}

type SellerReputation struct {
	LevelID           string       `json:"level_id"`
	PowerSellerStatus string       `json:"power_seller_status"`
	Transactions      Transactions `json:"transactions"`
}

type Transactions struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Canceled  int `json:"canceled"`
}

// QuestionSearch is the /questions/search response.
type QuestionSearch struct {
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Questions []Question `json:"questions"`
}

// SearchParams filters a question search. Empty fields are omitted.
type SearchParams struct {
	ItemID   string
	SellerID string
	FromID   string
	Limit    int
}
