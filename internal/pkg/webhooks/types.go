package webhooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// TopicQuestions is the marketplace notification topic handled by this package.
const TopicQuestions = "questions"

var (
	// ErrInvalidResource is returned when a webhook resource does not end in a question id.
	ErrInvalidResource = errors.New("webhooks: resource does not contain a question id")
	// ErrOwnershipMismatch is returned when the marketplace reports another seller for the question.
	ErrOwnershipMismatch = errors.New("webhooks: question does not belong to the account seller")
	// ErrInvalidAccount is returned when the target account lacks its identifiers.
	ErrInvalidAccount = errors.New("webhooks: account is missing id, seller id or organization")
)

// FlexibleID accepts a JSON number or string. The marketplace sends user_id as a number,
// some relays forward it as a string.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string { return string(f) }

// WebhookEvent is one marketplace notification.
type WebhookEvent struct {
	ID            string     `json:"_id,omitempty"`
	Topic         string     `json:"topic" validate:"required"`
	Resource      string     `json:"resource" validate:"required"`
	UserID        FlexibleID `json:"user_id" validate:"required"`
	ApplicationID FlexibleID `json:"application_id,omitempty"`
	Attempts      int        `json:"attempts,omitempty"`
}

// QuestionIDFromResource returns the last path segment of resource, e.g. "123" for "/questions/123".
func QuestionIDFromResource(resource string) (string, error) {
	resource = strings.TrimSpace(resource)
	if i := strings.IndexAny(resource, "?#"); i >= 0 {
		resource = resource[:i]
	}
	resource = strings.TrimRight(resource, "/")

	id := resource
	if i := strings.LastIndex(resource, "/"); i >= 0 {
		id = resource[i+1:]
	}
	if id == "" {
		return "", ErrInvalidResource
	}
	return id, nil
}
