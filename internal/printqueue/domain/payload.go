package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DocumentPayload is the self-contained snapshot of a note captured at
// submission time. Amounts are in minor currency units.
type DocumentPayload struct {
	NoteNumber string     `json:"note_number"`
	Date       string     `json:"date"`
	Shop       Shop       `json:"shop"`
	Customer   Customer   `json:"customer"`
	Items      []LineItem `json:"items"`
	Payment    Payment    `json:"payment"`
	Totals     Totals     `json:"totals"`
	Footer     string     `json:"footer,omitempty"`
}

type Shop struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type LineItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Total       int64  `json:"total"`
}

type Payment struct {
	Method string `json:"method"`
	Status string `json:"status,omitempty"`
	Paid   int64  `json:"paid"`
	Change int64  `json:"change,omitempty"`
}

type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount,omitempty"`
	Tax      int64 `json:"tax,omitempty"`
	Total    int64 `json:"total"`
}

// Validate checks that the snapshot carries everything a renderer needs.
// Failures wrap ErrPayloadRender.
func (p *DocumentPayload) Validate() error {
	if strings.TrimSpace(p.NoteNumber) == "" {
		return fmt.Errorf("%w: note number is required", ErrPayloadRender)
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("%w: document has no line items", ErrPayloadRender)
	}
	for i, item := range p.Items {
		if strings.TrimSpace(item.Description) == "" {
			return fmt.Errorf("%w: item %d has no description", ErrPayloadRender, i+1)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d has non-positive quantity %d", ErrPayloadRender, i+1, item.Quantity)
		}
		if item.UnitPrice < 0 || item.Total < 0 {
			return fmt.Errorf("%w: item %d has a negative amount", ErrPayloadRender, i+1)
		}
	}
	if p.Totals.Total < 0 {
		return fmt.Errorf("%w: negative document total", ErrPayloadRender)
	}
	return nil
}

// Marshal encodes the payload for storage.
func (p *DocumentPayload) Marshal() (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document payload: %w", err)
	}
	return data, nil
}

// UnmarshalPayload decodes a stored payload. A corrupt snapshot is a render
// defect, not a transient error.
func UnmarshalPayload(raw []byte) (DocumentPayload, error) {
	var p DocumentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return DocumentPayload{}, fmt.Errorf("%w: %v", ErrPayloadRender, err)
	}
	return p, nil
}
