package participant

import (
	"encoding/json"
	"fmt"
	"github.com/Geniuskaa/participant_registry/pkg/collection"
	"github.com/mitchellh/mapstructure"
)

// Participant is the stored record. Email doubles as the collection key.
type Participant struct {
	Email     string `json:"email" mapstructure:"email"`
	FirstName string `json:"firstName" mapstructure:"firstName"`
	LastName  string `json:"lastName" mapstructure:"lastName"`
	DOB       string `json:"dob" mapstructure:"dob"`
	Work      Work   `json:"work" mapstructure:"work"`
	Home      Home   `json:"home" mapstructure:"home"`
	Active    bool   `json:"active" mapstructure:"active"`
}

type Work struct {
	CompanyName string  `json:"companyName" mapstructure:"companyName"`
	Salary      float64 `json:"salary" mapstructure:"salary"`
	Currency    string  `json:"currency" mapstructure:"currency"`
}

type Home struct {
	Country string `json:"country" mapstructure:"country"`
	City    string `json:"city" mapstructure:"city"`
}

// Entry pairs a participant with the key it is stored under.
type Entry struct {
	Key         string      `json:"key"`
	Participant Participant `json:"participant"`
}

// Request is the body of add and update. Active and Work.Salary stay raw so
// their types are checked by Validate instead of failing the decode.
type Request struct {
	Email     string          `json:"email"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	DOB       string          `json:"dob"`
	Work      *WorkRequest    `json:"work"`
	Home      *HomeRequest    `json:"home"`
	Active    json.RawMessage `json:"active"`

	// TypeErrors holds fields the body carried with the wrong JSON type.
	TypeErrors []FieldError `json:"-"`
}

type WorkRequest struct {
	CompanyName string          `json:"companyName"`
	Salary      json.RawMessage `json:"salary"`
	Currency    string          `json:"currency"`
}

type HomeRequest struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// props renders the normalized record. Only known fields survive.
func (p Participant) props() collection.Props {
	return collection.Props{
		"email":     p.Email,
		"firstName": p.FirstName,
		"lastName":  p.LastName,
		"dob":       p.DOB,
		"work": map[string]interface{}{
			"companyName": p.Work.CompanyName,
			"salary":      p.Work.Salary,
			"currency":    p.Work.Currency,
		},
		"home": map[string]interface{}{
			"country": p.Home.Country,
			"city":    p.Home.City,
		},
		"active": p.Active,
	}
}

// fromItem decodes a stored record. Records written without an email prop
// take it from the key.
func fromItem(item collection.Item) (Participant, error) {
	var p Participant
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Participant{}, fmt.Errorf("fromItem failed: %w", err)
	}
	if err := dec.Decode(item.Props); err != nil {
		return Participant{}, fmt.Errorf("fromItem failed: %w", err)
	}
	if p.Email == "" {
		p.Email = item.Key
	}
	return p, nil
}

// isDeleted mirrors the stored active flag: only an explicit false counts.
func isDeleted(props collection.Props) bool {
	active, ok := props["active"].(bool)
	return ok && !active
}
