package participant

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strings"
)

var (
	dobRegex   = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`)
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// FieldError is one itemized validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of Validate. On success Participant holds
// the normalized record.
type ValidationResult struct {
	Errors      []FieldError
	Participant Participant
}

func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

func IsValidDate(dob string) bool {
	return dobRegex.MatchString(dob)
}

func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// Validate checks a request in three stages: required fields, formats, types.
// Errors are itemized in that order; a field missing in the first stage is not
// checked again later.
func Validate(req Request) ValidationResult {
	var res ValidationResult
	missing := make(map[string]bool)

	typed := make(map[string]bool, len(req.TypeErrors))
	for _, fe := range req.TypeErrors {
		typed[fe.Field] = true
	}

	require := func(field string, present bool) {
		if !present {
			missing[field] = true
			if !typed[field] {
				res.Errors = append(res.Errors, FieldError{Field: field, Message: "is required"})
			}
		}
	}

	require("email", !blank(req.Email))
	require("firstName", !blank(req.FirstName))
	require("lastName", !blank(req.LastName))
	require("dob", !blank(req.DOB))
	require("work", req.Work != nil)
	if req.Work != nil {
		require("work.companyName", !blank(req.Work.CompanyName))
		require("work.salary", present(req.Work.Salary))
		require("work.currency", !blank(req.Work.Currency))
	}
	require("home", req.Home != nil)
	if req.Home != nil {
		require("home.country", !blank(req.Home.Country))
		require("home.city", !blank(req.Home.City))
	}
	require("active", present(req.Active))

	if !missing["dob"] && !IsValidDate(req.DOB) {
		res.Errors = append(res.Errors, FieldError{Field: "dob", Message: "invalid date of birth, correct format is YYYY/MM/DD"})
	}
	if !missing["email"] && !IsValidEmail(req.Email) {
		res.Errors = append(res.Errors, FieldError{Field: "email", Message: "invalid email address"})
	}

	res.Errors = append(res.Errors, req.TypeErrors...)

	active, activeOK := parseBool(req.Active)
	if !missing["active"] && !activeOK {
		res.Errors = append(res.Errors, FieldError{Field: "active", Message: "invalid active status, must be true or false"})
	}

	var salary float64
	if req.Work != nil && !missing["work.salary"] {
		var ok bool
		salary, ok = parseNumber(req.Work.Salary)
		if !ok {
			res.Errors = append(res.Errors, FieldError{Field: "work.salary", Message: "invalid salary value, salary must be a number"})
		}
	}

	if !res.OK() {
		return res
	}

	res.Participant = Participant{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		DOB:       req.DOB,
		Work: Work{
			CompanyName: req.Work.CompanyName,
			Salary:      salary,
			Currency:    req.Work.Currency,
		},
		Home: Home{
			Country: req.Home.Country,
			City:    req.Home.City,
		},
		Active: active,
	}
	return res
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func parseBool(raw json.RawMessage) (bool, bool) {
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, false
	}
	return v, true
}

func parseNumber(raw json.RawMessage) (float64, bool) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
