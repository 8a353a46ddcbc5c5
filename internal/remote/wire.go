package remote

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"actas-cli/internal/lifecycle"
	"actas-cli/internal/model"
)

const (
	CodeVersionConflict   = "version_conflict"
	CodeInvalidTransition = "invalid_transition"
	CodeValidationFailed  = "validation_failed"
	CodeNotFound          = "not_found"
	CodeInvalidRequest    = "invalid_request"
	CodeInternal          = "internal"
)

type ListResponse struct {
	Actas []model.Acta `json:"actas"`
}

type CreateMissingRequest struct {
	Year   int          `json:"year" validate:"gt=0"`
	Term   string       `json:"term" validate:"required,excludesall=:"`
	Filter model.Filter `json:"filter"`
}

type CreateMissingResponse struct {
	Created int `json:"created"`
}

type BulkRequest struct {
	Refs []string `json:"refs" validate:"required,min=1,dive,required"`
}

// ErrorBody is the JSON body of every non-2xx answer.
type ErrorBody struct {
	Error    string          `json:"error"`
	Message  string          `json:"message"`
	Ref      string          `json:"ref,omitempty"`
	Expected int64           `json:"expected,omitempty"`
	Current  int64           `json:"current,omitempty"`
	Op       model.Operation `json:"op,omitempty"`
	From     model.Status    `json:"from,omitempty"`
	Errors   []string        `json:"errors,omitempty"`
}

// BodyFromError maps a service error to its HTTP status and body.
func BodyFromError(err error) (int, ErrorBody) {
	var (
		ce ConflictError
		it lifecycle.InvalidTransitionError
		vf lifecycle.ValidationFailedError
		nf model.NotFoundError
	)
	switch {
	case errors.As(err, &ce):
		return http.StatusConflict, ErrorBody{Error: CodeVersionConflict, Message: err.Error(), Ref: ce.Ref, Expected: ce.Expected, Current: ce.Current}
	case errors.As(err, &it):
		return http.StatusConflict, ErrorBody{Error: CodeInvalidTransition, Message: err.Error(), Ref: it.Ref, Op: it.Op, From: it.From}
	case errors.As(err, &vf):
		return http.StatusUnprocessableEntity, ErrorBody{Error: CodeValidationFailed, Message: err.Error(), Ref: vf.Ref, Errors: vf.Errors}
	case errors.As(err, &nf):
		return http.StatusNotFound, ErrorBody{Error: CodeNotFound, Message: err.Error(), Ref: nf.ID}
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, ErrorBody{Error: CodeInvalidRequest, Message: err.Error()}
	}
	return http.StatusInternalServerError, ErrorBody{Error: CodeInternal, Message: err.Error()}
}

// ErrorFromBody rebuilds the typed error on the client side. Codes this
// client does not know come back as TransientError so queued work is kept.
func ErrorFromBody(op string, status int, b ErrorBody) error {
	switch b.Error {
	case CodeVersionConflict:
		return ConflictError{Ref: b.Ref, Expected: b.Expected, Current: b.Current}
	case CodeInvalidTransition:
		return lifecycle.InvalidTransitionError{Ref: b.Ref, Op: b.Op, From: b.From}
	case CodeValidationFailed:
		return lifecycle.ValidationFailedError{Ref: b.Ref, Errors: b.Errors}
	case CodeNotFound:
		return model.NotFoundError{Kind: "acta", ID: b.Ref}
	case CodeInvalidRequest:
		return RejectedError{Status: status, Code: b.Error, Message: b.Message}
	}
	return TransientError{Op: op, Err: fmt.Errorf("unknown error code %q (%d): %s", b.Error, status, b.Message)}
}

func FormatETag(version int64) string { return `"` + strconv.FormatInt(version, 10) + `"` }

// ParseETag accepts 7, "7" and W/"7".
func ParseETag(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "W/")
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, model.InputError{Err: errors.New("invalid version tag " + strconv.Quote(s))}
	}
	return v, nil
}

// FilterQuery encodes f as URL query parameters matching the server's `query` tags.
func FilterQuery(f model.Filter) url.Values {
	q := url.Values{}
	if f.Year != 0 {
		q.Set("year", strconv.Itoa(f.Year))
	}
	set := func(k, v string) {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	set("term", f.Term)
	set("nivel", f.Nivel)
	set("grado", f.Grado)
	set("seccion", f.Seccion)
	set("sectionId", f.SectionID)
	set("subjectId", f.SubjectID)
	set("status", string(f.Status))
	return q
}

func ActaPath(ref string) string { return "/v1/actas/" + url.PathEscape(ref) }
