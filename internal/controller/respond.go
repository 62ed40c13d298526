package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/logging"
	"github.com/unclebandit/certificate-service/internal/service"
)

var validate = validator.New()

// requestError is a malformed or invalid request body, path or query.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps a service error to its response status.
func HTTPStatus(err error) int {
	var (
		reqErr    *requestError
		colErr    *appErrors.ColumnNotFoundError
		malformed *appErrors.MalformedInputError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case appErrors.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &colErr), errors.As(err, &malformed):
		return http.StatusUnprocessableEntity
	case appErrors.IsInvalidState(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return badRequest("validation error: %s - %s", verrs[0].Field(), verrs[0].Tag())
		}
		return badRequest("validation error: invalid request")
	}
	return nil
}

func pathID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, badRequest("invalid %s", key)
	}
	return id, nil
}

func queryID(r *http.Request, key string) (*uuid.UUID, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, badRequest("invalid %s", key)
	}
	return &id, nil
}

// pageFrom reads page, page_size and owner_group_id. Out-of-range paging
// values fall back to defaults.
func pageFrom(r *http.Request) (service.Page, error) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	owner, err := queryID(r, "owner_group_id")
	if err != nil {
		return service.Page{}, err
	}
	return service.Page{OwnerGroupID: owner, Page: page, PageSize: pageSize}, nil
}

func async(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	return v
}

func listResponse(data any, pagination map[string]int) map[string]any {
	return map[string]any{
		"data":       data,
		"pagination": pagination,
	}
}
