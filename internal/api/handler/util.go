package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/platefare/restaurant-payouts/internal/api/middleware"
	"github.com/platefare/restaurant-payouts/internal/api/problem"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// requestActor resolves the restaurant from the auth context. Operator tokens
// may act on any restaurant, so the bool flags elevated access.
func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	operator := middleware.RoleFromContext(r.Context()) == "operator"

	restaurantID := middleware.RestaurantIDFromContext(r.Context())
	if restaurantID == "" {
		if operator {
			return uuid.Nil, true, nil
		}
		return uuid.Nil, false, errors.New("missing restaurant in auth context")
	}

	actorID, err := uuid.Parse(restaurantID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid restaurant_id in auth context")
	}

	return actorID, operator, nil
}

// pathRestaurantID parses the {id} route param and enforces tenant isolation:
// a restaurant token may only address its own resources.
func pathRestaurantID(r *http.Request, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errInvalidRestaurantID
	}

	actorID, operator, err := requestActor(r)
	if err != nil {
		return uuid.Nil, err
	}
	if !operator && actorID != id {
		return uuid.Nil, errForbidden
	}
	return id, nil
}

var (
	errForbidden           = errors.New("forbidden")
	errInvalidRestaurantID = errors.New("invalid restaurant id")
)

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
