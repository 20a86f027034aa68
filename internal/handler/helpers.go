package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/restaurant-pos/internal/inventory"
	"github.com/vasiliy-maslov/restaurant-pos/internal/menu"
	"github.com/vasiliy-maslov/restaurant-pos/internal/order"
	"github.com/vasiliy-maslov/restaurant-pos/internal/recipe"
	"github.com/vasiliy-maslov/restaurant-pos/internal/table"
	"github.com/vasiliy-maslov/restaurant-pos/internal/writeoff"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

var errMissingActor = errors.New("missing or invalid actor headers")

type ErrorResponse struct {
	Error string `json:"error"`
}

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

type ShortageResponse struct {
	Error     string              `json:"error"`
	Shortages []writeoff.Shortage `json:"shortages"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, errMissingActor):
		return http.StatusUnauthorized
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, inventory.ErrItemNotFound),
		errors.Is(err, recipe.ErrRecipeNotFound),
		errors.Is(err, table.ErrTableNotFound),
		errors.Is(err, menu.ErrMenuItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrOrderImmutable),
		errors.Is(err, order.ErrAlreadyPaid),
		errors.Is(err, order.ErrAlreadyWrittenOff),
		errors.Is(err, order.ErrConflict),
		errors.Is(err, inventory.ErrItemExists),
		errors.Is(err, inventory.ErrUnitLocked),
		errors.Is(err, recipe.ErrRecipeExists),
		errors.Is(err, table.ErrTableExists),
		errors.Is(err, table.ErrTableUnavailable),
		errors.Is(err, menu.ErrMenuItemExists),
		errors.Is(err, menu.ErrMenuItemUnavailable):
		return http.StatusConflict
	case errors.Is(err, writeoff.ErrInsufficientStock),
		errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrInvalidOrder),
		errors.Is(err, inventory.ErrInvalidItem),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, recipe.ErrInvalidRecipe),
		errors.Is(err, recipe.ErrUnknownIngredient),
		errors.Is(err, recipe.ErrUnitMismatch),
		errors.Is(err, recipe.ErrDuplicateIngredient),
		errors.Is(err, table.ErrInvalidTable),
		errors.Is(err, menu.ErrInvalidMenuItem):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError logs err and writes its mapped status. Internal
// errors are not echoed to the client.
func respondWithServiceError(w http.ResponseWriter, err error, action string) {
	code := mapErrorToStatusCode(err)
	if code == http.StatusInternalServerError {
		if errors.Is(err, inventory.ErrLedgerInconsistency) {
			log.Error().Err(err).Msg("Ledger inconsistency detected")
		} else {
			log.Error().Err(err).Msgf("Failed to %s via service", action)
		}
		respondWithError(w, code, "Failed to "+action)
		return
	}

	log.Warn().Err(err).Int("status", code).Msgf("Failed to %s", action)

	var shortage *writeoff.InsufficientStockError
	if errors.As(err, &shortage) {
		respondWithJSON(w, code, ShortageResponse{Error: shortage.Error(), Shortages: shortage.Shortages})
		return
	}
	respondWithError(w, code, err.Error())
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			details[field] = "is required"
		case "min":
			details[field] = fmt.Sprintf("must be at least %s", fe.Param())
		case "max":
			details[field] = fmt.Sprintf("must be at most %s", fe.Param())
		case "oneof":
			details[field] = fmt.Sprintf("must be one of [%s]", fe.Param())
		case "uuid4", "uuid":
			details[field] = "must be a valid UUID"
		default:
			details[field] = fmt.Sprintf("failed on '%s' validation", fe.Tag())
		}
	}
	return details
}

// jsonFieldName reports struct fields by their json tag in validation errors.
func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}

// decodeAndValidate reads a JSON body into dst and validates it. It writes the
// error response itself and reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload: %v", err))
		return false
	}

	if err := v.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
		} else {
			log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return false
	}
	return true
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	param := chi.URLParam(r, name)
	id, err := uuid.FromString(param)
	if err != nil {
		log.Warn().Err(err).Str(name, param).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return id, true
}

// actorFromRequest reads the acting staff member from request headers.
// Authentication happens upstream.
func actorFromRequest(r *http.Request) (order.Actor, error) {
	id, err := uuid.FromString(r.Header.Get(HeaderActorID))
	if err != nil || id == uuid.Nil {
		return order.Actor{}, errMissingActor
	}
	role := order.Role(strings.ToLower(r.Header.Get(HeaderActorRole)))
	if !role.Valid() {
		return order.Actor{}, fmt.Errorf("%w: unknown role %q", errMissingActor, role)
	}
	return order.Actor{ID: id, Role: role}, nil
}

func requireActor(w http.ResponseWriter, r *http.Request) (order.Actor, bool) {
	actor, err := actorFromRequest(r)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, err.Error())
		return order.Actor{}, false
	}
	return actor, true
}
