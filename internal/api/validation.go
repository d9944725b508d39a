package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/roach88/fieldsync/internal/mutation"
)

// EnqueueRequest is the payload for POST /v1/mutations.
type EnqueueRequest struct {
	URL    string          `json:"url" validate:"required"`
	Method string          `json:"method" validate:"required,mutation_method"`
	Body   json.RawMessage `json:"body,omitempty"`
	TempID *int64          `json:"temp_id,omitempty" validate:"omitempty,ne=0"`
}

// ConnectivityRequest is the payload for PUT /v1/connectivity.
type ConnectivityRequest struct {
	Connected *bool `json:"connected" validate:"required"`
}

// CacheEntryRequest is one element of the PUT /v1/cache/:collection payload.
type CacheEntryRequest struct {
	Key  string          `json:"key" validate:"required"`
	Data json.RawMessage `json:"data" validate:"required"`
}

// newValidator returns a validator with the mutation_method rule registered.
func newValidator() *validatorv10.Validate {
	v := validatorv10.New()
	_ = v.RegisterValidation("mutation_method", func(fl validatorv10.FieldLevel) bool {
		_, err := mutation.ParseMethod(fl.Field().String())
		return err == nil
	})
	return v
}

// bindAndValidate binds the JSON body into out and runs validation.
// On failure it writes a 400 and returns an error for the handler to
// short-circuit.
func bindAndValidate(c *gin.Context, out any, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_request_body",
			"msg":   err.Error(),
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": validationErrorsToMap(err),
		})
		return err
	}
	return nil
}

// bindAndValidateEach binds a JSON array and validates every element.
func bindAndValidateEach[T any](c *gin.Context, v *validatorv10.Validate) ([]T, error) {
	var items []T
	if err := c.ShouldBindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_request_body",
			"msg":   err.Error(),
		})
		return nil, err
	}

	fields := map[string]string{}
	for i := range items {
		if err := v.Struct(items[i]); err != nil {
			for k, msg := range validationErrorsToMap(err) {
				fields["["+strconv.Itoa(i)+"]."+k] = msg
			}
		}
	}
	if len(fields) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": fields,
		})
		return nil, errors.New("validation failed")
	}
	return items, nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.StructNamespace()] = fe.Error()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
