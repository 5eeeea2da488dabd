package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps the engine error taxonomy to HTTP status codes and
// sends the error message as JSON.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrRouteNotFound), errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRouteExists),
		errors.Is(err, domain.ErrAlreadyActive),
		errors.Is(err, domain.ErrAlreadyInactive),
		errors.Is(err, domain.ErrAlreadyInitialized):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrCooldownActive),
		errors.Is(err, domain.ErrCallerInactive),
		errors.Is(err, domain.ErrNothingToHarvest),
		errors.Is(err, domain.ErrNoPendingRewards),
		errors.Is(err, domain.ErrNothingToExit),
		errors.Is(err, domain.ErrTreasuryUnset),
		errors.Is(err, domain.ErrInsufficient):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrReentrantCall):
		status = http.StatusLocked
	case errors.Is(err, domain.ErrZeroAddress),
		errors.Is(err, domain.ErrZeroAmount),
		errors.Is(err, domain.ErrAssetMismatch),
		errors.Is(err, domain.ErrInvalidFraction),
		errors.Is(err, domain.ErrInvalidPath):
		status = http.StatusBadRequest
	}
	writeError(w, status, err.Error())
}

// parseLimit extracts the "limit" query parameter. Defaults to 50, capped at
// 500.
func parseLimit(r *http.Request) int {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// parseAddress parses a hex address, rejecting malformed and zero values.
func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("address must not be zero")
	}
	return addr, nil
}

// parseAmount parses a positive decimal big integer.
func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a decimal integer", s)
	}
	if n.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return n, nil
}

// parseFraction parses a 1e18-scaled decimal string into a Fraction.
func parseFraction(s string) (domain.Fraction, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return domain.Fraction{}, fmt.Errorf("%q is not a decimal integer", s)
	}
	return domain.NewFraction(n)
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
