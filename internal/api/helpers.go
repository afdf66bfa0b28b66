package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/schedule"
	"github.com/derekprior/courtsched/internal/store"
	"github.com/derekprior/courtsched/internal/tournament"
)

const maxBodyBytes = 1_048_576

type envelope map[string]any

// validationError is a client mistake in the request itself.
type validationError struct {
	msg string
}

func (e validationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return validationError{msg: fmt.Sprintf(format, args...)}
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return invalid("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return invalid("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return invalid("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return invalid("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return invalid("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return invalid("body contains unknown key %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
		case errors.As(err, &maxBytesError):
			return invalid("body must not be larger than %d bytes", maxBodyBytes)
		default:
			// Clock.UnmarshalJSON and friends
			return invalid("%v", err)
		}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalid("body must only contain a single JSON value")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	js, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("encoding response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(js, '\n'))
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, envelope{"error": message})
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	var ve validationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrAlreadyRegistered),
		errors.Is(err, store.ErrMatchAlreadyBooked),
		errors.Is(err, store.ErrInUse),
		errors.Is(err, tournament.ErrWrongPhase),
		errors.Is(err, tournament.ErrMatchNotPending):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidTeam),
		errors.Is(err, tournament.ErrNotEnoughTeams),
		errors.Is(err, tournament.ErrTeamNotInMatch),
		errors.Is(err, tournament.ErrInvalidScore),
		errors.Is(err, schedule.ErrInvalidInterval),
		errors.Is(err, schedule.ErrNoPendingMatches),
		errors.Is(err, schedule.ErrNoCourts):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) mapError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.errorResponse(w, status, "the server encountered a problem and could not process your request")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// dateRange reads the optional from/to query parameters. Missing bounds are
// open.
func dateRange(r *http.Request) (from, to time.Time, err error) {
	from = time.Time{}
	to = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = model.ParseDate(v); err != nil {
			return from, to, invalid("from: %v", err)
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = model.ParseDate(v); err != nil {
			return from, to, invalid("to: %v", err)
		}
	}
	if to.Before(from) {
		return from, to, invalid("to must not be before from")
	}
	return from, to, nil
}

func boolParam(r *http.Request, name string) (*bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, invalid("%s must be true or false", name)
	}
	return &b, nil
}
