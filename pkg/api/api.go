package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/absmach/flcoord/pkg/checkpoint"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
)

const (
	OffsetKey = "offset"
	LimitKey  = "limit"
	DefOffset = 0
	DefLimit  = 100

	ContentType     = "application/json"
	CBORContentType = "application/cbor"

	MaxLimitSize = 100
)

type errorRes struct {
	Err string `json:"error"`
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	if ar, ok := response.(supermq.Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(StatusCode(err))

	if err := json.NewEncoder(w).Encode(errorRes{Err: err.Error()}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// StatusCode maps coordinator errors onto HTTP statuses.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, apiutil.ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, fl.ErrInvalidStrategy),
		errors.Is(err, fl.ErrIncompatibleParameters):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apiutil.ErrValidation),
		errors.Is(err, pkgerrors.ErrEmptyKey),
		errors.Is(err, pkgerrors.ErrInvalidRequest),
		errors.Is(err, fl.ErrInvalidSampleCount),
		errors.Is(err, fl.ErrInvalidProject),
		errors.Is(err, fl.ErrInvalidID),
		errors.Is(err, checkpoint.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrNotFound),
		errors.Is(err, fl.ErrSessionNotFound),
		errors.Is(err, fl.ErrProjectNotFound),
		errors.Is(err, fl.ErrUnknownParticipant),
		errors.Is(err, fl.ErrNoActiveRound),
		errors.Is(err, checkpoint.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fl.ErrStaleRound),
		errors.Is(err, fl.ErrStaleVote),
		errors.Is(err, fl.ErrRoundClosed),
		errors.Is(err, fl.ErrDuplicateContribution),
		errors.Is(err, fl.ErrInvalidTransition),
		errors.Is(err, fl.ErrParticipantProjectMatch),
		errors.Is(err, pkgerrors.ErrEntityExists),
		errors.Is(err, checkpoint.ErrCheckpointExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
