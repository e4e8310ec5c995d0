package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/api"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxContributionSize bounds a single contribution body.
const maxContributionSize = 1024 * 1024 * 256

func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Route("/projects", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			createProjectEndpoint(svc),
			decodeProjectReq,
			api.EncodeResponse,
			opts...,
		), "create-project").ServeHTTP)
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listProjectsEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-projects").ServeHTTP)
		r.Route("/{projectID}", func(r chi.Router) {
			r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
				getProjectEndpoint(svc),
				decodeEntityReq("projectID"),
				api.EncodeResponse,
				opts...,
			), "get-project").ServeHTTP)
			r.Post("/sessions", otelhttp.NewHandler(kithttp.NewServer(
				startSessionEndpoint(svc),
				decodeEntityReq("projectID"),
				api.EncodeResponse,
				opts...,
			), "start-session").ServeHTTP)
			r.Get("/sessions", otelhttp.NewHandler(kithttp.NewServer(
				listSessionsEndpoint(svc),
				decodeEntityReq("projectID"),
				api.EncodeResponse,
				opts...,
			), "list-sessions").ServeHTTP)
			r.Post("/votes", otelhttp.NewHandler(kithttp.NewServer(
				castVoteEndpoint(svc),
				decodeVoteReq,
				api.EncodeResponse,
				opts...,
			), "cast-vote").ServeHTTP)
			r.Post("/participants", otelhttp.NewHandler(kithttp.NewServer(
				registerParticipantEndpoint(svc),
				decodeParticipantReq,
				api.EncodeResponse,
				opts...,
			), "register-participant").ServeHTTP)
			r.Get("/participants", otelhttp.NewHandler(kithttp.NewServer(
				listParticipantsEndpoint(svc),
				decodeEntityReq("projectID"),
				api.EncodeResponse,
				opts...,
			), "list-participants").ServeHTTP)
			r.Get("/checkpoints/latest", otelhttp.NewHandler(kithttp.NewServer(
				latestCheckpointEndpoint(svc),
				decodeEntityReq("projectID"),
				api.EncodeResponse,
				opts...,
			), "latest-checkpoint").ServeHTTP)
			r.Get("/training/status", otelhttp.NewHandler(kithttp.NewServer(
				trainingStatusEndpoint(svc),
				decodeEntityReq("projectID"),
				api.EncodeResponse,
				opts...,
			), "training-status").ServeHTTP)
		})
	})

	mux.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			getSessionStatusEndpoint(svc),
			decodeEntityReq("sessionID"),
			api.EncodeResponse,
			opts...,
		), "get-session-status").ServeHTTP)
		r.Post("/cancel", otelhttp.NewHandler(kithttp.NewServer(
			cancelSessionEndpoint(svc),
			decodeEntityReq("sessionID"),
			api.EncodeResponse,
			opts...,
		), "cancel-session").ServeHTTP)
		r.Post("/voting/close", otelhttp.NewHandler(kithttp.NewServer(
			closeVotingEndpoint(svc),
			decodeEntityReq("sessionID"),
			api.EncodeResponse,
			opts...,
		), "close-voting").ServeHTTP)
		r.Get("/instructions", otelhttp.NewHandler(kithttp.NewServer(
			fetchInstructionsEndpoint(svc),
			decodeEntityReq("sessionID"),
			api.EncodeResponse,
			opts...,
		), "fetch-round-instructions").ServeHTTP)
		r.Post("/contributions", otelhttp.NewHandler(kithttp.NewServer(
			submitContributionEndpoint(svc),
			decodeContributionReq,
			api.EncodeResponse,
			opts...,
		), "submit-contribution").ServeHTTP)
		r.Get("/rounds", otelhttp.NewHandler(kithttp.NewServer(
			listRoundsEndpoint(svc),
			decodeEntityReq("sessionID"),
			api.EncodeResponse,
			opts...,
		), "list-round-results").ServeHTTP)
		r.Get("/checkpoints", otelhttp.NewHandler(kithttp.NewServer(
			listCheckpointsEndpoint(svc),
			decodeEntityReq("sessionID"),
			api.EncodeResponse,
			opts...,
		), "list-checkpoints").ServeHTTP)
	})

	mux.Post("/participants/{participantID}/heartbeat", otelhttp.NewHandler(kithttp.NewServer(
		heartbeatEndpoint(svc),
		decodeEntityReq("participantID"),
		api.EncodeResponse,
		opts...,
	), "heartbeat").ServeHTTP)

	mux.Get("/checkpoints/{checkpointID}", otelhttp.NewHandler(kithttp.NewServer(
		getCheckpointEndpoint(svc),
		decodeEntityReq("checkpointID"),
		api.EncodeResponse,
		opts...,
	), "get-checkpoint").ServeHTTP)

	mux.Get("/events", events.WebSocketHandler(svc.Subscribe, logger))
	mux.Get("/health", supermq.Health("flcoord", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeEntityReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return entityReq{
			id: chi.URLParam(r, key),
		}, nil
	}
}

func decodeListEntityReq(_ context.Context, r *http.Request) (any, error) {
	o, err := apiutil.ReadNumQuery[uint64](r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	l, err := apiutil.ReadNumQuery[uint64](r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listEntityReq{
		offset: o,
		limit:  l,
	}, nil
}

func decodeProjectReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req projectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodeVoteReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req voteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}
	req.projectID = chi.URLParam(r, "projectID")

	return req, nil
}

func decodeParticipantReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req participantReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}
	req.projectID = chi.URLParam(r, "projectID")

	return req, nil
}

// decodeContributionReq accepts JSON or CBOR bodies. The session in the path
// wins over any session named in the body.
func decodeContributionReq(_ context.Context, r *http.Request) (any, error) {
	var req contributionReq
	body := io.LimitReader(r.Body, maxContributionSize)

	switch ct := r.Header.Get("Content-Type"); {
	case strings.Contains(ct, api.CBORContentType):
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, errors.Join(err, apiutil.ErrValidation)
		}
		if err := fl.UnmarshalCBOR(data, &req.Contribution); err != nil {
			return nil, errors.Join(err, apiutil.ErrValidation)
		}
	case strings.Contains(ct, api.ContentType):
		if err := json.NewDecoder(body).Decode(&req.Contribution); err != nil {
			return nil, errors.Join(err, apiutil.ErrValidation)
		}
	default:
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}
	req.SessionID = chi.URLParam(r, "sessionID")

	return req, nil
}
