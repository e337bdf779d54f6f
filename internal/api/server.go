package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"codeduel/internal/broadcast"
	"codeduel/internal/match"
	"codeduel/internal/util/httputil"
	"codeduel/internal/util/slogx"
	"codeduel/internal/util/websockutil"
)

type ServerOptions struct {
	WebSocket websockutil.Options `toml:"websocket"`
}

func (o *ServerOptions) FillDefaults() {
	o.WebSocket.FillDefaults()
}

type Server struct {
	log      *slog.Logger
	mgr      *match.Manager
	hub      *broadcast.Hub
	sessions *websockutil.SessionFactory
}

func NewServer(log *slog.Logger, mgr *match.Manager, hub *broadcast.Hub, o ServerOptions) *Server {
	o.FillDefaults()
	return &Server{
		log:      log,
		mgr:      mgr,
		hub:      hub,
		sessions: websockutil.NewSessionFactory(o.WebSocket),
	}
}

func httpStatus(code match.ErrorCode) int {
	switch code {
	case match.ErrInvalidParameters, match.ErrSelfJoin, match.ErrInvalidProblem:
		return http.StatusBadRequest
	case match.ErrNotFound:
		return http.StatusNotFound
	case match.ErrForbidden:
		return http.StatusForbidden
	case match.ErrInvalidState, match.ErrAlreadyStarted, match.ErrFull, match.ErrNoOpponent, match.ErrAlreadySolved:
		return http.StatusConflict
	case match.ErrVerificationFailed:
		return http.StatusUnprocessableEntity
	case match.ErrUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn("error marshalling json", slogx.Err(err))
		if err := httputil.WriteErrorResponse(errors.New("marshal json response"), w); err != nil {
			log.Info("error writing error response", slogx.Err(err))
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Info("error writing response", slogx.Err(err))
	}
}

func writeError(log *slog.Logger, w http.ResponseWriter, err error) {
	var mErr *match.Error
	if errors.As(err, &mErr) {
		writeJSON(log, w, httpStatus(mErr.Code), &Error{
			Code:    mErr.Code.String(),
			Message: mErr.Message,
		})
		return
	}
	log.Warn("handler failed", slogx.Err(err))
	if err := httputil.WriteErrorResponse(err, w); err != nil {
		log.Info("error writing error response", slogx.Err(err))
	}
}

func requestUser(req *http.Request) string {
	return req.Header.Get("X-User-ID")
}

func makeHandler[Req any, Rsp any](
	s *Server,
	method string,
	fn func(ctx context.Context, userID string, req *Req) (*Rsp, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, hReq *http.Request) {
		hReq = httputil.WrapRequest(hReq)
		log := s.log.With(
			slog.String("addr", hReq.RemoteAddr),
			slog.String("method", method),
			slog.String("rid", httputil.ExtractReqID(hReq.Context())),
		)
		log.Info("handle api request")

		reqBytes, err := io.ReadAll(hReq.Body)
		if err != nil {
			log.Info("error reading request", slogx.Err(err))
			return
		}
		var req Req
		if len(reqBytes) != 0 {
			if err := json.Unmarshal(reqBytes, &req); err != nil {
				log.Warn("error unmarshalling json", slogx.Err(err))
				writeError(log, w, httputil.MakeError(http.StatusBadRequest, "unmarshal json request"))
				return
			}
		}

		rsp, err := fn(hReq.Context(), requestUser(hReq), &req)
		if err != nil {
			writeError(log, w, err)
			return
		}
		writeJSON(log, w, http.StatusOK, rsp)
	}
}

func (s *Server) handleCreate(ctx context.Context, userID string, req *CreateMatchRequest) (*CreateMatchResponse, error) {
	m, err := s.mgr.Create(ctx, userID, match.CreateParams{
		DifficultyMin: req.DifficultyMin,
		DifficultyMax: req.DifficultyMax,
		ProblemCount:  req.ProblemCount,
		Duration:      time.Duration(req.DurationMinutes) * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	return &CreateMatchResponse{Match: m}, nil
}

func (s *Server) handleJoin(ctx context.Context, userID string, req *JoinMatchRequest) (*JoinMatchResponse, error) {
	m, err := s.mgr.Join(ctx, userID, req.Code)
	if err != nil {
		return nil, err
	}
	return &JoinMatchResponse{Match: m}, nil
}

func (s *Server) handleStart(ctx context.Context, userID string, req *StartMatchRequest) (*StartMatchResponse, error) {
	m, err := s.mgr.Start(ctx, userID, req.MatchID)
	if err != nil {
		return nil, err
	}
	return &StartMatchResponse{Match: m}, nil
}

func (s *Server) handleSubmit(ctx context.Context, userID string, req *SubmitRequest) (*SubmitResponse, error) {
	solve, err := s.mgr.Submit(ctx, userID, req.MatchID, req.ProblemID, req.SubmissionID)
	if err != nil {
		return nil, err
	}
	return &SubmitResponse{Solve: solve}, nil
}

func (s *Server) handleLinkHandle(ctx context.Context, userID string, req *LinkHandleRequest) (*LinkHandleResponse, error) {
	if err := s.mgr.LinkHandle(ctx, userID, req.Handle); err != nil {
		return nil, err
	}
	return &LinkHandleResponse{}, nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, hReq *http.Request) {
	hReq = httputil.WrapRequest(hReq)
	log := s.log.With(
		slog.String("addr", hReq.RemoteAddr),
		slog.String("method", "snapshot"),
		slog.String("rid", httputil.ExtractReqID(hReq.Context())),
	)
	snap, err := s.mgr.GetSnapshot(hReq.Context(), requestUser(hReq), hReq.PathValue("matchID"))
	if err != nil {
		writeError(log, w, err)
		return
	}
	writeJSON(log, w, http.StatusOK, snap)
}

func (s *Server) handleList(w http.ResponseWriter, hReq *http.Request) {
	hReq = httputil.WrapRequest(hReq)
	log := s.log.With(
		slog.String("addr", hReq.RemoteAddr),
		slog.String("method", "list"),
		slog.String("rid", httputil.ExtractReqID(hReq.Context())),
	)
	matches, err := s.mgr.ListForUser(hReq.Context(), requestUser(hReq))
	if err != nil {
		writeError(log, w, err)
		return
	}
	writeJSON(log, w, http.StatusOK, &ListMatchesResponse{Matches: matches})
}

func (s *Server) Register(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("POST "+prefix+"/matches", makeHandler(s, "create", s.handleCreate))
	mux.HandleFunc("POST "+prefix+"/matches/join", makeHandler(s, "join", s.handleJoin))
	mux.HandleFunc("POST "+prefix+"/matches/start", makeHandler(s, "start", s.handleStart))
	mux.HandleFunc("POST "+prefix+"/matches/submit", makeHandler(s, "submit", s.handleSubmit))
	mux.HandleFunc("POST "+prefix+"/users/link", makeHandler(s, "link", s.handleLinkHandle))
	mux.HandleFunc("GET "+prefix+"/matches", s.handleList)
	mux.HandleFunc("GET "+prefix+"/matches/{matchID}", s.handleSnapshot)
	mux.HandleFunc("GET "+prefix+"/matches/{matchID}/ws", s.handleWebSocket)
}
