package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"codeduel/internal/util/httputil"
	"codeduel/internal/util/slogx"
)

// wsHello is the first frame of the event stream: the full current state, so
// a freshly connected or reconnecting client needs no separate snapshot
// fetch to catch up with anything it missed.
type wsHello struct {
	Kind     string `json:"kind"`
	Snapshot any    `json:"snapshot"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, hReq *http.Request) {
	hReq = httputil.WrapRequest(hReq)
	log := s.log.With(
		slog.String("addr", hReq.RemoteAddr),
		slog.String("method", "ws"),
		slog.String("rid", httputil.ExtractReqID(hReq.Context())),
	)
	matchID := hReq.PathValue("matchID")

	// Participant check before the upgrade, so outsiders get a proper HTTP
	// error instead of a dropped socket.
	snap, err := s.mgr.GetSnapshot(hReq.Context(), requestUser(hReq), matchID)
	if err != nil {
		writeError(log, w, err)
		return
	}

	session, err := s.sessions.NewSession(w, hReq, log, func([]byte) error {
		// The stream is one-way, clients have nothing to say here.
		return nil
	})
	if err != nil {
		return
	}
	defer session.Close()

	sub := s.hub.Subscribe(matchID)
	defer sub.Close()

	hello, err := json.Marshal(&wsHello{Kind: "hello", Snapshot: snap})
	if err != nil {
		log.Warn("error marshalling hello", slogx.Err(err))
		return
	}
	if err := session.WriteMsg(websocket.TextMessage, hello); err != nil {
		return
	}

	log.Info("event stream attached", slog.String("match_id", matchID))
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(&ev)
			if err != nil {
				log.Warn("error marshalling event", slogx.Err(err))
				continue
			}
			if err := session.WriteMsg(websocket.TextMessage, data); err != nil {
				return
			}
		case <-session.Done():
			return
		case <-hReq.Context().Done():
			session.Shutdown()
			return
		}
	}
}
