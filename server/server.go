/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
// Package server wraps command.Dispatcher with a thin HTTP adapter: one
// POST /command endpoint, HMAC-signed, plus a websocket broadcaster for
// flush/compaction notifications. Grounded on server-node-golang's
// scm/network.go, which wired an http.Server and a gorilla/websocket
// upgrader directly over a scheme callback the same shallow way this
// package wires them over Dispatcher.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sneldb/sneldb/command"
	"github.com/sneldb/sneldb/snelerr"
)

// Server is the /command HTTP adapter. Auth.Secrets being empty means
// every request is rejected, not that auth is disabled — a Server
// always requires a signed request.
type Server struct {
	Dispatcher  *command.Dispatcher
	Auth        Auth
	Broadcaster *Broadcaster
}

// New builds a Server over dispatcher, authenticating requests against
// auth and exposing broadcaster's notifications over /ws.
func New(dispatcher *command.Dispatcher, auth Auth, broadcaster *Broadcaster) *Server {
	return &Server{Dispatcher: dispatcher, Auth: auth, Broadcaster: broadcaster}
}

// Routes returns an http.ServeMux wired to /command and /ws.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", s.handleCommand)
	if s.Broadcaster != nil {
		mux.HandleFunc("/ws", s.Broadcaster.ServeWS)
	}
	return mux
}

type response struct {
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "command: expected POST"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "command: cannot read body"})
		return
	}

	user := r.Header.Get("X-Auth-User")
	sig := r.Header.Get("X-Auth-Signature")
	if !s.Auth.Verify(user, body, sig) {
		writeJSON(w, http.StatusUnauthorized, response{Status: "error", Error: "command: unauthorized"})
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "command: malformed body"})
		return
	}

	result, err := s.dispatch(r.Context(), env)
	if err != nil {
		writeJSON(w, statusFor(err), response{Status: "error", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, response{Status: "ok", Result: result})
}

func (s *Server) dispatch(ctx context.Context, env envelope) (any, error) {
	switch env.Kind {
	case "DEFINE":
		if env.Define == nil {
			return nil, snelerr.New(snelerr.BadRequest, "command: DEFINE requires a body")
		}
		cmd, err := env.Define.toCommand()
		if err != nil {
			return nil, snelerr.Wrap(snelerr.BadRequest, err, "command: DEFINE")
		}
		return s.Dispatcher.Define(ctx, cmd)

	case "STORE":
		if env.Store == nil {
			return nil, snelerr.New(snelerr.BadRequest, "command: STORE requires a body")
		}
		return s.Dispatcher.Store(ctx, env.Store.toCommand())

	case "QUERY":
		if env.Query == nil {
			return nil, snelerr.New(snelerr.BadRequest, "command: QUERY requires a body")
		}
		req, err := env.Query.toRequest()
		if err != nil {
			return nil, snelerr.Wrap(snelerr.BadRequest, err, "command: QUERY")
		}
		return s.Dispatcher.Query(ctx, command.Query{Request: req})

	case "REPLAY":
		if env.Replay == nil {
			return nil, snelerr.New(snelerr.BadRequest, "command: REPLAY requires a body")
		}
		return s.Dispatcher.Replay(ctx, env.Replay.toCommand())

	case "FLUSH":
		if err := s.Dispatcher.Flush(ctx); err != nil {
			return nil, err
		}
		if s.Broadcaster != nil {
			s.Broadcaster.Notify("flush", nil)
		}
		return "ok", nil

	case "REMEMBER":
		if env.Remember == nil {
			return nil, snelerr.New(snelerr.BadRequest, "command: REMEMBER requires a body")
		}
		cmd, err := env.Remember.toCommand()
		if err != nil {
			return nil, snelerr.Wrap(snelerr.BadRequest, err, "command: REMEMBER")
		}
		snap, err := s.Dispatcher.Remember(ctx, cmd)
		if err != nil {
			return nil, err
		}
		if s.Broadcaster != nil {
			s.Broadcaster.Notify("remember", cmd.Name)
		}
		return snap, nil

	case "COMPARE":
		if env.Compare == nil {
			return nil, snelerr.New(snelerr.BadRequest, "command: COMPARE requires a body")
		}
		cmd, err := env.Compare.toCommand()
		if err != nil {
			return nil, snelerr.Wrap(snelerr.BadRequest, err, "command: COMPARE")
		}
		return s.Dispatcher.Compare(ctx, cmd)

	default:
		return nil, snelerr.New(snelerr.BadRequest, "command: unknown kind "+env.Kind)
	}
}

// statusFor maps a dispatch error's snelerr.Kind to the wire's fixed
// status code set: 400 for anything the caller got wrong or that the
// store can't make sense of, 503 when the store is applying
// backpressure, 500 otherwise.
func statusFor(err error) int {
	switch snelerr.KindOf(err) {
	case snelerr.BadRequest, snelerr.NotFound, snelerr.Corrupt:
		return http.StatusBadRequest
	case snelerr.Busy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
