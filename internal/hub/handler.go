// ABOUTME: WebSocket accept loop, per-connection read pump, and envelope dispatch.
// ABOUTME: Also serves the direct build-delegation HTTP endpoint for collaborators.

package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/coder/websocket"

	"github.com/2389/forge-hub/internal/delegate"
	"github.com/2389/forge-hub/internal/protocol"
	"github.com/2389/forge-hub/internal/task"
)

const maxEnvelopeBytes = 10 << 20 // base64 artifacts ride in envelopes

// handleWS upgrades the connection and pumps envelopes until the agent
// disconnects, then cleans up its registry bindings.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(maxEnvelopeBytes)

	conn := newConn(ws, s.logger)
	defer s.cleanup(conn)

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				s.logger.Debug("read ended", "agent", conn.agentName(), "error", err)
			}
			return
		}

		// A payload that fails to parse is logged and skipped; the
		// connection stays up.
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn("malformed envelope", "agent", conn.agentName(), "error", err)
			continue
		}

		s.dispatch(ctx, conn, &env)
	}
}

// cleanup removes the connection's bindings and tells the remaining agents.
func (s *Server) cleanup(conn *Conn) {
	conn.close()
	for _, name := range s.registry.Remove(conn) {
		notice := protocol.New(protocol.TypeRegister)
		notice.Subtype = protocol.SubtypeSystem
		notice.Name = name
		notice.Text = "offline"
		s.router.Broadcast(notice)
	}
}

// dispatch handles one inbound envelope. Directed envelopes are forwarded
// unmodified; untargeted ones are the hub's own traffic.
func (s *Server) dispatch(ctx context.Context, conn *Conn, env *protocol.Envelope) {
	if s.seen.Seen(env.ID) {
		s.logger.Debug("duplicate envelope dropped", "id", env.ID, "type", env.Type)
		return
	}
	if env.User == "" {
		env.User = conn.agentName()
	}

	switch env.Type {
	case protocol.TypeRegister:
		s.handleRegister(conn, env)

	case protocol.TypeCommandResponse:
		if env.Target != "" {
			_ = s.router.RouteDirected(env.Target, env)
			return
		}
		s.routerDele.HandleResponse(env)

	case protocol.TypeCommand:
		if env.Target != "" {
			_ = s.router.RouteDirected(env.Target, env)
			return
		}
		s.engine.HandleCommand(ctx, env)

	case protocol.TypeTaskResponse:
		if env.Target != "" {
			_ = s.router.RouteDirected(env.Target, env)
			return
		}
		s.engine.HandleAnswer(ctx, env.TaskID, env.Answer)

	case protocol.TypeMessage:
		if env.Target != "" {
			_ = s.router.RouteDirected(env.Target, env)
			return
		}
		s.engine.HandleMessage(ctx, env.User, env.Text)

	case protocol.TypeTyping, protocol.TypeProgress:
		if env.Target != "" {
			_ = s.router.RouteDirected(env.Target, env)
			return
		}
		s.router.Broadcast(env)

	default:
		s.logger.Warn("envelope with unknown type", "type", env.Type, "agent", conn.agentName())
	}
}

// handleRegister binds the claimed name, welcomes the agent, and notifies
// everyone else of the new presence.
func (s *Server) handleRegister(conn *Conn, env *protocol.Envelope) {
	if env.Name == "" {
		s.logger.Warn("register without a name")
		return
	}
	conn.setAgentName(env.Name)
	s.registry.Register(env.Name, env.Role, conn)

	welcome := protocol.System(env.Name, "connected to forge-hub")
	if err := conn.Send(welcome); err != nil {
		s.logger.Debug("welcome not delivered", "agent", env.Name, "error", err)
	}

	notice := protocol.New(protocol.TypeRegister)
	notice.Subtype = protocol.SubtypeSystem
	notice.Name = env.Name
	notice.Role = env.Role
	notice.Text = "online"
	s.router.Broadcast(notice)
}

// handleBuild is the direct build-delegation endpoint: POST {command, args},
// answer {content?, response?, error?}. It bypasses the workflow and calls
// the worker synchronously.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req delegate.BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBuildResponse(w, http.StatusBadRequest, delegate.BuildResponse{Error: "invalid request body"})
		return
	}
	if req.Command != string(task.ActionBuild) && req.Command != string(task.ActionEdit) {
		writeBuildResponse(w, http.StatusBadRequest, delegate.BuildResponse{Error: "command must be build or edit"})
		return
	}

	version, _ := strconv.Atoi(req.Args["version"])
	if version < 1 {
		version = 1
	}
	t := &task.Task{
		ID:          req.Args["taskId"],
		Name:        req.Args["name"],
		Type:        req.Args["type"],
		Network:     req.Args["network"],
		Features:    req.Args["features"],
		EditRequest: req.Args["editRequest"],
		Version:     version,
	}

	res, err := s.delegator.Delegate(r.Context(), &task.DelegationRequest{
		Action: task.Action(req.Command),
		Task:   t,
	})
	if err != nil {
		s.logger.Warn("direct delegation failed", "command", req.Command, "error", err)
		writeBuildResponse(w, http.StatusBadGateway, delegate.BuildResponse{Error: err.Error()})
		return
	}

	writeBuildResponse(w, http.StatusOK, delegate.BuildResponse{
		Content:  res.Content,
		Response: res.Response,
	})
}

func writeBuildResponse(w http.ResponseWriter, status int, resp delegate.BuildResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
