// Package gateway bridges the client library to a local UI over
// WebSocket: every room change goes out as a snapshot frame, and command
// frames drive the client. It renders nothing itself.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/make24/make24/internal/client"
	"github.com/make24/make24/internal/engine"
)

// Command is one frame from the UI.
type Command struct {
	Action   string `json:"action"`
	Name     string `json:"name,omitempty"`
	Code     string `json:"code,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
	CardID   string `json:"cardId,omitempty"`
	CardA    string `json:"cardA,omitempty"`
	CardB    string `json:"cardB,omitempty"`
	Op       string `json:"op,omitempty"`
	TargetID string `json:"targetId,omitempty"`
}

// frame is one message to the UI.
type frame struct {
	Type     string           `json:"type"`
	Snapshot *client.Snapshot `json:"snapshot,omitempty"`
	RoomID   string           `json:"roomId,omitempty"`
	PlayerID string           `json:"playerId,omitempty"`
	Restored int              `json:"restoredScore,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// Service owns the HTTP surface of one player's daemon.
type Service struct {
	client  *client.Client
	manager *Manager
}

// NewService wires the gateway to a client and subscribes to its
// snapshot stream.
func NewService(c *client.Client, config ConnConfig) *Service {
	s := &Service{client: c}
	s.manager = NewManager(config, s.handleCommand)
	c.OnChange(func(snap client.Snapshot) {
		s.broadcastSnapshot(snap)
	})
	return s
}

// Handler returns the HTTP handler with CORS applied, ready to serve.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return cors.Default().Handler(mux)
}

// Close drops every UI connection.
func (s *Service) Close() {
	s.manager.Close()
}

func (s *Service) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.manager.Upgrade(w, r)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	// A fresh tab renders from the current state immediately.
	snap := s.client.Snapshot()
	s.sendFrame(conn, frame{Type: "snapshot", Snapshot: &snap})
}

func (s *Service) handleCommand(conn *Conn, data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.sendFrame(conn, frame{Type: "error", Message: "malformed command"})
		return
	}

	if err := s.dispatch(conn, cmd); err != nil {
		// Every command failure is recoverable; the UI shows it and the
		// player retries.
		s.sendFrame(conn, frame{Type: "error", Message: err.Error()})
	}
}

func (s *Service) dispatch(conn *Conn, cmd Command) error {
	ctx := context.Background()
	switch cmd.Action {
	case "create_room":
		roomID, err := s.client.CreateRoom(ctx, cmd.Name, cmd.Capacity)
		if err != nil {
			return err
		}
		snap := s.client.Snapshot()
		s.sendFrame(conn, frame{Type: "joined", RoomID: roomID, PlayerID: snap.PlayerID})
		return nil
	case "join_room":
		playerID, restored, err := s.client.JoinRoom(ctx, cmd.Code, cmd.Name)
		if err != nil {
			return err
		}
		s.sendFrame(conn, frame{Type: "joined", RoomID: cmd.Code, PlayerID: playerID, Restored: restored})
		return nil
	case "select_card":
		_, _, err := s.client.SelectCard(cmd.CardID)
		return err
	case "select_op":
		s.client.SelectOp(engine.Op(cmd.Op))
		return nil
	case "combine":
		_, _, err := s.client.SubmitMove(cmd.CardA, cmd.CardB, engine.Op(cmd.Op))
		return err
	case "undo":
		return s.client.Undo()
	case "reset":
		return s.client.Reset()
	case "claim_win":
		s.client.ClaimWin()
		return nil
	case "start_clock":
		return s.client.StartClock()
	case "ready_up":
		s.client.ReadyUp()
		return nil
	case "sit_out":
		s.client.SitOut()
		return nil
	case "join_back":
		s.client.JoinBack()
		return nil
	case "start_game":
		return s.client.StartGame()
	case "kick":
		return s.client.KickPlayer(cmd.TargetID)
	case "leave_room":
		return s.client.LeaveRoom(ctx)
	case "close_room":
		return s.client.CloseRoom(ctx)
	default:
		s.sendFrame(conn, frame{Type: "error", Message: "unknown action: " + cmd.Action})
		return nil
	}
}

func (s *Service) broadcastSnapshot(snap client.Snapshot) {
	data, err := json.Marshal(frame{Type: "snapshot", Snapshot: &snap})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot frame")
		return
	}
	s.manager.Broadcast(data)
}

func (s *Service) sendFrame(conn *Conn, f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal frame")
		return
	}
	conn.Send(data)
}
