package main

import (
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/unklstewy/intercept-sim/pkg/engagement"
)

// Stream message types.
const (
	msgStart  = "start"
	msgFrame  = "frame"
	msgResult = "result"
)

// streamMessage is one JSON message on the engagement stream.
type streamMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// streamStart describes the engagement about to be streamed.
type streamStart struct {
	ID           uuid.UUID                     `json:"id"`
	Strategy     string                        `json:"strategy"`
	Frames       int                           `json:"frames"`
	Stride       int                           `json:"stride"`
	TimeStep     float64                       `json:"time_step"`
	Candidates   []engagement.CandidateSummary `json:"candidates,omitempty"`
	Interceptors int                           `json:"interceptors"`
}

const writeWait = 10 * time.Second

func (s *Server) upgrader() *websocket.Upgrader {
	allowed := s.cfg.Server.AllowedOrigins
	return &websocket.Upgrader{
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
				return true
			}
			s.logger.Printf("Rejected WebSocket connection from origin: %s", origin)
			return false
		},
	}
}

// maxFramePause caps the pause between frames for very slow playback.
const maxFramePause = time.Minute

// frameInterval is the wall-clock pause between streamed frames. Zero means
// no pacing: speed 0, or a speed so high the pause rounds below 1 ns.
func frameInterval(stride int, timeStep, speed float64) time.Duration {
	if !(speed > 0) || math.IsInf(speed, 0) {
		return 0
	}
	ns := float64(stride) * timeStep / speed * float64(time.Second)
	if !(ns >= 1) {
		return 0
	}
	if ns > float64(maxFramePause) {
		return maxFramePause
	}
	return time.Duration(math.Round(ns))
}

// handleStream runs a recorded engagement and streams every stride-th frame,
// then the result without its history.
//
// Query parameters: scenario, strategy, stride (default 10) and speed, the
// playback rate relative to simulated time (0 = as fast as possible).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sc, strategy, err := s.resolve(r.Context(), runRequest{Scenario: q.Get("scenario"), Strategy: q.Get("strategy")})
	if err != nil {
		respondResolveError(w, err)
		return
	}
	stride := 10
	if v := q.Get("stride"); v != "" {
		if stride, err = strconv.Atoi(v); err != nil || stride < 1 {
			respondError(w, http.StatusBadRequest, "Invalid stride")
			return
		}
	}
	speed := 0.0
	if v := q.Get("speed"); v != "" {
		if speed, err = strconv.ParseFloat(v, 64); err != nil || !(speed >= 0) || math.IsInf(speed, 0) {
			respondError(w, http.StatusBadRequest, "Invalid speed")
			return
		}
	}

	sc.Recording = true
	result, err := s.engage(sc, strategy)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	send := func(msg streamMessage) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	history := result.History
	summary := *result
	summary.History = nil

	err = send(streamMessage{Type: msgStart, Data: streamStart{
		ID:           result.ID,
		Strategy:     strategy.String(),
		Frames:       (len(history) + stride - 1) / stride,
		Stride:       stride,
		TimeStep:     sc.TimeStep,
		Candidates:   result.Candidates,
		Interceptors: len(result.Interceptors),
	}})
	if err != nil {
		return
	}

	var tick <-chan time.Time
	if interval := frameInterval(stride, sc.TimeStep, speed); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for k := 0; k < len(history); k += stride {
		if tick != nil {
			select {
			case <-tick:
			case <-r.Context().Done():
				return
			}
		}
		if err := send(streamMessage{Type: msgFrame, Data: history[k]}); err != nil {
			return
		}
	}

	if err := send(streamMessage{Type: msgResult, Data: &summary}); err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
