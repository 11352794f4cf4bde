package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"apploom/internal/preview"
)

// reloadHub adapts preview.Manager.Subscribe's ReloadEvent channel onto
// a websocket connection per project — the push-reload endpoint the
// watcher's commit-polling loop ultimately feeds: an upgrader, a
// buffered writer goroutine driving both outbound events and
// ping/pong keepalive, and a blocking read loop whose only job is
// detecting client disconnect.
type reloadHub struct {
	previewMgr *preview.Manager
	upgrader   websocket.Upgrader
}

func newReloadHub(previewMgr *preview.Manager) *reloadHub {
	return &reloadHub{
		previewMgr: previewMgr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

const (
	reloadWSWriteWait = 10 * time.Second
	reloadWSPongWait  = 60 * time.Second
	reloadWSPingEvery = (reloadWSPongWait * 9) / 10
)

type reloadWSMessage struct {
	Type      string `json:"type"`
	ProjectID string `json:"project_id,omitempty"`
	CommitID  string `json:"commit_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (a *app) handlePreviewWebSocket(w http.ResponseWriter, r *http.Request) {
	if a.hub.previewMgr == nil {
		http.Error(w, "no container runtime available", http.StatusServiceUnavailable)
		return
	}
	projectID := r.PathValue("id")

	conn, err := a.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(reloadWSPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(reloadWSPongWait))
	})

	writeCh := make(chan reloadWSMessage, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(reloadWSPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(reloadWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(reloadWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	events, unsubscribe := a.hub.previewMgr.Subscribe(projectID)
	defer unsubscribe()

	pushReload(writeCh, reloadWSMessage{Type: "subscribed", ProjectID: projectID})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				pushReload(writeCh, reloadWSMessage{Type: "reload", ProjectID: evt.ProjectID, CommitID: evt.CommitID})
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			cancel()
			<-writerDone
			return
		}
	}
}

func pushReload(ch chan reloadWSMessage, msg reloadWSMessage) {
	select {
	case ch <- msg:
	default:
	}
}
