package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cjeanneret/scancam/internal/debug"
	"github.com/cjeanneret/scancam/internal/imaging"
	"github.com/cjeanneret/scancam/internal/logic/capture"
)

// Capturer is the camera side of the HTTP API. *capture.Service implements it.
type Capturer interface {
	HighQualityCapture(ctx context.Context, outputPath string) (*imaging.EncodedImage, error)
	QuickPreviewCapture(ctx context.Context) (*imaging.EncodedImage, error)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Capturer    Capturer
	OutputPath  string // where high quality captures are stored
}

func NewHandlers(broadcaster *StatusBroadcaster, capturer Capturer, outputPath string) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Capturer:    capturer,
		OutputPath:  outputPath,
	}
}

// HandleRoot is the connectivity check used by clients on startup.
func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Pi is connected"})
}

func (h *Handlers) HandleHello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello endpoint works"})
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleCapture takes a high quality still, stores it at OutputPath and
// returns the stored JPEG.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	img, err := h.Capturer.HighQualityCapture(r.Context(), h.OutputPath)
	if err != nil {
		h.captureFailed(w, capture.ModeHighQuality, err)
		return
	}
	h.writeImage(w, capture.ModeHighQuality, img)
}

// HandlePreview takes a quick low resolution frame and returns it without
// touching the disk.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	img, err := h.Capturer.QuickPreviewCapture(r.Context())
	if err != nil {
		h.captureFailed(w, capture.ModeQuickPreview, err)
		return
	}
	h.writeImage(w, capture.ModeQuickPreview, img)
}

func (h *Handlers) writeImage(w http.ResponseWriter, mode capture.Mode, img *imaging.EncodedImage) {
	setNoCache(w.Header())
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(img.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		debug.Errorf("web: sending %s image: %v", mode, err)
		return
	}
	if h.Broadcaster != nil {
		h.Broadcaster.CaptureDone(string(mode), img.Len())
	}
}

// captureFailed logs the cause and answers with a generic 500; the cause
// never reaches the client.
func (h *Handlers) captureFailed(w http.ResponseWriter, mode capture.Mode, err error) {
	stage := "unknown"
	var cerr *capture.Error
	if errors.As(err, &cerr) {
		stage = cerr.Stage()
	}
	debug.Errorf("web: %v", err)
	if h.Broadcaster != nil {
		h.Broadcaster.CaptureFailed(string(mode), stage)
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Capture failed"})
}

// HandleStatusStream streams capture events and log lines as server-sent events.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// setNoCache makes browsers and proxies fetch a fresh image every time.
func setNoCache(h http.Header) {
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Errorf("web: encoding response: %v", err)
	}
}
