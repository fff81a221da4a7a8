package handlers

import (
	"bufio"
	"fmt"
	"time"

	applog "casasweb/internal/log"
	"casasweb/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const heartbeatEvery = 25 * time.Second

// EventsHandler streams session changes to open tabs so they can re-check
// their access when another tab signs in or out.
type EventsHandler struct {
	Sessions  *session.Store
	Heartbeat time.Duration
	// Done ends every open stream, e.g. on shutdown. Nil means never.
	Done <-chan struct{}
}

func (h *EventsHandler) Stream(c *fiber.Ctx) error {
	sid := cookieSID(c)
	if sid == "" {
		return c.SendStatus(fiber.StatusNoContent)
	}
	every := h.Heartbeat
	if every <= 0 {
		every = heartbeatEvery
	}

	changes := make(chan session.Change, 4)
	cancel := h.Sessions.Subscribe(sid, func(ch session.Change) {
		select {
		case changes <- ch:
		default:
			// A reload is already pending for this tab.
		}
	})
	initial := h.Sessions.IsAuthenticated(sid)
	applog.Info(c, "session.events.open", nil)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	done := h.Done
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		tick := time.NewTicker(every)
		defer tick.Stop()

		if writeEvent(w, initial) != nil {
			return
		}
		for {
			select {
			case <-done:
				return
			case ch := <-changes:
				if writeEvent(w, ch.Authenticated) != nil {
					return
				}
			case <-tick.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if w.Flush() != nil {
					return
				}
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, authenticated bool) error {
	if _, err := fmt.Fprintf(w, "event: session\ndata: {\"authenticated\":%t}\n\n", authenticated); err != nil {
		return err
	}
	return w.Flush()
}
