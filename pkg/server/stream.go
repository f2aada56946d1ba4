package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/msouli/folio/pkg/quota"
	"github.com/msouli/folio/pkg/upstream"
)

const (
	// maxRelayChars caps the total characters relayed to the client per
	// turn, independent of the token budget.
	maxRelayChars = 10000

	// inactivityTimeout aborts a stream when upstream goes silent. Any
	// fragment resets it, content-bearing or not.
	inactivityTimeout = 30 * time.Second

	truncationNotice = "\n\n[message truncated]"

	// usageDrainWindow bounds how long we keep reading a stream we no
	// longer relay, waiting for the final usage telemetry fragment.
	usageDrainWindow = 2 * time.Second
)

type streamFragment struct {
	content string
	usage   int64
	err     error
}

// streamSession relays one upstream completion stream to one client and
// settles its reservation exactly once, whichever way the stream ends.
type streamSession struct {
	srv      *Server
	identity string
	res      quota.Reservation
	stream   *openai.ChatCompletionStream
	cancel   func()

	usage     int64
	relayed   int // runes written so far
	truncated bool
	settled   bool
}

func (sess *streamSession) run(w http.ResponseWriter, r *http.Request) {
	defer sess.stream.Close()
	// Settlement via defer so it also runs while a watchdog or upstream
	// failure panic unwinds toward the connection abort.
	defer sess.settleOnce()

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	frags := sess.pump()
	watchdog := time.NewTimer(inactivityTimeout)
	defer watchdog.Stop()

	for {
		select {
		case <-r.Context().Done():
			// Client went away. Expected, not an error; drain for late
			// usage so the settlement charges what was generated.
			sess.drainForUsage(frags)
			return

		case <-watchdog.C:
			sess.srv.log.Warn("stream watchdog fired", "identity", sess.identity, "relayed", sess.relayed)
			sess.cancel()
			sess.drainForUsage(frags)
			// Headers are long since committed as a 200 stream; the only
			// honest signal left is an aborted connection.
			panic(http.ErrAbortHandler)

		case f, ok := <-frags:
			if !ok {
				return
			}
			if !watchdog.Stop() {
				select {
				case <-watchdog.C:
				default:
				}
			}
			watchdog.Reset(inactivityTimeout)

			if f.err != nil {
				sess.finishOnError(f.err)
				return
			}
			if f.usage > 0 {
				sess.usage = f.usage
			}
			if f.content == "" || sess.truncated {
				continue
			}
			if !sess.relay(w, flusher, f.content) {
				sess.cancel()
				sess.drainForUsage(frags)
				return
			}
		}
	}
}

// pump moves upstream fragments onto a channel so the relay loop can
// select over them, the watchdog and the client connection at once. It
// always delivers a final error fragment before closing.
func (sess *streamSession) pump() <-chan streamFragment {
	frags := make(chan streamFragment)
	go func() {
		defer close(frags)
		for {
			resp, err := sess.stream.Recv()
			if err != nil {
				frags <- streamFragment{err: err}
				return
			}
			f := streamFragment{usage: upstream.UsageTotal(resp.Usage)}
			if len(resp.Choices) > 0 {
				f.content = resp.Choices[0].Delta.Content
			}
			frags <- f
		}
	}()
	return frags
}

// relay writes a fragment, enforcing the relay ceiling. Returns false when
// streaming must stop: the ceiling was hit or the client write failed.
func (sess *streamSession) relay(w http.ResponseWriter, flusher http.Flusher, content string) bool {
	runes := []rune(content)
	if room := maxRelayChars - sess.relayed; len(runes) > room {
		runes = runes[:room]
		sess.truncated = true
	}
	if len(runes) > 0 {
		if _, err := io.WriteString(w, string(runes)); err != nil {
			return false
		}
		sess.relayed += len(runes)
	}
	if sess.truncated {
		_, _ = io.WriteString(w, truncationNotice)
	}
	if flusher != nil {
		flusher.Flush()
	}
	return !sess.truncated
}

// finishOnError classifies the stream-ending error. EOF is a normal
// finish, a cancellation is one we caused ourselves, anything else is an
// upstream failure whose only client-visible form is an aborted connection.
func (sess *streamSession) finishOnError(err error) {
	switch {
	case errors.Is(err, io.EOF):
	case errors.Is(err, context.Canceled):
	default:
		sess.srv.log.Error("upstream stream failed",
			"identity", sess.identity, "status", upstream.StatusOf(err), "err", err)
		panic(http.ErrAbortHandler)
	}
}

// drainForUsage keeps consuming a stream that is no longer relayed, for a
// bounded window, in case the usage fragment is still in flight. It always
// leaves the pump goroutine finished.
func (sess *streamSession) drainForUsage(frags <-chan streamFragment) {
	deadline := time.NewTimer(usageDrainWindow)
	defer deadline.Stop()
	for {
		select {
		case f, ok := <-frags:
			if !ok {
				return
			}
			if f.usage > 0 {
				sess.usage = f.usage
			}
		case <-deadline.C:
			sess.cancel()
			for f := range frags {
				if f.usage > 0 {
					sess.usage = f.usage
				}
			}
			return
		}
	}
}

func (sess *streamSession) settleOnce() {
	if sess.settled {
		return
	}
	sess.settled = true
	sess.srv.settle(sess.res, sess.usage)
}
