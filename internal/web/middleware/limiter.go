package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/ssuji15/scriptd/internal/service/logger"
)

type admission struct {
	w       http.ResponseWriter
	r       *http.Request
	next    http.Handler
	claimed atomic.Bool
	done    chan struct{}
}

// Limiter admits at most maxInflight requests at a time and parks up to
// queueSize more in arrival order. Anything beyond that is rejected with 503.
type Limiter struct {
	queue    chan *admission
	inflight chan struct{}
}

func NewLimiter(queueSize, maxInflight int) *Limiter {
	l := &Limiter{
		queue:    make(chan *admission, queueSize),
		inflight: make(chan struct{}, maxInflight),
	}
	go l.dispatch()
	return l
}

func (l *Limiter) dispatch() {
	for a := range l.queue {
		l.inflight <- struct{}{}

		go func(a *admission) {
			defer func() {
				<-l.inflight
				close(a.done)
			}()
			// lost to the client giving up while parked
			if !a.claimed.CompareAndSwap(false, true) {
				return
			}
			a.next.ServeHTTP(a.w, a.r)
		}(a)
	}
}

func (l *Limiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := &admission{
			w:    w,
			r:    r,
			next: next,
			done: make(chan struct{}),
		}

		select {
		case l.queue <- a:
		default:
			log := logger.FromContext(r.Context())
			log.Warn().Str("path", r.URL.Path).Msg("admission queue full")
			http.Error(w, "server busy", http.StatusServiceUnavailable)
			return
		}

		select {
		case <-a.done:
		case <-r.Context().Done():
			if a.claimed.CompareAndSwap(false, true) {
				http.Error(w, "request canceled or timed out", http.StatusGatewayTimeout)
				return
			}
			// already being served, the response is the handler's
			<-a.done
		}
	})
}
