package http

import (
	"context"
	"crypto/tls"
	"net/http/httptrace"
	"time"
)

// requestTiming holds the phase timings of a single HTTP request.
// Only logged for failed requests, to debug timeouts and connection issues.
type requestTiming struct {
	start          time.Time
	dnsLookup      time.Duration
	connect        time.Duration
	tlsHandshake   time.Duration
	firstByte      time.Duration
	contextTimeout time.Duration
}

// withTrace attaches an httptrace.ClientTrace recording phase timings to ctx.
func withTrace(ctx context.Context) (context.Context, *requestTiming) {
	timing := &requestTiming{start: time.Now()}
	if deadline, ok := ctx.Deadline(); ok {
		timing.contextTimeout = time.Until(deadline)
	}

	var dnsStart, connectStart, tlsStart time.Time
	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			dnsStart = time.Now()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			if !dnsStart.IsZero() {
				timing.dnsLookup = time.Since(dnsStart)
			}
		},
		ConnectStart: func(string, string) {
			connectStart = time.Now()
		},
		ConnectDone: func(string, string, error) {
			if !connectStart.IsZero() {
				timing.connect = time.Since(connectStart)
			}
		},
		TLSHandshakeStart: func() {
			tlsStart = time.Now()
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			if !tlsStart.IsZero() {
				timing.tlsHandshake = time.Since(tlsStart)
			}
		},
		GotFirstResponseByte: func() {
			timing.firstByte = time.Since(timing.start)
		},
	}

	return httptrace.WithClientTrace(ctx, trace), timing
}
