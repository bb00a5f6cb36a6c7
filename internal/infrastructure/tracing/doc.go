/*
Package tracing provides lightweight request tracing.

# Overview

Spans are created per HTTP request and around capture and restore rounds,
buffered on a channel and reported through the structured logger. Trace
context travels in the X-Trace-ID and X-Span-ID headers, both on incoming
requests and on calls the backend makes to the host shell.

# Usage

	tracer := tracing.New("hotexit", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "hotexit.capture")
	span.SetTag("capture_id", captureID)
	// ... perform operation ...
	tracer.End(span, err)
*/
package tracing
