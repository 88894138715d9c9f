// Package web exposes the push transports and the auth endpoints over HTTP.
//
// Each stream category gets an SSE endpoint and a WebSocket endpoint; both
// share the session registry's semantics. Authorization failures honor the
// negotiated transport: the handler emits exactly one structured error frame
// on the stream the client set up to parse, then closes it cleanly.
package web
