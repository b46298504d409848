// Package transport moves byte streams between library instances over TCP.
//
// A TCPTransport keeps an address book mapping peer identities to dial
// addresses. Session(identity) returns a handle whose OpenStream dials a
// fresh connection; there is no multiplexing, so each request owns its
// connection for its whole lifetime.
//
// Inbound connections pass through a token bucket limiter before they reach
// the handler. Connections over budget are closed immediately without reading
// a byte.
//
//	t := transport.NewTCPTransport(transport.Options{RequestsPerSecond: 50, Burst: 100})
//	if err := t.Listen(":7373", serve); err != nil {
//	    log.Fatal(err)
//	}
//	t.AddPeer(remoteIdentity, "203.0.113.7:7373")
//	session, err := t.Session(remoteIdentity)
//	stream, err := session.OpenStream(ctx)
//
// Streams carry no authentication of their own. Callers wrap them in a
// tunnel before exchanging anything.
package transport
