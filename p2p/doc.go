// Package p2p serves and requests library resources between peers.
//
// A request travels on its own stream. The initiator first writes a plaintext
// envelope naming the resource (an indexed file id or a thumbnail content id)
// and the byte range it wants. It then upgrades the stream to a tunnel scoped
// to the library, and every later byte is encrypted:
//
//	initiator                               responder
//	Header  ----------------------------->
//	tunnel handshake <-------------------->  authenticate member
//	                                         resolve, authorize path
//	        <-----------------------------   [u32 block size][u64 length]
//	        <-----------------------------   data block
//	ack     ----------------------------->
//	...
//
// The responder checks every resolved path with file.AuthorizePath before
// opening it. It refuses a request by closing the stream before the framing
// header, whatever the reason, and the initiator reports ErrRejected. The
// specific cause is only logged locally.
package p2p
