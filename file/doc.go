// Package file implements block-framed transfer of a byte range over a
// stream, with progress reporting and cooperative cancellation.
//
// # Wire format
//
// The sending side first writes a Header:
//
//	[u32 LE block size][u64 LE length]
//
// where length is the number of payload bytes that follow. The payload is
// then sent as data frames of at most block size bytes:
//
//	[u8 0][u64 LE offset][u32 LE size][size bytes]
//
// and the receiver answers every data frame with one acknowledgement byte,
// 0 to continue or 1 to cancel. A sender that is cancelled locally writes a
// single cancel frame ([u8 1]) instead of the next data frame.
//
// # Cancellation
//
// Both directions check a shared CancelToken, and their context, between
// blocks:
//
//	token := file.NewCancelToken()
//	t := file.NewTransfer(id, file.TransferDirectionIncoming, token)
//	t.OnProgress(func(percent uint8) {
//	    if userPressedStop() {
//	        token.Cancel()
//	    }
//	})
//	err := t.Receive(ctx, stream, sink)
//	if errors.Is(err, file.ErrCancelled) {
//	    // sink holds a prefix of the range
//	}
//
// A cancellation takes effect at the next block boundary, never mid-block.
//
// # Path guard
//
// AuthorizePath confines served files to a root directory and an expected
// extension, checking both the lexical path and its symlink-resolved form.
package file
