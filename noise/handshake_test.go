package noise

import (
	"testing"

	"github.com/opd-ai/thumbshare/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T, prologueI, prologueR []byte) (*XXHandshake, *XXHandshake, *crypto.KeyPair, *crypto.KeyPair) {
	t.Helper()
	ikeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	rkeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	initiator, err := NewXXHandshake(ikeys.Private[:], prologueI, Initiator)
	require.NoError(t, err)
	responder, err := NewXXHandshake(rkeys.Private[:], prologueR, Responder)
	require.NoError(t, err)
	return initiator, responder, ikeys, rkeys
}

// runXX drives the three XX messages between the two states.
func runXX(initiator, responder *XXHandshake) error {
	msg1, _, err := initiator.WriteMessage(nil)
	if err != nil {
		return err
	}
	if _, _, err := responder.ReadMessage(msg1); err != nil {
		return err
	}
	msg2, _, err := responder.WriteMessage(nil)
	if err != nil {
		return err
	}
	if _, _, err := initiator.ReadMessage(msg2); err != nil {
		return err
	}
	msg3, _, err := initiator.WriteMessage(nil)
	if err != nil {
		return err
	}
	_, _, err = responder.ReadMessage(msg3)
	return err
}

func TestXXHandshakeCompletes(t *testing.T) {
	prologue := []byte("library-1")
	initiator, responder, ikeys, rkeys := newPair(t, prologue, prologue)

	require.NoError(t, runXX(initiator, responder))
	assert.True(t, initiator.IsComplete())
	assert.True(t, responder.IsComplete())

	remoteOfInitiator, err := initiator.GetRemoteStaticKey()
	require.NoError(t, err)
	assert.Equal(t, rkeys.Public, remoteOfInitiator)

	remoteOfResponder, err := responder.GetRemoteStaticKey()
	require.NoError(t, err)
	assert.Equal(t, ikeys.Public, remoteOfResponder)

	assert.Equal(t, ikeys.Public, initiator.GetLocalStaticKey())
}

func TestXXCipherStatesInteroperate(t *testing.T) {
	initiator, responder, _, _ := newPair(t, nil, nil)
	require.NoError(t, runXX(initiator, responder))

	iSend, iRecv, err := initiator.GetCipherStates()
	require.NoError(t, err)
	rSend, rRecv, err := responder.GetCipherStates()
	require.NoError(t, err)

	ct, err := iSend.Encrypt(nil, nil, []byte("to responder"))
	require.NoError(t, err)
	pt, err := rRecv.Decrypt(nil, nil, ct)
	require.NoError(t, err)
	assert.Equal(t, "to responder", string(pt))

	ct, err = rSend.Encrypt(nil, nil, []byte("to initiator"))
	require.NoError(t, err)
	pt, err = iRecv.Decrypt(nil, nil, ct)
	require.NoError(t, err)
	assert.Equal(t, "to initiator", string(pt))
}

func TestXXPrologueMismatchFails(t *testing.T) {
	initiator, responder, _, _ := newPair(t, []byte("library-a"), []byte("library-b"))
	assert.Error(t, runXX(initiator, responder))
}

func TestXXPayloadDelivered(t *testing.T) {
	initiator, responder, _, _ := newPair(t, nil, nil)

	msg1, complete, err := initiator.WriteMessage([]byte("hello"))
	require.NoError(t, err)
	assert.False(t, complete)

	payload, complete, err := responder.ReadMessage(msg1)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, "hello", string(payload))
}

func TestXXStateErrors(t *testing.T) {
	_, err := NewXXHandshake(make([]byte, 16), nil, Initiator)
	assert.Error(t, err)

	initiator, responder, _, _ := newPair(t, nil, nil)
	_, _, err = initiator.GetCipherStates()
	assert.ErrorIs(t, err, ErrHandshakeNotComplete)
	_, err = initiator.GetRemoteStaticKey()
	assert.ErrorIs(t, err, ErrHandshakeNotComplete)

	require.NoError(t, runXX(initiator, responder))
	_, _, err = initiator.WriteMessage(nil)
	assert.ErrorIs(t, err, ErrHandshakeComplete)
	_, _, err = responder.ReadMessage([]byte{1})
	assert.ErrorIs(t, err, ErrHandshakeComplete)

	assert.Equal(t, "initiator", Initiator.String())
	assert.Equal(t, "responder", Responder.String())
}
