package fhe

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestRevealReceipt_SignAndVerify(t *testing.T) {
	signer, err := NewRevealSigner()
	assert.NoError(t, err)

	e := NewLocalEngine(0)
	v, err := e.FromPlain(house, 200)
	assert.NoError(t, err)
	h, err := e.RequestReveal(house, v)
	assert.NoError(t, err)
	res, ready, err := e.PollReveal(house, h)
	assert.NoError(t, err)
	assert.True(t, ready)

	receipt, err := signer.Sign(h, res, time.Unix(1700000000, 0))
	assert.NoError(t, err)

	gotHandle, gotResult, err := VerifyRevealReceipt(receipt, signer.PublicKey())
	assert.NoError(t, err)
	check.Equal(t, h.ID, gotHandle.ID)
	check.Equal(t, KindUint64, gotResult.Kind)
	check.Equal(t, uint64(200), gotResult.Uint64)
}

func TestRevealReceipt_TamperedPayloadFails(t *testing.T) {
	signer, err := NewRevealSigner()
	assert.NoError(t, err)

	receipt, err := signer.Sign(RevealHandle{}, RevealResult{Kind: KindBool, Bool: true}, time.Now())
	assert.NoError(t, err)

	// Flip a byte near the end of the payload region.
	tampered := append([]byte(nil), receipt...)
	tampered[len(tampered)/2] ^= 0xff
	_, _, err = VerifyRevealReceipt(tampered, signer.PublicKey())
	check.Error(t, err)
}

func TestRevealReceipt_WrongKeyFails(t *testing.T) {
	signer, err := NewRevealSigner()
	assert.NoError(t, err)
	other, err := NewRevealSigner()
	assert.NoError(t, err)

	receipt, err := signer.Sign(RevealHandle{}, RevealResult{Kind: KindUint64, Uint64: 1}, time.Now())
	assert.NoError(t, err)

	_, _, err = VerifyRevealReceipt(receipt, other.PublicKey())
	check.Error(t, err)
}
