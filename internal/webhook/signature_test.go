package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	secret := "shh"
	body := []byte(`{"id":"evt_1","type":"event_canceled"}`)
	sig := ComputeSignature(secret, body)

	assert.True(t, VerifySignature(secret, body, sig))
	assert.True(t, VerifySignature(secret, body, "sha256="+sig))
	assert.True(t, VerifySignature(secret, body, "  "+sig+"  "))
}

func TestVerifySignature_Rejections(t *testing.T) {
	secret := "shh"
	body := []byte(`{"id":"evt_1"}`)
	sig := ComputeSignature(secret, body)

	assert.False(t, VerifySignature(secret, body, ""), "missing signature")
	assert.False(t, VerifySignature("", body, sig), "missing secret")
	assert.False(t, VerifySignature("other", body, sig), "wrong secret")
	assert.False(t, VerifySignature(secret, []byte(`{"id":"evt_2"}`), sig), "tampered body")
	assert.False(t, VerifySignature(secret, body, "not-hex"), "garbage signature")
}

func TestPayloadHash_NormalizesWhitespace(t *testing.T) {
	compact := []byte(`{"id":"evt_1","type":"x"}`)
	spaced := []byte("{\n  \"id\": \"evt_1\",\n  \"type\": \"x\"\n}")

	assert.Equal(t, payloadHash(compact), payloadHash(spaced))
	assert.NotEqual(t, payloadHash(compact), payloadHash([]byte(`{"id":"evt_2","type":"x"}`)))
}
