package dedup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/igloo/internal/nip55"
)

const app = "com.example.client"

func signParams(event string) nip55.Params {
	return nip55.Params{nip55.ParamEvent: event}
}

func TestKey_Pure(t *testing.T) {
	p := signParams(`{"kind":1,"content":"hola"}`)
	a := Key(app, nip55.TypeSignEvent, p, "r1")
	b := Key(app, nip55.TypeSignEvent, p, "r1")
	assert.Equal(t, a, b)
}

func TestKey_SignEventWithID(t *testing.T) {
	k := Key(app, nip55.TypeSignEvent, signParams(`{"id":"abc123","kind":1,"content":"x"}`), "r1")
	assert.True(t, strings.HasSuffix(k, ":abc123"), k)
	assert.Equal(t, app+":sign_event:abc123", k)
}

func TestKey_SignEventWithoutIDUsesContentHash(t *testing.T) {
	k1 := Key(app, nip55.TypeSignEvent, signParams(`{"kind":1,"content":"uno"}`), "r1")
	k2 := Key(app, nip55.TypeSignEvent, signParams(`{"kind":1,"content":"dos"}`), "r1")
	assert.NotEqual(t, k1, k2)
	assert.NotContains(t, k1, "r1")
	assert.True(t, strings.HasPrefix(k1, app+":sign_event:"))
}

func TestKey_AuthEvent(t *testing.T) {
	auth := func(id, relay, challenge string) string {
		return `{"id":"` + id + `","kind":22242,"content":"","tags":[["relay","` + relay + `"],["challenge","` + challenge + `"]]}`
	}

	a := Key(app, nip55.TypeSignEvent, signParams(auth("id-one", "wss://relay.a", "c1")), "r1")
	b := Key(app, nip55.TypeSignEvent, signParams(auth("id-two", "wss://relay.a", "c1")), "r2")
	require.Equal(t, a, b, "same relay+challenge must collapse")
	assert.Equal(t, app+":sign_event:auth:wss://relay.a:c1", a)
	assert.NotContains(t, a, "id-one")
	assert.NotContains(t, b, "id-two")

	c := Key(app, nip55.TypeSignEvent, signParams(auth("id-one", "wss://relay.a", "c2")), "r1")
	d := Key(app, nip55.TypeSignEvent, signParams(auth("id-one", "wss://relay.b", "c1")), "r1")
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestKey_AuthEventWithoutChallenge(t *testing.T) {
	ev := `{"id":"zzz","kind":22242,"content":"secret","tags":[["relay","wss://r"]]}`
	k := Key(app, nip55.TypeSignEvent, signParams(ev), "r1")
	assert.Equal(t, app+":sign_event:auth:wss://r:"+Hash("secret"), k)
	assert.NotContains(t, k, "zzz")
}

func TestKey_MalformedEventFallsBack(t *testing.T) {
	cases := map[string]string{
		"garbage": `{not json`,
		"empty":   `{}`,
		"blank":   ``,
		"array":   `[1,2]`,
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			k := Key(app, nip55.TypeSignEvent, signParams(ev), "fallback-1")
			assert.Equal(t, app+":sign_event:fallback-1", k)
		})
	}
	// sin params
	assert.Equal(t, app+":sign_event:f", Key(app, nip55.TypeSignEvent, nil, "f"))
}

func TestKey_GetPublicKeyCollapses(t *testing.T) {
	a := Key(app, nip55.TypeGetPublicKey, nil, "r1")
	b := Key(app, nip55.TypeGetPublicKey, nip55.Params{"x": "y"}, "r2")
	assert.Equal(t, a, b)
	assert.Equal(t, app+":get_public_key", a)
	assert.NotEqual(t, a, Key("other.app", nip55.TypeGetPublicKey, nil, "r1"))
}

func TestKey_EncryptDecrypt(t *testing.T) {
	enc := func(pt, pk string) string {
		return Key(app, nip55.TypeNIP44Encrypt, nip55.Params{nip55.ParamPlaintext: pt, nip55.ParamPubkey: pk}, "r")
	}
	assert.Equal(t, enc("hola", "pk1"), enc("hola", "pk1"))
	assert.NotEqual(t, enc("hola", "pk1"), enc("chau", "pk1"))
	assert.NotEqual(t, enc("hola", "pk1"), enc("hola", "pk2"))
	assert.Equal(t, app+":nip44_encrypt:"+Hash("hola")+":pk1", enc("hola", "pk1"))
	assert.NotContains(t, enc("hola", "pk1"), "hola")

	dec := Key(app, nip55.TypeNIP04Decrypt, nip55.Params{nip55.ParamCiphertext: "ct", nip55.ParamPubkey: "pk"}, "r")
	assert.Equal(t, app+":nip04_decrypt:"+Hash("ct")+":pk", dec)

	// nip04 y nip44 no colisionan
	other := Key(app, nip55.TypeNIP04Encrypt, nip55.Params{nip55.ParamPlaintext: "hola", nip55.ParamPubkey: "pk1"}, "r")
	assert.NotEqual(t, enc("hola", "pk1"), other)
}

func TestKey_UnknownTypeUsesFallback(t *testing.T) {
	assert.Equal(t, app+":mystery:r9", Key(app, nip55.RequestType("mystery"), nil, "r9"))
}

func TestForRequest(t *testing.T) {
	req := nip55.Request{ID: "r1", Type: nip55.TypeGetPublicKey, CallingApp: app}
	assert.Equal(t, Key(app, nip55.TypeGetPublicKey, nil, "r1"), ForRequest(req))
}

func TestHash(t *testing.T) {
	h := Hash("x")
	assert.Len(t, h, 32)
	assert.Equal(t, h, Hash("x"))
	assert.NotEqual(t, h, Hash("y"))
}
