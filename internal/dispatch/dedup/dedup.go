// Package dedup calcula la clave de idempotencia de una solicitud NIP-55.
//
// Key es una función pura: no lee reloj ni estado, y nunca falla. Payloads
// malformados degradan a la clave por fallbackID.
package dedup

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/dropDatabas3/igloo/internal/nip55"
)

const sep = ":"

// Key retorna la clave de idempotencia para (callingApp, type, params).
//
// Reglas por tipo:
//   - sign_event con id: app:sign_event:<id>
//   - sign_event sin id: app:sign_event:<hash(evento crudo)>
//   - sign_event kind 22242: app:sign_event:auth:<relay>:<challenge>, nunca usa el id
//   - *_encrypt: app:type:<hash(plaintext)>:<pubkey>
//   - *_decrypt: app:type:<hash(ciphertext)>:<pubkey>
//   - get_public_key: app:get_public_key
//   - resto: app:type:<fallbackID>
func Key(callingApp string, typ nip55.RequestType, params nip55.Params, fallbackID string) string {
	base := callingApp + sep + string(typ)

	switch {
	case typ == nip55.TypeGetPublicKey:
		return base

	case typ == nip55.TypeSignEvent:
		raw, _ := params.Get(nip55.ParamEvent)
		if k, ok := signEventKey(base, raw); ok {
			return k
		}

	case typ.IsEncrypt():
		pt, _ := params.Get(nip55.ParamPlaintext)
		pk, _ := params.Get(nip55.ParamPubkey)
		return join(base, Hash(pt), pk)

	case typ.IsDecrypt():
		ct, _ := params.Get(nip55.ParamCiphertext)
		pk, _ := params.Get(nip55.ParamPubkey)
		return join(base, Hash(ct), pk)
	}

	return join(base, fallbackID)
}

// ForRequest es Key aplicada a una Request, usando su ID como fallback.
func ForRequest(req nip55.Request) string {
	return Key(req.CallingApp, req.Type, req.Params, req.ID)
}

func signEventKey(base, raw string) (string, bool) {
	ev, err := nip55.ParseEvent(raw)
	if err != nil {
		return "", false
	}
	if ev.IsAuth() {
		relay, _ := ev.Tag("relay")
		challenge, ok := ev.Tag("challenge")
		if !ok {
			challenge = Hash(ev.Content)
		}
		return join(base, "auth", relay, challenge), true
	}
	if id := strings.TrimSpace(ev.ID); id != "" {
		return join(base, id), true
	}
	return join(base, Hash(strings.TrimSpace(raw))), true
}

// Hash retorna los primeros 16 bytes del BLAKE3 de s, en hex.
func Hash(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

func join(parts ...string) string { return strings.Join(parts, sep) }
