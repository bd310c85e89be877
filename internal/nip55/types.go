package nip55

import (
	"encoding/json"
	"strings"
)

// RequestType identifica la operación solicitada al motor de firma.
type RequestType string

const (
	TypeGetPublicKey RequestType = "get_public_key"
	TypeSignEvent    RequestType = "sign_event"
	TypeNIP04Encrypt RequestType = "nip04_encrypt"
	TypeNIP04Decrypt RequestType = "nip04_decrypt"
	TypeNIP44Encrypt RequestType = "nip44_encrypt"
	TypeNIP44Decrypt RequestType = "nip44_decrypt"
)

// Parámetros conocidos.
const (
	ParamEvent      = "event"
	ParamPubkey     = "pubkey"
	ParamPlaintext  = "plaintext"
	ParamCiphertext = "ciphertext"
)

// IsValid retorna true si el tipo pertenece al conjunto fijo de operaciones.
func (t RequestType) IsValid() bool {
	switch t {
	case TypeGetPublicKey, TypeSignEvent,
		TypeNIP04Encrypt, TypeNIP04Decrypt,
		TypeNIP44Encrypt, TypeNIP44Decrypt:
		return true
	}
	return false
}

// IsEncrypt retorna true para nip04_encrypt y nip44_encrypt.
func (t RequestType) IsEncrypt() bool {
	return t == TypeNIP04Encrypt || t == TypeNIP44Encrypt
}

// IsDecrypt retorna true para nip04_decrypt y nip44_decrypt.
func (t RequestType) IsDecrypt() bool {
	return t == TypeNIP04Decrypt || t == TypeNIP44Decrypt
}

// Params son los parámetros de la operación. Una clave ausente y un valor JSON null
// significan lo mismo: el parámetro no fue enviado.
type Params map[string]string

// Get retorna el valor y si estaba presente.
func (p Params) Get(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p[name]
	return v, ok
}

// UnmarshalJSON descarta los valores null y acepta números/bools convirtiéndolos a string.
func (p *Params) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Params, len(raw))
	for k, v := range raw {
		s := strings.TrimSpace(string(v))
		if s == "" || s == "null" {
			continue
		}
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			out[k] = str
			continue
		}
		// Valores no-string (ej: un evento enviado como objeto) se guardan crudos.
		out[k] = s
	}
	*p = out
	return nil
}

// Request es una solicitud normalizada de un caller externo.
type Request struct {
	ID         string      `json:"id" cbor:"id"`
	Type       RequestType `json:"type" cbor:"type"`
	Params     Params      `json:"params,omitempty" cbor:"params,omitempty"`
	CallingApp string      `json:"callingApp" cbor:"calling_app"`
	// Timestamp en milisegundos desde epoch.
	Timestamp int64 `json:"timestamp" cbor:"timestamp"`
}

// Result es la respuesta entregada al caller. Si OK es true, Result es significativo;
// si no, Reason.
type Result struct {
	OK     bool   `json:"ok" cbor:"ok"`
	Type   string `json:"type" cbor:"type"`
	ID     string `json:"id" cbor:"id"`
	Result string `json:"result,omitempty" cbor:"result,omitempty"`
	Reason string `json:"reason,omitempty" cbor:"reason,omitempty"`
}

// Success construye un resultado exitoso para req.
func Success(req Request, value string) Result {
	return Result{OK: true, Type: string(req.Type), ID: req.ID, Result: value}
}

// Failure construye un resultado fallido para req.
func Failure(req Request, reason string) Result {
	return Result{OK: false, Type: string(req.Type), ID: req.ID, Reason: reason}
}

// Normalize deja solo el campo significativo según OK.
func (r Result) Normalize() Result {
	if r.OK {
		r.Reason = ""
	} else {
		r.Result = ""
	}
	return r
}

// WithID retorna una copia del resultado dirigida a otra solicitud.
// Se usa al reenviar un resultado cacheado o compartido a un request id distinto.
func (r Result) WithID(id string) Result {
	r.ID = id
	return r
}
