package nip55

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingID    = errors.New("nip55: missing id")
	ErrMissingType  = errors.New("nip55: missing type")
	ErrUnknownType  = errors.New("nip55: unknown type")
	ErrMissingParam = errors.New("nip55: missing required param")
	ErrStale        = errors.New("nip55: timestamp outside accepted window")
)

// RequiredParams retorna los parámetros obligatorios de cada tipo.
func RequiredParams(t RequestType) []string {
	switch t {
	case TypeSignEvent:
		return []string{ParamEvent}
	case TypeNIP04Encrypt, TypeNIP44Encrypt:
		return []string{ParamPubkey, ParamPlaintext}
	case TypeNIP04Decrypt, TypeNIP44Decrypt:
		return []string{ParamPubkey, ParamCiphertext}
	default:
		return nil
	}
}

// Validate verifica id, type y los parámetros obligatorios del tipo.
// No toca estado ni reloj.
func Validate(req Request) error {
	if strings.TrimSpace(req.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(string(req.Type)) == "" {
		return ErrMissingType
	}
	if !req.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}
	for _, name := range RequiredParams(req.Type) {
		v, ok := req.Params.Get(name)
		if !ok || strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s", ErrMissingParam, name)
		}
	}
	return nil
}

// CheckAge rechaza timestamps a más de maxAge de now (en ambos sentidos).
// maxAge <= 0 o timestamp == 0 desactivan el chequeo.
func CheckAge(req Request, now time.Time, maxAge time.Duration) error {
	if maxAge <= 0 || req.Timestamp == 0 {
		return nil
	}
	ts := time.UnixMilli(req.Timestamp)
	d := now.Sub(ts)
	if d < 0 {
		d = -d
	}
	if d > maxAge {
		return fmt.Errorf("%w: %s", ErrStale, d.Round(time.Second))
	}
	return nil
}
