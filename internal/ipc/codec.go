package ipc

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode usa Core Deterministic Encoding: el mismo valor produce siempre los
// mismos bytes.
var encMode cbor.EncMode

// decMode ignora campos desconocidos y decodifica mapas genéricos como
// map[string]any.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("ipc: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("ipc: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal codifica v en CBOR.
func Marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal decodifica CBOR en v.
func Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

func newEncoder(w io.Writer) *cbor.Encoder { return encMode.NewEncoder(w) }

func newDecoder(r io.Reader) *cbor.Decoder { return decMode.NewDecoder(r) }

// RawMessage es un valor CBOR sin decodificar.
type RawMessage = cbor.RawMessage
