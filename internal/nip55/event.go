package nip55

import (
	"encoding/json"
	"errors"
	"strings"
)

// KindAuth es el kind de los eventos de autenticación contra relays (NIP-42).
const KindAuth = 22242

var ErrEmptyEvent = errors.New("nip55: empty event payload")

// Event es la vista mínima de un evento que necesita el dispatcher.
// No valida firmas ni hashes: eso es trabajo del motor.
type Event struct {
	ID      string     `json:"id"`
	Kind    int        `json:"kind"`
	Content string     `json:"content"`
	Tags    [][]string `json:"tags"`
}

// ParseEvent decodifica el payload crudo de params.event.
// Un objeto vacío o sin campos útiles se considera ErrEmptyEvent.
func ParseEvent(raw string) (Event, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Event{}, ErrEmptyEvent
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return Event{}, err
	}
	if len(obj) == 0 {
		return Event{}, ErrEmptyEvent
	}

	var ev Event
	// Campos con tipos inesperados no invalidan el evento entero.
	if v, ok := obj["id"]; ok {
		_ = json.Unmarshal(v, &ev.ID)
	}
	if v, ok := obj["kind"]; ok {
		_ = json.Unmarshal(v, &ev.Kind)
	}
	if v, ok := obj["content"]; ok {
		_ = json.Unmarshal(v, &ev.Content)
	}
	if v, ok := obj["tags"]; ok {
		var tags [][]any
		if json.Unmarshal(v, &tags) == nil {
			for _, t := range tags {
				row := make([]string, 0, len(t))
				for _, cell := range t {
					s, _ := cell.(string)
					row = append(row, s)
				}
				ev.Tags = append(ev.Tags, row)
			}
		}
	}
	return ev, nil
}

// IsAuth retorna true si el evento es un challenge/response de autenticación de relay.
func (e Event) IsAuth() bool { return e.Kind == KindAuth }

// Tag retorna el primer valor del primer tag con ese nombre.
func (e Event) Tag(name string) (string, bool) {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}
