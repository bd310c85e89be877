package nip55

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestValidate_OK(t *testing.T) {
	cases := []Request{
		{ID: "1", Type: TypeGetPublicKey},
		{ID: "2", Type: TypeSignEvent, Params: Params{"event": `{"kind":1}`}},
		{ID: "3", Type: TypeNIP04Encrypt, Params: Params{"pubkey": "pk", "plaintext": "hola"}},
		{ID: "4", Type: TypeNIP44Decrypt, Params: Params{"pubkey": "pk", "ciphertext": "xx"}},
	}
	for _, c := range cases {
		if err := Validate(c); err != nil {
			t.Fatalf("expected valid %s: %v", c.Type, err)
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"missing id", Request{Type: TypeGetPublicKey}, ErrMissingID},
		{"blank id", Request{ID: "  ", Type: TypeGetPublicKey}, ErrMissingID},
		{"missing type", Request{ID: "x"}, ErrMissingType},
		{"unknown type", Request{ID: "x", Type: "nonexistent_action"}, ErrUnknownType},
		{"missing event", Request{ID: "x", Type: TypeSignEvent}, ErrMissingParam},
		{"missing plaintext", Request{ID: "x", Type: TypeNIP04Encrypt, Params: Params{"pubkey": "pk"}}, ErrMissingParam},
		{"missing ciphertext", Request{ID: "x", Type: TypeNIP04Decrypt, Params: Params{"pubkey": "pk"}}, ErrMissingParam},
	}
	for _, c := range cases {
		err := Validate(c.req)
		if !errors.Is(err, c.want) {
			t.Fatalf("%s: got %v want %v", c.name, err, c.want)
		}
	}
}

func TestParams_NullIsAbsent(t *testing.T) {
	var req Request
	body := `{"id":"a","type":"nip04_encrypt","params":{"pubkey":"pk","plaintext":null},"callingApp":"app","timestamp":1}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := req.Params.Get("plaintext"); ok {
		t.Fatalf("null param should be absent")
	}
	if !errors.Is(Validate(req), ErrMissingParam) {
		t.Fatalf("expected missing param")
	}
}

func TestParams_ObjectEventKeptRaw(t *testing.T) {
	var p Params
	if err := json.Unmarshal([]byte(`{"event":{"id":"abc","kind":1}}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ev, err := ParseEvent(p["event"])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.ID != "abc" {
		t.Fatalf("got id %q", ev.ID)
	}
}

func TestCheckAge(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fresh := Request{Timestamp: now.Add(-time.Minute).UnixMilli()}
	old := Request{Timestamp: now.Add(-24 * time.Hour).UnixMilli()}
	future := Request{Timestamp: now.Add(24 * time.Hour).UnixMilli()}

	if err := CheckAge(fresh, now, time.Hour); err != nil {
		t.Fatalf("fresh rejected: %v", err)
	}
	if !errors.Is(CheckAge(old, now, time.Hour), ErrStale) {
		t.Fatalf("old accepted")
	}
	if !errors.Is(CheckAge(future, now, time.Hour), ErrStale) {
		t.Fatalf("future accepted")
	}
	if err := CheckAge(old, now, 0); err != nil {
		t.Fatalf("disabled check rejected: %v", err)
	}
}

func TestResult_Normalize(t *testing.T) {
	r := Result{OK: false, Result: "leak", Reason: "denied"}.Normalize()
	if r.Result != "" || r.Reason != "denied" {
		t.Fatalf("unexpected %+v", r)
	}
	s := Success(Request{ID: "1", Type: TypeGetPublicKey}, "pk")
	if !s.OK || s.Result != "pk" || s.Type != "get_public_key" {
		t.Fatalf("unexpected %+v", s)
	}
}

func TestParseEvent(t *testing.T) {
	if _, err := ParseEvent(""); !errors.Is(err, ErrEmptyEvent) {
		t.Fatalf("empty: %v", err)
	}
	if _, err := ParseEvent("{}"); !errors.Is(err, ErrEmptyEvent) {
		t.Fatalf("empty object: %v", err)
	}
	if _, err := ParseEvent("not_valid_json"); err == nil {
		t.Fatalf("expected json error")
	}
	ev, err := ParseEvent(`{"kind":22242,"tags":[["relay","wss://r"],["challenge","c1"],[5]]}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ev.IsAuth() {
		t.Fatalf("expected auth kind")
	}
	if v, _ := ev.Tag("challenge"); v != "c1" {
		t.Fatalf("challenge %q", v)
	}
	if _, ok := ev.Tag("missing"); ok {
		t.Fatalf("unexpected tag")
	}
}
