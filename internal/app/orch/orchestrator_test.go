package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dkeye/Pairline/internal/adapters/storage/memory"
	"github.com/dkeye/Pairline/internal/app"
	"github.com/dkeye/Pairline/internal/app/call"
	"github.com/dkeye/Pairline/internal/core/coretest"
	"github.com/dkeye/Pairline/internal/domain"
)

func newHub(t *testing.T) *Orchestrator {
	t.Helper()
	return New(memory.NewMessageStore(), app.SimplePolicy{}, Options{StoreTimeout: time.Second})
}

func connect(o *Orchestrator, id domain.UserID) *coretest.Conn {
	c := coretest.NewConn(id)
	o.Connect(id, c)
	return c
}

func onlineSeen(t *testing.T, c *coretest.Conn) string {
	t.Helper()
	evs := c.Named(domain.EventUsersOnline)
	if len(evs) == 0 {
		t.Fatalf("%s saw no presence", c.ID)
	}
	return fmt.Sprint(evs[len(evs)-1].Data.(domain.UsersOnline).Users)
}

func TestConnectAnnouncesPresence(t *testing.T) {
	o := newHub(t)
	a := connect(o, "alice")
	if got := onlineSeen(t, a); got != "[alice]" {
		t.Fatalf("alice saw %s", got)
	}
	b := connect(o, "bob")
	for _, c := range []*coretest.Conn{a, b} {
		if got := onlineSeen(t, c); got != "[alice bob]" {
			t.Fatalf("%s saw %s", c.ID, got)
		}
	}

	o.Disconnect("bob", b)
	if got := onlineSeen(t, a); got != "[alice]" {
		t.Fatalf("after disconnect alice saw %s", got)
	}
}

func TestSupersedeClosesOldConnection(t *testing.T) {
	o := newHub(t)
	old := connect(o, "alice")
	b := connect(o, "bob")
	if err := o.Calls.Initiate("alice", "bob", domain.CallAudio, json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}

	fresh := connect(o, "alice")

	if len(old.Named(domain.EventSuperseded)) != 1 || !old.Closed() {
		t.Fatal("old connection must be told and closed")
	}
	ended := b.Named(domain.EventCallEnded)
	if len(ended) != 1 || ended[0].Data.(domain.CallEndedPayload).Reason != domain.ReasonSuperseded {
		t.Fatalf("bob ended events %+v", ended)
	}
	if got, _ := o.Registry.Lookup("alice"); got != fresh {
		t.Fatal("fresh connection must be registered")
	}

	// The old read loop exiting later must not evict the fresh connection.
	before := len(b.Named(domain.EventUsersOnline))
	o.Disconnect("alice", old)
	if got, _ := o.Registry.Lookup("alice"); got != fresh {
		t.Fatal("stale disconnect evicted the fresh connection")
	}
	if len(b.Named(domain.EventUsersOnline)) != before {
		t.Fatal("stale disconnect must not announce presence")
	}
}

func TestDisconnectDuringCall(t *testing.T) {
	o := newHub(t)
	a := connect(o, "alice")
	b := connect(o, "bob")
	if err := o.Calls.Initiate("alice", "bob", domain.CallVideo, json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := o.Calls.Answer("bob", "alice", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}

	o.Disconnect("alice", a)
	o.Disconnect("alice", a)

	ended := b.Named(domain.EventCallEnded)
	if len(ended) != 1 {
		t.Fatalf("bob got %d call:ended, want one", len(ended))
	}
	if ended[0].Data.(domain.CallEndedPayload).Reason != domain.ReasonDisconnected {
		t.Fatalf("reason %+v", ended[0].Data)
	}
	if got := onlineSeen(t, b); got != "[bob]" {
		t.Fatalf("bob saw %s", got)
	}
}

func TestDispatch(t *testing.T) {
	o := newHub(t)
	a := connect(o, "alice")
	b := connect(o, "bob")
	ctx := context.Background()

	if err := o.Dispatch(ctx, a, domain.Ping{}); err != nil {
		t.Fatal(err)
	}
	if last, _ := a.Last(); last.Name != domain.EventPong {
		t.Fatalf("expected pong, got %s", last.Name)
	}

	if err := o.Dispatch(ctx, a, domain.TypingStart{ReceiverID: "bob"}); err != nil {
		t.Fatal(err)
	}
	if err := o.Dispatch(ctx, a, domain.SendMessage{ReceiverID: "bob", Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if len(b.Named(domain.EventTypingStart)) != 1 || len(b.Named(domain.EventMessageReceive)) != 1 {
		t.Fatalf("bob events %+v", b.Events())
	}

	if err := o.Dispatch(ctx, a, domain.CallInitiate{ReceiverID: "bob", CallType: domain.CallAudio, Offer: json.RawMessage(`{}`)}); err != nil {
		t.Fatal(err)
	}
	if err := o.Dispatch(ctx, b, domain.CallAnswer{CallerID: "alice", Answer: json.RawMessage(`{}`)}); err != nil {
		t.Fatal(err)
	}
	if err := o.Dispatch(ctx, b, domain.CallICECandidate{TargetID: "alice", Candidate: json.RawMessage(`{}`)}); err != nil {
		t.Fatal(err)
	}
	if err := o.Dispatch(ctx, a, domain.CallEnd{TargetID: "bob"}); err != nil {
		t.Fatal(err)
	}
	if len(b.Named(domain.EventCallEnded)) != 1 {
		t.Fatal("bob must hear the hangup")
	}
}

func TestDispatchStaleIsSilent(t *testing.T) {
	o := newHub(t)
	a := connect(o, "alice")
	a.Reset()

	err := o.Dispatch(context.Background(), a, domain.CallAnswer{CallerID: "bob"})
	if !errors.Is(err, call.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if len(a.Events()) != 0 {
		t.Fatalf("stale answer must not reply, got %+v", a.Events())
	}
}

func TestDispatchValidationReplies(t *testing.T) {
	o := newHub(t)
	a := connect(o, "alice")

	err := o.Dispatch(context.Background(), a, domain.CallInitiate{ReceiverID: "alice", CallType: domain.CallAudio})
	if !errors.Is(err, domain.ErrSelfTarget) {
		t.Fatalf("expected ErrSelfTarget, got %v", err)
	}
	last, _ := a.Last()
	if last.Name != domain.EventError {
		t.Fatalf("expected error reply, got %s", last.Name)
	}
	if got := last.Data.(domain.Reason).Reason; got != "self_target" {
		t.Fatalf("reason %q, want self_target", got)
	}

	err = o.Dispatch(context.Background(), a, domain.CallInitiate{ReceiverID: "bob", CallType: "hologram"})
	if !errors.Is(err, domain.ErrUnknownCallType) {
		t.Fatalf("expected ErrUnknownCallType, got %v", err)
	}
	last, _ = a.Last()
	if got := last.Data.(domain.Reason).Reason; got != "unknown_call_type" {
		t.Fatalf("reason %q, want unknown_call_type", got)
	}
}

func TestSupersededConnectionCannotAct(t *testing.T) {
	o := newHub(t)
	old := connect(o, "alice")
	b := connect(o, "bob")
	fresh := connect(o, "alice")
	b.Reset()
	fresh.Reset()
	ctx := context.Background()

	// Frames the old read loop had already read before being replaced.
	err := o.Dispatch(ctx, old, domain.CallInitiate{ReceiverID: "bob", CallType: domain.CallAudio, Offer: json.RawMessage(`{}`)})
	if !errors.Is(err, ErrStaleConnection) {
		t.Fatalf("expected ErrStaleConnection, got %v", err)
	}
	err = o.Dispatch(ctx, old, domain.SendMessage{ReceiverID: "bob", Content: "ghost"})
	if !errors.Is(err, ErrStaleConnection) {
		t.Fatalf("expected ErrStaleConnection, got %v", err)
	}
	o.Disconnect("alice", old)

	if st, peer := o.Calls.StatusOf("alice"); st != domain.StatusIdle {
		t.Fatalf("alice status %s peer=%s, want idle", st, peer)
	}
	if n := len(o.Calls.Sessions()); n != 0 {
		t.Fatalf("%d dangling sessions", n)
	}
	if len(b.Named(domain.EventCallIncoming)) != 0 || len(b.Named(domain.EventMessageReceive)) != 0 {
		t.Fatalf("bob heard from a dead connection: %+v", b.Events())
	}

	// The fresh connection still acts normally.
	if err := o.Dispatch(ctx, fresh, domain.CallInitiate{ReceiverID: "bob", CallType: domain.CallAudio, Offer: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("fresh initiate: %v", err)
	}
	if len(b.Named(domain.EventCallIncoming)) != 1 {
		t.Fatal("bob must be rung by the fresh connection")
	}
}

func TestDispatchAfterDisconnectDropped(t *testing.T) {
	o := newHub(t)
	a := connect(o, "alice")
	b := connect(o, "bob")
	o.Disconnect("alice", a)
	b.Reset()

	err := o.Dispatch(context.Background(), a, domain.TypingStart{ReceiverID: "bob"})
	if !errors.Is(err, ErrStaleConnection) {
		t.Fatalf("expected ErrStaleConnection, got %v", err)
	}
	if len(b.Events()) != 0 {
		t.Fatalf("bob got %+v", b.Events())
	}
}

func TestShutdown(t *testing.T) {
	o := newHub(t)
	a := connect(o, "alice")
	b := connect(o, "bob")
	if err := o.Calls.Initiate("alice", "bob", domain.CallAudio, json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}

	o.Shutdown()

	for _, c := range []*coretest.Conn{a, b} {
		if !c.Closed() {
			t.Fatalf("%s not closed", c.ID)
		}
		if len(c.Named(domain.EventCallEnded)) != 1 {
			t.Fatalf("%s did not hear the shutdown", c.ID)
		}
	}
}
