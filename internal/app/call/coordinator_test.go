package call

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Pairline/internal/app"
	"github.com/dkeye/Pairline/internal/core/coretest"
	"github.com/dkeye/Pairline/internal/domain"
)

var (
	offer  = json.RawMessage(`{"type":"offer","sdp":"o"}`)
	answer = json.RawMessage(`{"type":"answer","sdp":"a"}`)
)

type harness struct {
	reg   *app.Registry
	calls *Coordinator
	conns map[domain.UserID]*coretest.Conn
}

func newHarness(t *testing.T, ring time.Duration, ids ...domain.UserID) *harness {
	t.Helper()
	reg := app.NewRegistry()
	h := &harness{
		reg:   reg,
		calls: NewCoordinator(app.NewOutbox(reg, app.SimplePolicy{}), ring),
		conns: make(map[domain.UserID]*coretest.Conn),
	}
	for _, id := range ids {
		c := coretest.NewConn(id)
		reg.Register(id, c)
		h.conns[id] = c
	}
	return h
}

func (h *harness) ring(t *testing.T, caller, callee domain.UserID) {
	t.Helper()
	if err := h.calls.Initiate(caller, callee, domain.CallVideo, offer); err != nil {
		t.Fatalf("initiate: %v", err)
	}
}

func TestVideoCallAnswered(t *testing.T) {
	h := newHarness(t, 0, "alice", "bob")
	h.ring(t, "alice", "bob")

	inc := h.conns["bob"].Named(domain.EventCallIncoming)
	if len(inc) != 1 {
		t.Fatalf("bob got %d incoming events", len(inc))
	}
	p := inc[0].Data.(domain.CallIncoming)
	if p.CallerID != "alice" || p.CallType != domain.CallVideo || string(p.Offer) != string(offer) {
		t.Fatalf("incoming payload %+v", p)
	}
	if st, peer := h.calls.StatusOf("alice"); st != domain.StatusCalling || peer != "bob" {
		t.Fatalf("alice status %s/%s", st, peer)
	}
	if st, _ := h.calls.StatusOf("bob"); st != domain.StatusReceiving {
		t.Fatalf("bob status %s", st)
	}

	if err := h.calls.Answer("bob", "alice", answer); err != nil {
		t.Fatalf("answer: %v", err)
	}
	ans := h.conns["alice"].Named(domain.EventCallAnswered)
	if len(ans) != 1 || string(ans[0].Data.(domain.CallAnswered).Answer) != string(answer) {
		t.Fatalf("alice answered events %+v", ans)
	}
	for _, id := range []domain.UserID{"alice", "bob"} {
		if st, _ := h.calls.StatusOf(id); st != domain.StatusInCall {
			t.Fatalf("%s status %s, want in-call", id, st)
		}
	}
	s := h.calls.Sessions()
	if len(s) != 1 || s[0].State != domain.CallActive || s[0].AnsweredAt == nil {
		t.Fatalf("sessions %+v", s)
	}
}

func TestInitiateCalleeOffline(t *testing.T) {
	h := newHarness(t, 0, "alice")
	err := h.calls.Initiate("alice", "bob", domain.CallAudio, offer)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	un := h.conns["alice"].Named(domain.EventCallUnavail)
	if len(un) != 1 || un[0].Data.(domain.FromUser).UserID != "bob" {
		t.Fatalf("unavailable events %+v", un)
	}
	if len(h.calls.Sessions()) != 0 {
		t.Fatal("no session may exist")
	}
}

func TestInitiateBusy(t *testing.T) {
	h := newHarness(t, 0, "alice", "bob", "carol")
	h.ring(t, "alice", "bob")

	err := h.calls.Initiate("carol", "bob", domain.CallAudio, offer)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if len(h.conns["carol"].Named(domain.EventCallBusy)) != 1 {
		t.Fatal("carol must get call:busy")
	}
	if len(h.conns["bob"].Named(domain.EventCallIncoming)) != 1 {
		t.Fatal("bob must not be rung twice")
	}

	if err := h.calls.Initiate("alice", "carol", domain.CallAudio, offer); !errors.Is(err, ErrBusy) {
		t.Fatalf("caller already in a call: got %v", err)
	}
}

func TestInitiateInvalid(t *testing.T) {
	h := newHarness(t, 0, "alice", "bob")
	if err := h.calls.Initiate("alice", "alice", domain.CallAudio, offer); !errors.Is(err, domain.ErrSelfTarget) {
		t.Fatalf("self call: %v", err)
	}
	if err := h.calls.Initiate("alice", "bob", "hologram", offer); !errors.Is(err, domain.ErrUnknownCallType) {
		t.Fatalf("bad type: %v", err)
	}
	if len(h.conns["bob"].Events()) != 0 {
		t.Fatal("bob must not hear anything")
	}
}

func TestDisconnectEndsCallOnce(t *testing.T) {
	h := newHarness(t, 0, "alice", "bob")
	h.ring(t, "alice", "bob")
	if err := h.calls.Answer("bob", "alice", answer); err != nil {
		t.Fatal(err)
	}

	h.reg.Unregister("alice", h.conns["alice"])
	if !h.calls.Terminate("alice", domain.ReasonDisconnected) {
		t.Fatal("terminate must tear the session down")
	}
	if h.calls.Terminate("alice", domain.ReasonDisconnected) {
		t.Fatal("second terminate must be a no-op")
	}

	ended := h.conns["bob"].Named(domain.EventCallEnded)
	if len(ended) != 1 {
		t.Fatalf("bob got %d call:ended, want exactly one", len(ended))
	}
	p := ended[0].Data.(domain.CallEndedPayload)
	if p.UserID != "alice" || p.Reason != domain.ReasonDisconnected {
		t.Fatalf("ended payload %+v", p)
	}
	if st, _ := h.calls.StatusOf("bob"); st != domain.StatusIdle {
		t.Fatalf("bob status %s", st)
	}
}

func TestStaleMutationsAreNoops(t *testing.T) {
	h := newHarness(t, 0, "alice", "bob", "carol")

	if err := h.calls.Answer("bob", "alice", answer); !errors.Is(err, ErrNoSession) {
		t.Fatalf("answer without session: %v", err)
	}
	if err := h.calls.Reject("bob", "alice"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("reject without session: %v", err)
	}
	if err := h.calls.End("alice", "bob"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("end without session: %v", err)
	}
	if err := h.calls.RelayICECandidate("alice", "bob", json.RawMessage(`{}`)); !errors.Is(err, ErrNoSession) {
		t.Fatalf("candidate without session: %v", err)
	}

	h.ring(t, "alice", "bob")
	// carol is not part of the call.
	if err := h.calls.Answer("carol", "alice", answer); !errors.Is(err, ErrNoSession) {
		t.Fatalf("outsider answer: %v", err)
	}
	if err := h.calls.RelayICECandidate("alice", "carol", json.RawMessage(`{}`)); !errors.Is(err, ErrNoSession) {
		t.Fatalf("candidate to outsider: %v", err)
	}
	// Only the callee answers.
	if err := h.calls.Answer("alice", "bob", answer); !errors.Is(err, ErrNoSession) {
		t.Fatalf("caller answering: %v", err)
	}
	if len(h.conns["carol"].Events()) != 0 {
		t.Fatal("carol must hear nothing")
	}
}

func TestRejectThenAnswer(t *testing.T) {
	h := newHarness(t, 0, "alice", "bob")
	h.ring(t, "alice", "bob")

	if err := h.calls.Reject("bob", "alice"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if len(h.conns["alice"].Named(domain.EventCallRejected)) != 1 {
		t.Fatal("alice must get call:rejected")
	}
	if err := h.calls.Answer("bob", "alice", answer); !errors.Is(err, ErrNoSession) {
		t.Fatalf("answer after reject: %v", err)
	}
	if len(h.conns["alice"].Named(domain.EventCallAnswered)) != 0 {
		t.Fatal("late answer must not be delivered")
	}
}

func TestEndFromEitherSide(t *testing.T) {
	h := newHarness(t, 0, "alice", "bob")
	h.ring(t, "alice", "bob")

	if err := h.calls.End("bob", "alice"); err != nil {
		t.Fatalf("callee end while ringing: %v", err)
	}
	ended := h.conns["alice"].Named(domain.EventCallEnded)
	if len(ended) != 1 || ended[0].Data.(domain.CallEndedPayload).Reason != domain.ReasonHangup {
		t.Fatalf("alice ended events %+v", ended)
	}
	if len(h.calls.Sessions()) != 0 {
		t.Fatal("session must be gone")
	}
	// A fresh call is possible afterwards.
	h.ring(t, "bob", "alice")
}

func TestRelayICECandidate(t *testing.T) {
	h := newHarness(t, 0, "alice", "bob")
	h.ring(t, "alice", "bob")

	cand := json.RawMessage(`{"candidate":"candidate:1 1 UDP 1 10.0.0.1 9 typ host","sdpMid":"0"}`)
	if err := h.calls.RelayICECandidate("alice", "bob", cand); err != nil {
		t.Fatalf("relay while ringing: %v", err)
	}
	if err := h.calls.Answer("bob", "alice", answer); err != nil {
		t.Fatal(err)
	}
	if err := h.calls.RelayICECandidate("bob", "alice", cand); err != nil {
		t.Fatalf("relay while active: %v", err)
	}

	got := h.conns["bob"].Named(domain.EventCallCandidate)
	if len(got) != 1 {
		t.Fatalf("bob got %d candidates", len(got))
	}
	p := got[0].Data.(domain.CallCandidate)
	if p.UserID != "alice" || string(p.Candidate) != string(cand) {
		t.Fatalf("candidate payload %+v", p)
	}
}

func TestConcurrentAnswers(t *testing.T) {
	h := newHarness(t, 0, "alice", "bob")
	h.ring(t, "alice", "bob")

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for j := 0; j < 8; j++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.calls.Answer("bob", "alice", answer) == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if oks != 1 {
		t.Fatalf("%d answers succeeded, want 1", oks)
	}
	if n := len(h.conns["alice"].Named(domain.EventCallAnswered)); n != 1 {
		t.Fatalf("alice got %d call:answered", n)
	}
}

func TestRingTimeout(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond, "alice", "bob")
	h.ring(t, "alice", "bob")

	deadline := time.Now().Add(2 * time.Second)
	for len(h.calls.Sessions()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("ringing call never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	for _, id := range []domain.UserID{"alice", "bob"} {
		ended := h.conns[id].Named(domain.EventCallEnded)
		if len(ended) != 1 || ended[0].Data.(domain.CallEndedPayload).Reason != domain.ReasonTimeout {
			t.Fatalf("%s ended events %+v", id, ended)
		}
	}
}

func TestAnswerStopsRingTimer(t *testing.T) {
	h := newHarness(t, 30*time.Millisecond, "alice", "bob")
	h.ring(t, "alice", "bob")
	if err := h.calls.Answer("bob", "alice", answer); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)
	if len(h.calls.Sessions()) != 1 {
		t.Fatal("answered call must survive the ring timeout")
	}
}

func TestCloseEndsEverything(t *testing.T) {
	h := newHarness(t, 0, "alice", "bob", "carol", "dave")
	h.ring(t, "alice", "bob")
	h.ring(t, "carol", "dave")

	h.calls.Close()
	if len(h.calls.Sessions()) != 0 {
		t.Fatal("sessions left after close")
	}
	for id, c := range h.conns {
		ended := c.Named(domain.EventCallEnded)
		if len(ended) != 1 || ended[0].Data.(domain.CallEndedPayload).Reason != domain.ReasonShutdown {
			t.Fatalf("%s ended events %+v", id, ended)
		}
	}
}

func TestCalleeDisconnectsWhileRinging(t *testing.T) {
	h := newHarness(t, 0, "alice", "bob")
	h.ring(t, "alice", "bob")

	h.reg.Unregister("bob", h.conns["bob"])
	if !h.calls.Terminate("bob", domain.ReasonDisconnected) {
		t.Fatal("ringing session must be torn down")
	}

	ended := h.conns["alice"].Named(domain.EventCallEnded)
	if len(ended) != 1 {
		t.Fatalf("alice got %d call:ended, want exactly one", len(ended))
	}
	if p := ended[0].Data.(domain.CallEndedPayload); p.UserID != "bob" || p.Reason != domain.ReasonDisconnected {
		t.Fatalf("ended payload %+v", p)
	}
	if st, _ := h.calls.StatusOf("alice"); st != domain.StatusIdle {
		t.Fatalf("alice status %s", st)
	}

	// A late answer from bob's old connection changes nothing.
	if err := h.calls.Answer("bob", "alice", answer); !errors.Is(err, ErrNoSession) {
		t.Fatalf("late answer: %v", err)
	}
	if len(h.conns["alice"].Named(domain.EventCallAnswered)) != 0 {
		t.Fatal("late answer must not reach alice")
	}
	if len(h.conns["alice"].Named(domain.EventCallEnded)) != 1 {
		t.Fatal("no further call:ended expected")
	}
}

func TestInitiateFromStaleConnection(t *testing.T) {
	h := newHarness(t, 0, "alice", "bob")
	old := h.conns["alice"]
	h.reg.Register("alice", coretest.NewConn("alice"))

	err := h.calls.InitiateFrom(old, "bob", domain.CallAudio, offer)
	if !errors.Is(err, ErrStaleCaller) {
		t.Fatalf("expected ErrStaleCaller, got %v", err)
	}
	if len(h.calls.Sessions()) != 0 || len(h.conns["bob"].Events()) != 0 {
		t.Fatal("stale caller must not create a call")
	}

	if err := h.calls.InitiateFrom(h.conns["bob"], "alice", domain.CallVideo, offer); err != nil {
		t.Fatalf("registered caller: %v", err)
	}
}
