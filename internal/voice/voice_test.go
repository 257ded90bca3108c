package voice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeOutput struct {
	mu     sync.Mutex
	said   []string
	stops  int
	spoken chan string
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{spoken: make(chan string, 32)}
}

func (f *fakeOutput) Say(_ context.Context, text string) error {
	f.mu.Lock()
	f.said = append(f.said, text)
	f.mu.Unlock()
	f.spoken <- text
	return nil
}

func (f *fakeOutput) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	return nil
}

func expectSpoken(t *testing.T, f *fakeOutput, want string) {
	t.Helper()
	select {
	case got := <-f.spoken:
		if got != want {
			t.Fatalf("spoke %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestAsyncSpeakerSpeaks(t *testing.T) {
	out := newFakeOutput()
	s := NewAsyncSpeaker(out, 4, true, zerolog.Nop())
	s.Start()
	defer s.Stop()

	s.Speak("마이너스 5도입니다", false)
	expectSpoken(t, out, "마이너스 5도입니다")
}

func TestAsyncSpeakerMuted(t *testing.T) {
	out := newFakeOutput()
	s := NewAsyncSpeaker(out, 4, false, zerolog.Nop())
	s.Start()
	defer s.Stop()

	s.Speak("dropped", false)
	s.Speak("forced", true)
	expectSpoken(t, out, "forced")

	s.SetEnabled(true)
	s.Speak("after unmute", false)
	expectSpoken(t, out, "after unmute")
}

func TestAsyncSpeakerQueueBehaviour(t *testing.T) {
	out := newFakeOutput()
	s := NewAsyncSpeaker(out, 2, true, zerolog.Nop())

	// not started: lines stay queued
	s.Speak("one", false)
	s.Speak("two", false)
	s.Speak("three", false) // queue full, dropped
	if len(s.queue) != 2 {
		t.Fatalf("queue length = %d, want 2", len(s.queue))
	}

	s.Speak("forced", true)
	if len(s.queue) != 1 {
		t.Fatalf("forced line should replace the queue, length = %d", len(s.queue))
	}

	s.StopSpeaking()
	if len(s.queue) != 0 {
		t.Errorf("queue not drained by StopSpeaking")
	}
	if out.stops != 1 {
		t.Errorf("output Stop called %d times, want 1", out.stops)
	}
}
