package firmwarelink

import (
	"testing"
)

func TestIsOpenAndReadProxyToPort(t *testing.T) {
	l := New(nil, &fakeBlocks{})
	if l.IsOpen() {
		t.Fatal("expected IsOpen false before Attach")
	}
	if _, err := l.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected Read on an unopened link to fail")
	}

	l.Attach(&fakePort{})
	if !l.IsOpen() {
		t.Fatal("expected IsOpen true after Attach")
	}
	if _, err := l.Read(make([]byte, 8)); err != nil {
		t.Fatal(err)
	}
}

func TestCloseResetsBuffers(t *testing.T) {
	l := New(nil, &fakeBlocks{})
	l.Attach(&fakePort{})
	l.Enqueue("h")
	l.ReadAvailable([]byte("partial"))

	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if l.IsOpen() {
		t.Fatal("expected IsOpen false after Close")
	}
	if len(l.readBuf) != 0 || len(l.current) != 0 {
		t.Fatal("expected Close to reset internal read/write buffers")
	}
}

func TestScheduleReconnectArmsAStoppableTimer(t *testing.T) {
	l := New(nil, &fakeBlocks{})
	l.Attach(&fakePort{})

	timer := l.ScheduleReconnect()
	if timer == nil {
		t.Fatal("expected a non-nil timer")
	}
	if !timer.Stop() {
		t.Fatal("expected to be able to stop the timer before it fires")
	}
}
