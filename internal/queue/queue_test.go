package queue

import (
	"context"
	"testing"
	"time"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := New()
	q.Push(TopicRegisterUser, []byte("a"))
	q.Push(TopicRegisterUser, []byte("b"))
	q.Push(TopicRegisterUser, []byte("c"))

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop(ctx, TopicRegisterUser)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if string(got) != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New()
	done := make(chan []byte, 1)
	go func() {
		v, err := q.Pop(context.Background(), TopicClaimDeposit)
		if err != nil {
			t.Errorf("Pop: %v", err)
			return
		}
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(TopicClaimDeposit, []byte("x"))

	select {
	case v := <-done:
		if string(v) != "x" {
			t.Fatalf("expected x, got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
}

func TestQueue_PopRespectsContextCancellation(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx, TopicTokenTransfer)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestQueue_DrainAllIsFIFOAndClears(t *testing.T) {
	q := New()
	q.Push(TopicAddWithdrawal, []byte("1"))
	q.Push(TopicAddWithdrawal, []byte("2"))

	items := q.DrainAll(TopicAddWithdrawal)
	if len(items) != 2 || string(items[0]) != "1" || string(items[1]) != "2" {
		t.Fatalf("unexpected drain order: %v", items)
	}
	if q.Len(TopicAddWithdrawal) != 0 {
		t.Fatalf("expected queue to be empty after drain")
	}
}
