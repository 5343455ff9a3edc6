package bus

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe("task.")
	defer b.Unsubscribe(sub)

	b.Publish(TopicTaskClaimed, TaskEvent{Task: "T1.md", RoleID: "local"})

	select {
	case event := <-sub.Ch():
		if event.Topic != TopicTaskClaimed {
			t.Fatalf("topic = %q, want %q", event.Topic, TopicTaskClaimed)
		}
		ev, ok := event.Payload.(TaskEvent)
		if !ok || ev.Task != "T1.md" {
			t.Fatalf("payload = %v", event.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_PrefixMatching(t *testing.T) {
	b := New()
	taskSub := b.Subscribe("task.")
	defer b.Unsubscribe(taskSub)
	approvalSub := b.Subscribe("approval.")
	defer b.Unsubscribe(approvalSub)

	b.Publish(TopicApprovalFiled, TaskEvent{Task: "SEND_APPROVAL_T1.md"})

	select {
	case event := <-approvalSub.Ch():
		if event.Topic != TopicApprovalFiled {
			t.Fatalf("topic = %q", event.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for approval event")
	}

	select {
	case event := <-taskSub.Ch():
		t.Fatalf("unexpected event on task subscription: %v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe("")
	b.Unsubscribe(sub)

	if _, ok := <-sub.Ch(); ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d, want 0", b.SubscriberCount())
	}
}

func TestBus_SlowSubscriberDropsEvents(t *testing.T) {
	b := New()
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	// Overfill the buffer; publishes must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize*2; i++ {
			b.Publish(TopicTaskCompleted, TaskEvent{Task: "T.md"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on full subscriber")
	}
}
