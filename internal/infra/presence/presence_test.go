package presence

import (
	"fmt"
	"sync"
	"testing"
)

func TestConnectedDisconnected(t *testing.T) {
	tr := NewTracker()

	tr.Connected(1, "c1")
	if !tr.IsOnline(1) {
		t.Fatal("user 1 should be online after connecting")
	}

	userID, offline := tr.Disconnected("c1")
	if userID != 1 || !offline {
		t.Fatalf("Disconnected = (%d, %v), want (1, true)", userID, offline)
	}
	if tr.IsOnline(1) {
		t.Fatal("user 1 should be offline after last connection closes")
	}
}

func TestMultipleConnectionsPerUser(t *testing.T) {
	tr := NewTracker()

	tr.Connected(1, "tab-a")
	tr.Connected(1, "tab-b")

	if _, offline := tr.Disconnected("tab-a"); offline {
		t.Fatal("user still has tab-b open, should not be offline")
	}
	if !tr.IsOnline(1) {
		t.Fatal("user should still be online")
	}
	if _, offline := tr.Disconnected("tab-b"); !offline {
		t.Fatal("last connection closed, user should be offline")
	}
}

func TestDisconnectUnknownConn(t *testing.T) {
	tr := NewTracker()

	userID, offline := tr.Disconnected("never-seen")
	if userID != 0 || offline {
		t.Fatalf("Disconnected(unknown) = (%d, %v), want (0, false)", userID, offline)
	}
}

func TestOnlineUsersSorted(t *testing.T) {
	tr := NewTracker()

	tr.Connected(3, "c3")
	tr.Connected(1, "c1")
	tr.Connected(2, "c2")

	ids := tr.OnlineUsers()
	want := []int64{1, 2, 3}
	if len(ids) != len(want) {
		t.Fatalf("got %d online users, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("OnlineUsers = %v, want %v", ids, want)
		}
	}
}

func TestConcurrentChurn(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", n)
			tr.Connected(int64(n%5), connID)
			tr.IsOnline(int64(n % 5))
			tr.Disconnected(connID)
		}(i)
	}
	wg.Wait()

	if got := tr.OnlineUsers(); len(got) != 0 {
		t.Fatalf("all connections closed, but %v still online", got)
	}
}
