package chat

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRegistry_RegisterRejectsDuplicateUsername(t *testing.T) {
	r := NewRegistry()

	c1 := NewClient(nil, 64)
	c2 := NewClient(nil, 64)

	if !r.TryRegister(c1, "alice") {
		t.Fatal("expected first registration to succeed")
	}
	if r.TryRegister(c2, "alice") {
		t.Fatal("expected duplicate registration to fail")
	}
	if got, ok := r.Lookup("alice"); !ok || got != c1 {
		t.Fatalf("duplicate attempt altered binding: %v %v", got, ok)
	}
	if c2.Username() != "" {
		t.Fatalf("losing client got a username: %q", c2.Username())
	}
}

func TestRegistry_UsernameIsImmutable(t *testing.T) {
	r := NewRegistry()
	c := NewClient(nil, 64)

	register(t, r, c, "alice")
	if r.TryRegister(c, "alicia") {
		t.Fatal("expected second name for the same client to fail")
	}
	if _, ok := r.Lookup("alicia"); ok {
		t.Fatal("second name must not be bound")
	}
}

func TestRegistry_ConcurrentRegistrationHasOneWinner(t *testing.T) {
	r := NewRegistry()

	const racers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient(nil, 1)
			<-start
			if r.TryRegister(c, "alice") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if r.Len() != 1 {
		t.Fatalf("expected one bound name, got %d", r.Len())
	}
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()

	alice := NewClient(nil, 64)
	bob := NewClient(nil, 64)
	stranger := NewClient(nil, 64)
	register(t, r, alice, "alice")
	register(t, r, bob, "bob")

	r.Unregister(stranger)
	r.Unregister(alice)
	r.Unregister(alice)

	if _, ok := r.Lookup("alice"); ok {
		t.Fatal("alice still bound after unregister")
	}
	if got, ok := r.Lookup("bob"); !ok || got != bob {
		t.Fatal("bob's binding was disturbed")
	}
	if names := r.ListUsernames(); len(names) != 1 || names[0] != "bob" {
		t.Fatalf("unexpected names: %v", names)
	}

	// The name is free again.
	again := NewClient(nil, 64)
	register(t, r, again, "alice")
}

func TestRegistry_UsersReflectJoinLeave(t *testing.T) {
	r := NewRegistry()

	alice := NewClient(nil, 64)
	bob := NewClient(nil, 64)
	register(t, r, bob, "bob")
	register(t, r, alice, "alice")

	if got := strings.Join(r.ListUsernames(), ","); got != "alice,bob" {
		t.Fatalf("unexpected users: %q", got)
	}

	r.Unregister(bob)
	if got := strings.Join(r.ListUsernames(), ","); got != "alice" {
		t.Fatalf("unexpected users after leave: %q", got)
	}
}

func TestRegistry_MembersIncludeUnregisteredClients(t *testing.T) {
	r := NewRegistry()

	pending := NewClient(nil, 64)
	alice := NewClient(nil, 64)
	r.Track(pending)
	r.Track(alice)
	register(t, r, alice, "alice")

	if n := len(r.Members()); n != 2 {
		t.Fatalf("expected 2 members, got %d", n)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 registered, got %d", r.Len())
	}

	r.Unregister(pending)
	if n := len(r.Members()); n != 1 {
		t.Fatalf("expected 1 member after unregister, got %d", n)
	}
}

func TestRegistry_ForEachExceptSkipsSenderAndPending(t *testing.T) {
	r := NewRegistry()

	alice := NewClient(nil, 64)
	bob := NewClient(nil, 64)
	carol := NewClient(nil, 64)
	pending := NewClient(nil, 64)
	register(t, r, alice, "alice")
	register(t, r, bob, "bob")
	register(t, r, carol, "carol")
	r.Track(pending)

	seen := map[*Client]int{}
	r.ForEachExcept(alice, func(c *Client) { seen[c]++ })

	if len(seen) != 2 || seen[bob] != 1 || seen[carol] != 1 {
		t.Fatalf("unexpected visits: %v", seen)
	}
}

func TestRegistry_ForEachExceptToleratesChurn(t *testing.T) {
	r := NewRegistry()
	alice := NewClient(nil, 64)
	register(t, r, alice, "alice")
	for _, name := range []string{"bob", "carol", "dave"} {
		register(t, r, NewClient(nil, 64), name)
	}

	// fn may mutate the registry without deadlocking.
	visits := 0
	r.ForEachExcept(alice, func(c *Client) {
		visits++
		r.Unregister(c)
	})
	if visits != 3 {
		t.Fatalf("expected 3 visits, got %d", visits)
	}
	if r.Len() != 1 {
		t.Fatalf("expected only alice left, got %v", r.ListUsernames())
	}
}

func register(t *testing.T, r *Registry, c *Client, username string) {
	t.Helper()
	if !r.TryRegister(c, username) {
		t.Fatalf("register(%s) failed", username)
	}
}

func waitForPrefix(t *testing.T, ch <-chan string, prefix string) string {
	t.Helper()
	deadline := time.NewTimer(1 * time.Second)
	defer deadline.Stop()
	for {
		select {
		case s := <-ch:
			if strings.HasPrefix(s, prefix) {
				return s
			}
			// ignore other lines (join notices, etc.)
		case <-deadline.C:
			t.Fatalf("timeout waiting for prefix %q", prefix)
		}
	}
}

func expectNoLine(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case s := <-ch:
		t.Fatalf("unexpected line %q", s)
	case <-time.After(50 * time.Millisecond):
	}
}
