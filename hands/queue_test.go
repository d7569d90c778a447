package hands

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustIdentity(t *testing.T, name string) Identity {
	t.Helper()

	id, err := NewIdentity(name)
	if err != nil {
		t.Fatalf("NewIdentity(%q): unexpected error: %v", name, err)
	}

	return id
}

func TestQueueAddRemove(t *testing.T) {
	alice := mustIdentity(t, "Alice")
	bob := mustIdentity(t, "Bob")

	type step struct {
		add  bool
		user Identity
		want bool
	}

	tests := []struct {
		name  string
		steps []step
		want  []string
	}{
		{
			name:  "single add",
			steps: []step{{true, alice, true}},
			want:  []string{"Alice"},
		},
		{
			name:  "duplicate add is a no-op",
			steps: []step{{true, alice, true}, {true, alice, false}},
			want:  []string{"Alice"},
		},
		{
			name:  "fifo order",
			steps: []step{{true, bob, true}, {true, alice, true}},
			want:  []string{"Bob", "Alice"},
		},
		{
			name:  "remove absent member",
			steps: []step{{false, alice, false}},
			want:  []string{},
		},
		{
			name:  "remove then re-add goes to the back",
			steps: []step{{true, alice, true}, {true, bob, true}, {false, alice, true}, {true, alice, true}},
			want:  []string{"Bob", "Alice"},
		},
		{
			name:  "double remove",
			steps: []step{{true, alice, true}, {false, alice, true}, {false, alice, false}},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQueue("Questions")

			for i, s := range tt.steps {
				var got bool
				if s.add {
					got = q.Add(s.user)
				} else {
					got = q.Remove(s.user)
				}
				if got != s.want {
					t.Fatalf("step %d: got %t, want %t", i, got, s.want)
				}
			}

			if diff := cmp.Diff(tt.want, q.Snapshot().CurrentList); diff != "" {
				t.Errorf("CurrentList mismatch (-want +got):\n%s", diff)
			}
			if len(q.members) != len(q.names) {
				t.Errorf("members/names out of sync: %d members, %d names", len(q.members), len(q.names))
			}
		})
	}
}

func TestQueueFrozen(t *testing.T) {
	alice := mustIdentity(t, "Alice")
	carl := mustIdentity(t, "Carl")

	q := newQueue("Questions")
	q.Add(alice)
	q.SetFrozen(true)

	if q.Add(carl) {
		t.Fatalf("Add on frozen queue: expected false")
	}
	if q.Contains(carl.ID) {
		t.Fatalf("Add on frozen queue: Carl should not be a member")
	}
	if !q.Remove(alice) {
		t.Fatalf("Remove on frozen queue: expected true")
	}
	if q.Len() != 0 {
		t.Fatalf("Remove on frozen queue: expected empty queue, got %d", q.Len())
	}

	q.SetFrozen(false)
	if !q.Add(carl) {
		t.Fatalf("Add after unfreeze: expected true")
	}
}

func TestQueueSnapshotIsACopy(t *testing.T) {
	alice := mustIdentity(t, "Alice")

	q := newQueue("Questions")
	q.Add(alice)

	snap := q.Snapshot()
	q.Remove(alice)

	want := QueueSnapshot{
		Name:        "Questions",
		CurrentList: []string{"Alice"},
		IsFrozen:    false,
		ChannelID:   q.ChannelID(),
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("snapshot changed after mutation (-want +got):\n%s", diff)
	}
}
