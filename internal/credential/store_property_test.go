package credential

import (
	"fmt"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"
)

// genToken generates non-empty opaque tokens.
func genToken() *rapid.Generator[string] {
	return rapid.StringMatching(`[A-Za-z0-9._-]{1,40}`)
}

// checkStoreModel drives a Store with random Set/Clear/SetIf/Get sequences
// and compares every Get with a one-slot model.
func checkStoreModel(t *rapid.T, store Store) {
	var (
		model   string
		present bool
		seen    = store.Version()
	)

	t.Repeat(map[string]func(*rapid.T){
		"set": func(t *rapid.T) {
			tok := genToken().Draw(t, "token")
			if err := store.Set(tok); err != nil {
				t.Fatalf("Set: %v", err)
			}
			model, present = tok, true
		},
		"clear": func(t *rapid.T) {
			if err := store.Clear(); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			model, present = "", false
		},
		"observe": func(t *rapid.T) {
			seen = store.Version()
		},
		"set if": func(t *rapid.T) {
			tok := rapid.OneOf(genToken(), rapid.Just("")).Draw(t, "token")
			current := store.Version() == seen
			wrote, err := store.SetIf(seen, tok)
			if err != nil {
				t.Fatalf("SetIf: %v", err)
			}
			if wrote != current {
				t.Fatalf("SetIf wrote=%v with version current=%v", wrote, current)
			}
			if wrote {
				model, present = tok, tok != ""
			}
		},
		"": func(t *rapid.T) {
			got, ok := store.Get()
			if ok != present || got != model {
				t.Fatalf("Get() = %q, %v; model %q, %v", got, ok, model, present)
			}
		},
	})
}

func TestMemoryStore_MatchesSingleSlotModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		checkStoreModel(t, NewMemoryStore())
	})
}

func TestFileStore_MatchesSingleSlotModel(t *testing.T) {
	dir := t.TempDir()
	n := 0
	rapid.Check(t, func(t *rapid.T) {
		n++
		checkStoreModel(t, NewFileStore(filepath.Join(dir, fmt.Sprintf("creds-%d.json", n))))
	})
}

// TestFileStore_ReopenSeesLastWrite checks that a fresh FileStore on the same
// path observes exactly the state the previous one left behind.
func TestFileStore_ReopenSeesLastWrite(t *testing.T) {
	dir := t.TempDir()
	n := 0
	rapid.Check(t, func(t *rapid.T) {
		n++
		path := filepath.Join(dir, fmt.Sprintf("creds-%d.json", n))
		store := NewFileStore(path)

		ops := rapid.SliceOfN(rapid.Ptr(genToken(), true), 1, 20).Draw(t, "ops")
		var want string
		for _, op := range ops {
			if op == nil {
				_ = store.Clear()
				want = ""
				continue
			}
			_ = store.Set(*op)
			want = *op
		}

		got, ok := NewFileStore(path).Get()
		if got != want || ok != (want != "") {
			t.Fatalf("reopened Get() = %q, %v; want %q", got, ok, want)
		}
	})
}
