package role

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"user", User, true},
		{" Creator ", Creator, true},
		{"ADMIN", Admin, true},
		{"admn", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("Parse(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestGuards(t *testing.T) {
	tests := []struct {
		guard Guard
		role  Role
		want  bool
	}{
		{CreatorGuard, User, false},
		{CreatorGuard, Creator, true},
		{CreatorGuard, Admin, true},
		{AdminGuard, User, false},
		{AdminGuard, Creator, false},
		{AdminGuard, Admin, true},
		{AdminGuard, Role(0), false},
	}
	for _, tt := range tests {
		if got := tt.guard.Admits(tt.role); got != tt.want {
			t.Errorf("%s admits %v = %v", tt.guard.Name, tt.role, got)
		}
	}
}

func TestNavigation(t *testing.T) {
	if n := len(Navigation(User)); n != 3 {
		t.Fatalf("user nav = %d items", n)
	}
	if n := len(Navigation(Creator)); n != 6 {
		t.Fatalf("creator nav = %d items", n)
	}
	admin := Navigation(Admin)
	if len(admin) != 8 || admin[len(admin)-1].Path != "/dashboard/manage-contests" {
		t.Fatalf("admin nav = %+v", admin)
	}
	if Navigation(Role(9)) != nil {
		t.Fatal("invalid role got a menu")
	}
}

type fakeSource struct {
	calls atomic.Int32
	role  string
	err   error
	delay time.Duration
}

func (f *fakeSource) Role(ctx context.Context, email string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.role, f.err
}

func TestResolveCachesPerSession(t *testing.T) {
	r := NewResolver(nil)
	src := &fakeSource{role: "creator"}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if got := r.Resolve(ctx, "s1", "ann@x.io", src); got != Creator {
			t.Fatalf("Resolve = %v", got)
		}
	}
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("backend calls = %d, want 1", n)
	}

	// a different identity on the same session is not served from cache
	r.Resolve(ctx, "s1", "bob@x.io", src)
	if n := src.calls.Load(); n != 2 {
		t.Fatalf("backend calls = %d, want 2", n)
	}

	r.Invalidate(ctx, "s1")
	r.Resolve(ctx, "s1", "bob@x.io", src)
	if n := src.calls.Load(); n != 3 {
		t.Fatalf("backend calls after invalidate = %d, want 3", n)
	}
}

func TestResolveFailsToUser(t *testing.T) {
	r := NewResolver(nil)
	ctx := context.Background()

	if got := r.Resolve(ctx, "s1", "ann@x.io", &fakeSource{err: errors.New("boom")}); got != User {
		t.Fatalf("failed lookup = %v, want user", got)
	}
	if got := r.Resolve(ctx, "s1", "ann@x.io", &fakeSource{role: "superuser"}); got != User {
		t.Fatalf("unknown role = %v, want user", got)
	}
	// failures are not cached
	if got := r.Resolve(ctx, "s1", "ann@x.io", &fakeSource{role: "admin"}); got != Admin {
		t.Fatalf("after failures = %v, want admin", got)
	}
}

func TestResolveSharesInflightLookup(t *testing.T) {
	r := NewResolver(nil)
	src := &fakeSource{role: "admin", delay: 50 * time.Millisecond}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := r.Resolve(context.Background(), "s1", "ann@x.io", src); got != Admin {
				t.Errorf("Resolve = %v", got)
			}
		}()
	}
	wg.Wait()
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("backend calls = %d, want 1", n)
	}
}

func TestForgetDropsAllSessionsOfEmail(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	c.Put(ctx, "s1", Entry{Email: "ann@x.io", Role: Creator})
	c.Put(ctx, "s2", Entry{Email: "ANN@x.io", Role: Creator})
	c.Put(ctx, "s3", Entry{Email: "bob@x.io", Role: User})

	NewResolver(c).Forget(ctx, "ann@x.io")

	if _, ok := c.Get(ctx, "s1"); ok {
		t.Fatal("s1 kept")
	}
	if _, ok := c.Get(ctx, "s2"); ok {
		t.Fatal("s2 kept")
	}
	if _, ok := c.Get(ctx, "s3"); !ok {
		t.Fatal("s3 dropped")
	}
}

func TestEntryEncoding(t *testing.T) {
	e := Entry{Email: "a|b@x.io", Role: Admin}
	got, ok := decodeEntry(encodeEntry(e))
	if !ok || got != e {
		t.Fatalf("decode = %+v, %v", got, ok)
	}
	if _, ok := decodeEntry("nobar"); ok {
		t.Fatal("decoded garbage")
	}
}
