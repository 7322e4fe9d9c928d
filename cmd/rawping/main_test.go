package main

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tkjaer/rawping/internal/config"
	"github.com/tkjaer/rawping/internal/probe"
	"github.com/tkjaer/rawping/internal/shared"
)

func Test_sourceAddr(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    netip.Addr
		wantErr bool
	}{
		{name: "empty", spec: "", want: netip.Addr{}},
		{name: "ipv4 literal", spec: "192.0.2.10", want: netip.MustParseAddr("192.0.2.10")},
		{name: "mapped literal", spec: "::ffff:192.0.2.10", want: netip.MustParseAddr("192.0.2.10")},
		{name: "ipv6 literal", spec: "2001:db8::1", wantErr: true},
		{name: "unknown interface", spec: "does-not-exist0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sourceAddr(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("sourceAddr(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("sourceAddr(%q) = %v, want %v", tt.spec, got, tt.want)
			}
		})
	}
}

func Test_createOutputs(t *testing.T) {
	tests := []struct {
		name    string
		args    config.Args
		wantErr bool
	}{
		{name: "text only", args: config.Args{Destinations: []string{"a"}}},
		{name: "json stdout", args: config.Args{Destinations: []string{"a"}, Json: true}},
		{name: "table", args: config.Args{Destinations: []string{"a", "b"}, Parallel: 2, Table: true}},
		{name: "metrics on ephemeral port", args: config.Args{Destinations: []string{"a"}, MetricsAddr: "127.0.0.1:0"}},
		{name: "bad json path", args: config.Args{Destinations: []string{"a"}, JsonFile: "/nonexistent/dir/out.json"}, wantErr: true},
		{name: "bad metrics address", args: config.Args{Destinations: []string{"a"}, MetricsAddr: "not-an-address"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			om, err := createOutputs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createOutputs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if om != nil {
				if err := om.Close(); err != nil {
					t.Errorf("Close() error = %v", err)
				}
			}
		})
	}
}

// openFDsFor lists this process's descriptors open on path.
func openFDsFor(t *testing.T, path string) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("cannot list open descriptors: %v", err)
	}
	n := 0
	for _, e := range entries {
		if target, err := os.Readlink(filepath.Join("/proc/self/fd", e.Name())); err == nil && target == path {
			n++
		}
	}
	return n
}

func Test_createOutputs_ClosesOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	args := config.Args{
		Destinations: []string{"a"},
		JsonFile:     path,
		MetricsAddr:  "not-an-address",
	}

	om, err := createOutputs(args)
	if err == nil {
		t.Fatal("createOutputs() expected error for bad metrics address")
	}
	if om != nil {
		t.Errorf("createOutputs() returned %v alongside error", om)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("json file was not created: %v", statErr)
	}
	if n := openFDsFor(t, path); n != 0 {
		t.Errorf("json file still open %d times after failure", n)
	}
}

func Test_runSessions(t *testing.T) {
	dests := []string{"a.example", "b.example", "c.example"}

	t.Run("identifiers follow the base", func(t *testing.T) {
		var mu sync.Mutex
		ids := map[string]uint16{}
		statuses := runSessions(context.Background(), dests, probe.DefaultConfig(), 100, 2,
			func(_ context.Context, dest string, cfg probe.Config) int {
				mu.Lock()
				ids[dest] = cfg.ID
				mu.Unlock()
				if dest == "b.example" {
					return shared.StatusFailed
				}
				return shared.StatusOK
			})

		want := map[string]uint16{"a.example": 100, "b.example": 101, "c.example": 102}
		if len(ids) != len(want) {
			t.Fatalf("ran %d sessions, want %d", len(ids), len(want))
		}
		for d, id := range want {
			if ids[d] != id {
				t.Errorf("%s identifier = %d, want %d", d, ids[d], id)
			}
		}
		wantStatuses := []int{shared.StatusOK, shared.StatusFailed, shared.StatusOK}
		if !slices.Equal(statuses, wantStatuses) {
			t.Errorf("statuses = %v, want %v", statuses, wantStatuses)
		}
	})

	t.Run("queued destinations skipped after cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var started atomic.Int32
		statuses := runSessions(ctx, dests, probe.DefaultConfig(), 1, 1,
			func(context.Context, string, probe.Config) int {
				started.Add(1)
				cancel()
				return shared.StatusOK
			})

		if got := started.Load(); got != 1 {
			t.Errorf("started %d sessions, want 1", got)
		}
		wantStatuses := []int{shared.StatusOK, shared.StatusFailed, shared.StatusFailed}
		if !slices.Equal(statuses, wantStatuses) {
			t.Errorf("statuses = %v, want %v", statuses, wantStatuses)
		}
	})

	t.Run("nothing runs when already cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		statuses := runSessions(ctx, dests, probe.DefaultConfig(), 1, 4,
			func(context.Context, string, probe.Config) int {
				t.Error("session started after cancellation")
				return shared.StatusOK
			})
		for i, st := range statuses {
			if st != shared.StatusFailed {
				t.Errorf("statuses[%d] = %d, want %d", i, st, shared.StatusFailed)
			}
		}
	})
}
