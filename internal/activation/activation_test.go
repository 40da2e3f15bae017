package activation

import (
	"fmt"
	"os"
	"strconv"
	"testing"
)

func TestListeners(t *testing.T) {
	self := strconv.Itoa(os.Getpid())

	tests := []struct {
		name    string
		pid     string
		fds     string
		wantErr bool
	}{
		{name: "no environment", pid: "", fds: ""},
		{name: "other process", pid: "99999999", fds: "1"},
		{name: "invalid pid", pid: "not-a-number", fds: "1", wantErr: true},
		{name: "invalid fds", pid: self, fds: "not-a-number", wantErr: true},
		{name: "zero fds", pid: self, fds: "0"},
		{name: "missing fds", pid: self, fds: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LISTEN_PID", tt.pid)
			t.Setenv("LISTEN_FDS", tt.fds)

			listeners, err := Listeners()
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Listeners() unexpected error: %v", err)
			}
			if listeners != nil {
				t.Errorf("expected nil listeners, got %v", listeners)
			}
		})
	}
}

func TestListen_FallsBackToAddress(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	l, activated, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() unexpected error: %v", err)
	}
	defer func() { _ = l.Close() }()

	if activated {
		t.Error("expected a directly opened listener")
	}
	if l.Addr().String() == "" {
		t.Error("expected a bound address")
	}
}

func TestListen_InvalidAddress(t *testing.T) {
	t.Setenv("LISTEN_PID", "")

	if _, _, err := Listen("not an address"); err == nil {
		t.Error("expected error for invalid address")
	}
}

func TestListen_ActivationError(t *testing.T) {
	t.Setenv("LISTEN_PID", "garbage")
	t.Setenv("LISTEN_FDS", "1")

	if _, _, err := Listen("127.0.0.1:0"); err == nil {
		t.Error("expected activation error to be returned")
	}
}

// Example demonstrates how the bridge server obtains its socket
func ExampleListen() {
	l, activated, err := Listen("127.0.0.1:0")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer func() { _ = l.Close() }()

	if activated {
		fmt.Println("using systemd socket")
	} else {
		fmt.Println("listening directly")
	}
}
