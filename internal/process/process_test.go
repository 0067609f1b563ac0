package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startShell(t *testing.T, script string) *Process {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	cmd := exec.Command("/bin/sh", "-c", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	require.NoError(t, cmd.Start())
	return New(cmd)
}

func TestWaitExitCode(t *testing.T) {
	p := startShell(t, "exit 3")
	if p.PID() <= 0 {
		t.Errorf("expected positive PID, got %d", p.PID())
	}
	if p.State() != StateRunning {
		t.Errorf("expected running before Wait, got %v", p.State())
	}

	st := p.Wait()
	assert.Equal(t, 3, st.Code)
	assert.False(t, st.Signaled)
	assert.False(t, st.Success())
	assert.Equal(t, "exit status 3", st.String())
	assert.Equal(t, StateExited, p.State())
	assert.Equal(t, st, p.Status())

	select {
	case <-p.Done():
	default:
		t.Error("Done not closed after Wait")
	}
}

func TestWaitSuccess(t *testing.T) {
	p := startShell(t, "true")
	st := p.Wait()
	assert.True(t, st.Success())
	assert.Equal(t, "exit status 0", st.String())
}

func TestSignalProcessGroup(t *testing.T) {
	p := startShell(t, "sleep 30 & wait")

	result := make(chan ExitStatus, 1)
	go func() { result <- p.Wait() }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.Signal(syscall.SIGTERM))

	select {
	case st := <-result:
		assert.True(t, st.Signaled)
		assert.Equal(t, syscall.SIGTERM, st.Signal)
		assert.Equal(t, "killed by SIGTERM", st.String())
		assert.Equal(t, StateKilled, p.State())
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after SIGTERM")
	}

	assert.NoError(t, p.Hangup(), "signalling a reaped process is not an error")
}

func TestExitStatusFromError(t *testing.T) {
	st := exitStatus(errors.New("boom"))
	assert.Equal(t, -1, st.Code)
	assert.EqualError(t, st.Err, "boom")
	assert.Equal(t, "wait failed: boom", st.String())
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		in      string
		want    syscall.Signal
		wantErr bool
	}{
		{"SIGTERM", syscall.SIGTERM, false},
		{"TERM", syscall.SIGTERM, false},
		{"term", syscall.SIGTERM, false},
		{" hup ", syscall.SIGHUP, false},
		{"9", syscall.SIGKILL, false},
		{"0", 0, true},
		{"99", 0, true},
		{"SIGNOPE", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSignal(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", SignalName(syscall.SIGINT))
	assert.Equal(t, "signal 200", SignalName(syscall.Signal(200)))
	assert.Equal(t, "exited", StateExited.String())
}
