// Package remote executes single commands on fleet devices over SSH.
//
// The transport is deliberately primitive: one connection, one command, one
// attempt, a hard timeout. Retries and scheduling belong to callers. Failures
// never escape Execute as errors; they are normalized into the Result so the
// execution layer can map them onto terminal states.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// Target identifies a device endpoint and its shell credentials.
// Exactly one of Password/PrivateKey is expected; when both are set the
// private key wins (the caller owns credential hygiene, not the transport).
type Target struct {
	Host       string
	Port       int
	User       string
	Password   string
	PrivateKey string // PEM-encoded
}

// Result captures everything a remote command produced.
type Result struct {
	Stdout     string
	Stderr     string
	ExitStatus int
	DurationMs int64
	Success    bool // exit status was exactly zero
}

// Runner is the consumer-side interface for command execution.
type Runner interface {
	Execute(ctx context.Context, target Target, command string, timeout time.Duration) *Result
}

// Probe runs the short liveness command against a target and reports whether
// the device answered, with the observed round trip in milliseconds.
func Probe(ctx context.Context, r Runner, target Target, command string, timeout time.Duration) (bool, int64) {
	result := r.Execute(ctx, target, command, timeout)
	return result.Success, result.DurationMs
}

// Compile-time interface guard.
var _ Runner = (*SSHRunner)(nil)

// SSHRunner runs commands over SSH using password or private-key auth.
type SSHRunner struct {
	logger *zap.Logger

	// dial establishes the TCP connection. Defaults to a net.Dialer;
	// overridden in tests.
	dial func(ctx context.Context, network, addr string, timeout time.Duration) (net.Conn, error)
}

// NewSSHRunner creates an SSH-backed command runner.
func NewSSHRunner(logger *zap.Logger) *SSHRunner {
	return &SSHRunner{
		logger: logger,
		dial: func(ctx context.Context, network, addr string, timeout time.Duration) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, network, addr)
		},
	}
}

// Execute runs command on target and returns the normalized result.
// Connection failures, authentication failures, and timeouts all return a
// Result with Success=false, empty Stdout, and the failure text in Stderr;
// the elapsed duration is measured up to the failure point. The timeout is a
// hard ceiling covering dial, handshake, and command execution.
func (r *SSHRunner) Execute(ctx context.Context, target Target, command string, timeout time.Duration) *Result {
	start := time.Now()
	fail := func(msg string) *Result {
		return &Result{
			Stderr:     msg,
			ExitStatus: 1,
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	auth, err := authMethods(target)
	if err != nil {
		return fail(err.Error())
	}

	cfg := &ssh.ClientConfig{
		User: target.User,
		Auth: auth,
		// Devices live on a controlled internal network with no reachable
		// host-key infrastructure; identity verification is an accepted
		// trust boundary here, not an oversight.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // G106
		Timeout:         timeout,
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	port := target.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(target.Host, strconv.Itoa(port))

	conn, err := r.dial(ctx, "tcp", addr, timeout)
	if err != nil {
		return fail(fmt.Sprintf("connect %s: %v", addr, err))
	}

	// The handshake has no context plumbing, so bound it with a connection
	// deadline; a server that accepts TCP but never speaks SSH must not hang
	// Execute past its budget. Cleared once the handshake completes.
	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fail(fmt.Sprintf("set deadline %s: %v", addr, err))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return fail(fmt.Sprintf("ssh handshake %s: %v", addr, err))
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return fail(fmt.Sprintf("clear deadline %s: %v", addr, err))
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	// The SSH protocol has no per-command deadline; closing the client is
	// what forces Run to return when the context expires.
	watchdog := make(chan struct{})
	defer close(watchdog)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-watchdog:
		}
	}()

	session, err := client.NewSession()
	if err != nil {
		return fail(fmt.Sprintf("ssh session %s: %v", addr, err))
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	exitStatus := 0
	if err := session.Run(command); err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			// Command ran, just exited non-zero.
			exitStatus = exitErr.ExitStatus()
		} else if ctx.Err() != nil {
			return fail("command timed out")
		} else {
			return fail(fmt.Sprintf("run command: %v", err))
		}
	}

	elapsed := time.Since(start)
	r.logger.Debug("remote command finished",
		zap.String("addr", addr),
		zap.Int("exit_status", exitStatus),
		zap.Duration("elapsed", elapsed),
	)

	return &Result{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitStatus: exitStatus,
		DurationMs: elapsed.Milliseconds(),
		Success:    exitStatus == 0,
	}
}

// authMethods selects the SSH auth method for a target.
func authMethods(target Target) ([]ssh.AuthMethod, error) {
	if target.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(target.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(target.Password)}, nil
}
