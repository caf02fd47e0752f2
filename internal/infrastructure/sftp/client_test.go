package sftp

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type testServer struct {
	addr    string
	hostKey ssh.PublicKey
}

func startServer(t *testing.T) testServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "lab" && string(pass) == "secret" {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(nc, cfg)
		}
	}()
	return testServer{addr: ln.Addr().String(), hostKey: signer.PublicKey()}
}

func serveConn(nc net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		nc.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for nch := range chans {
		if nch.ChannelType() != "session" {
			nch.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, requests, err := nch.Accept()
		if err != nil {
			continue
		}
		go func(in <-chan *ssh.Request) {
			for req := range in {
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				req.Reply(ok, nil)
			}
		}(requests)

		srv, err := sftp.NewServer(ch)
		if err != nil {
			ch.Close()
			continue
		}
		go func() {
			srv.Serve()
			srv.Close()
		}()
	}
}

func seedOutbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.hl7"), []byte("MSH|b\r"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hl7"), []byte("MSH|a\r"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lock"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o755))
	return dir
}

func TestListAndFetch(t *testing.T) {
	srv := startServer(t)
	outbox := seedOutbox(t)

	d, err := NewDialer(Config{Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)

	s, err := d.Dial(context.Background(), Credentials{Host: srv.addr, User: "lab", Password: "secret"})
	require.NoError(t, err)
	defer s.Close()

	names, err := s.List(outbox)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.hl7", "b.hl7"}, names)

	local := filepath.Join(t.TempDir(), "20250304150607.3.1234567890.a.hl7")
	require.NoError(t, s.Fetch(outbox, "a.hl7", local))

	got, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "MSH|a\r", string(got))
}

func TestDialRejectsBadPassword(t *testing.T) {
	srv := startServer(t)

	d, err := NewDialer(Config{Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)

	_, err = d.Dial(context.Background(), Credentials{Host: srv.addr, User: "lab", Password: "wrong"})
	assert.ErrorIs(t, err, ErrLogin)
}

func TestKnownHosts(t *testing.T) {
	srv := startServer(t)
	outbox := seedOutbox(t)

	file := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(file, []byte(knownhosts.Line([]string{srv.addr}, srv.hostKey)+"\n"), 0o600))

	d, err := NewDialer(Config{KnownHosts: file, Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)

	s, err := d.Dial(context.Background(), Credentials{Host: srv.addr, User: "lab", Password: "secret"})
	require.NoError(t, err)
	defer s.Close()

	names, err := s.List(outbox)
	require.NoError(t, err)
	assert.Len(t, names, 2)

	other := startServer(t)
	_, err = d.Dial(context.Background(), Credentials{Host: other.addr, User: "lab", Password: "secret"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLogin)
}

func TestNewDialerMissingKnownHosts(t *testing.T) {
	_, err := NewDialer(Config{KnownHosts: filepath.Join(t.TempDir(), "absent")}, nil)
	assert.Error(t, err)
}
