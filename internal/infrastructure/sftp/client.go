// Package sftp downloads result files from procedure providers over SFTP.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultPort = "22"

// ErrLogin is returned when the server rejects the partner credentials
var ErrLogin = errors.New("sftp login failed")

// Config holds dial settings shared by all partners
type Config struct {
	// KnownHosts is an OpenSSH known_hosts file. Empty disables host key checks.
	KnownHosts string
	Timeout    time.Duration
}

// Credentials identify one partner account
type Credentials struct {
	Host     string
	User     string
	Password string
}

// Dialer opens SFTP sessions
type Dialer struct {
	cfg     Config
	hostKey ssh.HostKeyCallback
	logger  *zap.Logger
}

// NewDialer creates a dialer, loading known hosts when configured
func NewDialer(cfg Config, logger *zap.Logger) (*Dialer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	d := &Dialer{cfg: cfg, logger: logger}
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts %s: %w", cfg.KnownHosts, err)
		}
		d.hostKey = cb
	} else {
		logger.Warn("sftp host key verification disabled, set if.sftp.known_hosts")
		d.hostKey = ssh.InsecureIgnoreHostKey()
	}
	return d, nil
}

// Session is an open SFTP connection to one partner
type Session struct {
	ssh    *ssh.Client
	client *sftp.Client
	host   string
	logger *zap.Logger
}

// Dial connects and logs in with password authentication
func (d *Dialer) Dial(ctx context.Context, creds Credentials) (*Session, error) {
	addr := creds.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultPort)
	}

	dialer := net.Dialer{Timeout: d.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            creds.User,
		Auth:            []ssh.AuthMethod{ssh.Password(creds.Password)},
		HostKeyCallback: d.hostKey,
		Timeout:         d.cfg.Timeout,
	})
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%s as %s: %w", addr, creds.User, ErrLogin)
		}
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("sftp subsystem %s: %w", addr, err)
	}

	d.logger.Debug("sftp session opened", zap.String("host", addr), zap.String("user", creds.User))
	return &Session{ssh: sshClient, client: client, host: addr, logger: d.logger}, nil
}

// List returns the regular file names in dir, skipping dot files. An empty dir means the login directory.
func (s *Session) List(dir string) ([]string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "."
	}
	entries, err := s.client.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s on %s: %w", dir, s.host, err)
	}

	var names []string
	for _, fi := range entries {
		if strings.HasPrefix(fi.Name(), ".") || fi.IsDir() {
			continue
		}
		names = append(names, fi.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Fetch downloads dir/name to localPath
func (s *Session) Fetch(dir, name, localPath string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "."
	}
	remote := path.Join(dir, name)

	src, err := s.client.Open(remote)
	if err != nil {
		return fmt.Errorf("open %s: %w", remote, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("download %s: %w", remote, err)
	}
	return dst.Close()
}

// Close ends the session
func (s *Session) Close() error {
	return errors.Join(s.client.Close(), s.ssh.Close())
}
