package results

import (
	"context"

	"github.com/drfirst/go-iis/internal/domain/immunization"
	"github.com/drfirst/go-iis/internal/infrastructure/sftp"
)

// SFTPDialer connects to partners with their stored credentials
type SFTPDialer struct {
	dialer *sftp.Dialer
}

// NewSFTPDialer wraps an SFTP dialer
func NewSFTPDialer(d *sftp.Dialer) *SFTPDialer {
	return &SFTPDialer{dialer: d}
}

// Dial opens a session to the partner's remote host
func (s *SFTPDialer) Dial(ctx context.Context, p *immunization.Partner) (Session, error) {
	session, err := s.dialer.Dial(ctx, sftp.Credentials{
		Host:     p.RemoteHost,
		User:     p.Login,
		Password: p.Password,
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}
