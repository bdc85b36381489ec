package filer

import (
	"context"
	"fmt"
	"net"
	"path"
	"strings"
	"time"

	"github.com/hirochachacha/go-smb2"

	"otportal/models"
)

// SMBDialer dials real SMB shares via go-smb2.
type SMBDialer struct {
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

func NewSMBDialer(dialTimeout, opTimeout time.Duration) *SMBDialer {
	return &SMBDialer{DialTimeout: dialTimeout, OpTimeout: opTimeout}
}

func (d *SMBDialer) Dial(ctx context.Context, cfg *models.SMBConfiguration, password string) (Conn, error) {
	port := cfg.Port
	if port == 0 {
		port = 445
	}
	addr := net.JoinHostPort(cfg.Hostname, fmt.Sprintf("%d", port))

	dialer := net.Dialer{Timeout: d.DialTimeout}
	tcp, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	smbDialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     cfg.Username,
			Password: password,
			Domain:   cfg.Domain,
		},
	}
	session, err := smbDialer.DialContext(ctx, tcp)
	if err != nil {
		tcp.Close()
		return nil, err
	}

	share, err := session.Mount(cfg.Share)
	if err != nil {
		session.Logoff()
		tcp.Close()
		return nil, err
	}

	return &smbConn{tcp: tcp, session: session, share: share}, nil
}

type smbConn struct {
	tcp     net.Conn
	session *smb2.Session
	share   *smb2.Share
}

func (c *smbConn) MkdirAll(dir string) error {
	return c.share.MkdirAll(toSMBPath(dir), 0o755)
}

func (c *smbConn) Put(p string, data []byte) error {
	return c.share.WriteFile(toSMBPath(p), data, 0o644)
}

func (c *smbConn) Delete(p string) error {
	return c.share.Remove(toSMBPath(p))
}

func (c *smbConn) Close() error {
	err := c.share.Umount()
	if lerr := c.session.Logoff(); err == nil {
		err = lerr
	}
	if cerr := c.tcp.Close(); err == nil {
		err = cerr
	}
	return err
}

// toSMBPath converts slash paths to the backslash form the share expects.
func toSMBPath(p string) string {
	return strings.ReplaceAll(path.Clean(p), "/", `\`)
}
