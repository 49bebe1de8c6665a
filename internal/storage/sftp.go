package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPConfig describes the remote host behind the public file server.
type SFTPConfig struct {
	Host      string
	Port      int
	User      string
	Pass      string
	RemoteDir string
	// HostKey is the server key in authorized_keys format. When empty,
	// InsecureIgnoreHostKey must be set explicitly.
	HostKey               string
	InsecureIgnoreHostKey bool
	// BaseURL is the public address of RemoteDir.
	BaseURL string
}

// SFTP uploads objects to a directory published by a web server.
// Each Put opens and closes its own connection.
type SFTP struct {
	cfg    SFTPConfig
	sshCfg *ssh.ClientConfig
}

var _ ObjectStore = (*SFTP)(nil)

// NewSFTP validates cfg and prepares the SSH client configuration.
func NewSFTP(cfg SFTPConfig) (*SFTP, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" {
		return nil, fmt.Errorf("sftp: host, user and password are required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("sftp: public base URL is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = "/"
	}

	var cb ssh.HostKeyCallback
	switch {
	case cfg.HostKey != "":
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(cfg.HostKey))
		if err != nil {
			return nil, fmt.Errorf("sftp: parse host key: %w", err)
		}
		cb = ssh.FixedHostKey(key)
	case cfg.InsecureIgnoreHostKey:
		cb = ssh.InsecureIgnoreHostKey()
	default:
		return nil, fmt.Errorf("sftp: host key is required unless host key checking is disabled")
	}

	return &SFTP{
		cfg: cfg,
		sshCfg: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.Password(cfg.Pass)},
			HostKeyCallback: cb,
			Timeout:         20 * time.Second,
		},
	}, nil
}

func (s *SFTP) dial(ctx context.Context) (*ssh.Client, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	d := net.Dialer{Timeout: s.sshCfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sftp: dial error: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, s.sshCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sftp: handshake: %w", err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func (s *SFTP) Put(ctx context.Context, name string, data []byte, _ string) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	sshClient, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer sshClient.Close()

	cli, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("sftp: new client: %w", err)
	}
	defer cli.Close()

	if err := cli.MkdirAll(s.cfg.RemoteDir); err != nil {
		return fmt.Errorf("sftp: mkdir %s: %w", s.cfg.RemoteDir, err)
	}

	remotePath := path.Join(s.cfg.RemoteDir, name)
	dst, err := cli.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp: create remote file: %w", err)
	}
	if _, err := io.Copy(dst, bytes.NewReader(data)); err != nil {
		dst.Close()
		return fmt.Errorf("sftp: upload copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("sftp: close remote file: %w", err)
	}
	return nil
}

func (s *SFTP) PublicURL(name string) string {
	return publicURL(s.cfg.BaseURL, name)
}
