package objectprovider

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type sftpPublisher struct {
	input *SFTPPublisherInput
}

type SFTPPublisherInput struct {
	Addr      string // host:port
	User      string
	Auths     []ssh.AuthMethod
	RemoteDir string
	// Known hosts file used to verify the server. Host keys are not checked when empty.
	KnownHostsPath string
}

func NewSFTPPublisher(input *SFTPPublisherInput) Publisher {
	return &sftpPublisher{input: input}
}

// KeyAuth loads an unencrypted private key file for SSH public key authentication.
func KeyAuth(keyPath string) (ssh.AuthMethod, error) {
	buf, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(buf)
	if err != nil {
		return nil, fmt.Errorf("parsing ssh key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

func (t *sftpPublisher) Describe() string {
	return fmt.Sprintf("sftp://%s@%s%s", t.input.User, t.input.Addr, t.input.RemoteDir)
}

func (t *sftpPublisher) SetUp(ctx context.Context) error {
	return nil
}

func (t *sftpPublisher) client(ctx context.Context) (*ssh.Client, error) {
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if t.input.KnownHostsPath != "" {
		cb, err := knownhosts.New(t.input.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		slog.Warn("not verifying SFTP host key", slog.String("addr", t.input.Addr))
	}

	cfg := &ssh.ClientConfig{
		User:            t.input.User,
		Auth:            t.input.Auths,
		HostKeyCallback: hostKeyCallback,
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.input.Addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, t.input.Addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func (t *sftpPublisher) Publish(ctx context.Context, localPath, runID string) (string, error) {
	client, err := t.client(ctx)
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", t.input.Addr, err)
	}
	defer client.Close()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return "", fmt.Errorf("starting sftp session: %w", err)
	}
	defer sc.Close()

	remotePath, err := copyArchive(sc, localPath, t.input.RemoteDir, runID)
	if err != nil {
		return "", err
	}
	location := fmt.Sprintf("sftp://%s%s", t.input.Addr, remotePath)
	slog.Info("done uploading", slog.String("location", location))
	return location, nil
}

func copyArchive(sc *sftp.Client, localPath, remoteDir, runID string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}
	defer src.Close()

	remotePath := path.Join(remoteDir, runID, filepath.Base(localPath))
	if err := sc.MkdirAll(path.Dir(remotePath)); err != nil {
		return "", fmt.Errorf("creating %s: %w", path.Dir(remotePath), err)
	}
	dst, err := sc.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", remotePath, err)
	}
	defer dst.Close()

	if _, err := dst.ReadFrom(src); err != nil {
		return "", fmt.Errorf("uploading %s: %w", remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("uploading %s: %w", remotePath, err)
	}
	return remotePath, nil
}
