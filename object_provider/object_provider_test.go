package objectprovider

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "bench/run-1/benchmark_results.zip", ObjectKey("bench", "run-1", "benchmark_results.zip"))
	assert.Equal(t, "bench/run-1/a.zip", ObjectKey("/bench/", "run-1", "a.zip"))
	assert.Equal(t, "run-1/a.zip", ObjectKey("", "run-1", "a.zip"))
}

func TestDescribe(t *testing.T) {
	s3p := NewS3Publisher(&S3PublisherInput{AwsConfig: aws.Config{Region: "us-west-2"}, Bucket: "b", Prefix: "p"})
	assert.Equal(t, "s3://b/p", s3p.Describe())

	sp := NewSFTPPublisher(&SFTPPublisherInput{Addr: "host:22", User: "bench", RemoteDir: "/data"})
	assert.Equal(t, "sftp://bench@host:22/data", sp.Describe())
	assert.NoError(t, sp.SetUp(context.Background()))
}

type pipeConn struct {
	io.Reader
	io.WriteCloser
}

func inMemorySFTP(t *testing.T) *sftp.Client {
	t.Helper()
	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()

	server := sftp.NewRequestServer(pipeConn{clientToServerR, serverToClientW}, sftp.InMemHandler())
	go server.Serve()

	client, err := sftp.NewClientPipe(serverToClientR, clientToServerW)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client
}

func TestCopyArchive(t *testing.T) {
	sc := inMemorySFTP(t)
	local := filepath.Join(t.TempDir(), "genaiperf_results.zip")
	content := []byte("PK\x03\x04 not really a zip")
	require.NoError(t, os.WriteFile(local, content, 0o644))

	remote, err := copyArchive(sc, local, "/uploads", "run-42")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/run-42/genaiperf_results.zip", remote)

	f, err := sc.Open(remote)
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestCopyArchiveMissingLocal(t *testing.T) {
	sc := inMemorySFTP(t)
	_, err := copyArchive(sc, filepath.Join(t.TempDir(), "missing.zip"), "/uploads", "r")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestKeyAuthErrors(t *testing.T) {
	_, err := KeyAuth(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "id_bad")
	require.NoError(t, os.WriteFile(bad, []byte("not a key"), 0o600))
	_, err = KeyAuth(bad)
	assert.Error(t, err)
}
