package objectprovider

import (
	"context"
	"path"
	"strings"
)

// A Publisher copies a finished results archive off the benchmark machine.
type Publisher interface {
	// Create any resources needed before Publish can be called.
	SetUp(ctx context.Context) error

	// Upload the archive at localPath under a location unique to runID. Returns where it was stored.
	Publish(ctx context.Context, localPath, runID string) (string, error)

	// Human-friendly description of the destination. Only used for logging.
	Describe() string
}

// ObjectKey is the remote name of an archive: <prefix>/<runID>/<name>.
func ObjectKey(prefix, runID, name string) string {
	return strings.TrimPrefix(path.Join(prefix, runID, name), "/")
}
