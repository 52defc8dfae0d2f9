// Package artifact writes run backups and reports. Artifacts are written once
// and never read back by the tool.
package artifact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Sink drivers.
const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

// Sink stores a named blob and returns where it landed.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// BackupName names the pre-run snapshot for mode.
func BackupName(mode string, t time.Time) string {
	return fmt.Sprintf("references.backup.%s.%d.json", mode, t.UnixMilli())
}

// ReportName names the run report for mode.
func ReportName(mode string, t time.Time) string {
	return fmt.Sprintf("%s-report-%d.json", mode, t.UnixMilli())
}

// Options selects and configures a sink.
type Options struct {
	Driver string
	Dir    string
	S3     S3Config
}

// Open creates the sink named by opts.Driver. Empty selects local.
func Open(ctx context.Context, opts Options) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverLocal:
		if opts.Dir == "" {
			return nil, eris.New("artifact: local sink requires a dir")
		}
		return NewLocal(opts.Dir), nil
	case DriverS3:
		return NewS3(ctx, opts.S3)
	}
	return nil, eris.Errorf("artifact: unknown driver %q", opts.Driver)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return eris.Errorf("artifact: invalid name %q", name)
	}
	return nil
}
