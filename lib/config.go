package lib

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/TecharoHQ/botcha/data"
	"github.com/TecharoHQ/botcha/lib/config"
)

// LoadConfigOrDefault loads fname, or the embedded default configuration when
// fname is empty.
func LoadConfigOrDefault(fname string) (*config.Config, error) {
	var fin io.Reader

	if fname != "" {
		f, err := os.Open(fname)
		if err != nil {
			return nil, fmt.Errorf("can't open config file %s: %w", fname, err)
		}

		defer func(f io.Closer) {
			if err := f.Close(); err != nil {
				slog.Error("failed to close config file", "file", fname, "err", err)
			}
		}(f)

		fin = f
	} else {
		fname = "(data)/botcha.yaml"
		fin = bytes.NewReader(data.DefaultConfig)
	}

	return config.Load(fin, fname)
}
