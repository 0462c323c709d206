package data

import (
	_ "embed"
)

// DefaultConfig is the configuration used when no -config-fname is given.
//
//go:embed botcha.yaml
var DefaultConfig []byte
