package memstore

import (
	"flag"

	"github.com/animanga/agentchain/storage"
	"github.com/animanga/agentchain/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:          "mem",
		Description:   "In-memory CAS (non-durable; for tests and demos)",
		Usage:         casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {},
		Open: func() (storage.CAS, func() error, error) {
			return New(), nil, nil
		},
		OpenWith: func(cfg map[string]string) (storage.CAS, func() error, error) {
			return New(), nil, nil
		},
	})
}
