package ipfs

import (
	"flag"
	"os"

	"github.com/animanga/agentchain/storage"
	"github.com/animanga/agentchain/storage/casregistry"
)

var (
	flagIPFSBin  string
	flagIPFSPath string
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo IPFS repo (via the ipfs CLI)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagIPFSBin, "ipfs-bin", "", "ipfs binary path (for --backend=ipfs; default: ipfs on PATH)")
			fs.StringVar(&flagIPFSPath, "ipfs-path", "", "IPFS repo path (for --backend=ipfs; default: ambient IPFS_PATH)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return open(flagIPFSBin, flagIPFSPath)
		},
		OpenWith: func(cfg map[string]string) (storage.CAS, func() error, error) {
			return open(cfg["ipfs-bin"], cfg["ipfs-path"])
		},
	})
}

func open(bin, repoPath string) (storage.CAS, func() error, error) {
	opts := Options{Bin: bin}
	if repoPath != "" {
		opts.Env = append(os.Environ(), "IPFS_PATH="+repoPath)
	}
	return New(opts), nil, nil
}
