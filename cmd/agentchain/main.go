// Command agentchain is the CLI for one agent's source chain: key
// management, chain bootstrap, commits, links, tombstones, walks, and
// deterministic block bundles. Every command works against a local store;
// the mutation and query commands can also target a running agentchaind
// via --remote.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/animanga/agentchain/chainrpc"
	"github.com/animanga/agentchain/keys"
	"github.com/animanga/agentchain/linkgraph"
	"github.com/animanga/agentchain/provenance"
	"github.com/animanga/agentchain/sourcechain"
	"github.com/animanga/agentchain/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "init":
		return cmdInit(args[1:], out, errOut)
	case "commit":
		return cmdCommit(args[1:], out, errOut)
	case "link":
		return cmdLink(args[1:], out, errOut)
	case "links":
		return cmdLinks(args[1:], out, errOut)
	case "remove-entry":
		return cmdRemoveEntry(args[1:], out, errOut)
	case "walk":
		return cmdWalk(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "provenances":
		return cmdProvenances(args[1:], out, errOut)
	case "export":
		return cmdExport(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "agentchain: source chain CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  agentchain key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  agentchain key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  agentchain key list")
	fmt.Fprintln(w, "  agentchain key export --name <name> [--role <role>]")
	fmt.Fprintln(w, "  agentchain init <signer> [--store-dir <dir>]")
	fmt.Fprintln(w, "  agentchain commit <signer> --type <t> (--content <text> | --file <path>) [--remote <addr>]")
	fmt.Fprintln(w, "  agentchain link add <signer> --base <CID> --target <CID> [--tag <t>] [--remote <addr>]")
	fmt.Fprintln(w, "  agentchain link remove <signer> --header <CID> [--remote <addr>]")
	fmt.Fprintln(w, "  agentchain remove-entry <signer> --ref <CID> [--remote <addr>]")
	fmt.Fprintln(w, "  agentchain links --base <CID> [--tag <t>] [--remote <addr>]")
	fmt.Fprintln(w, "  agentchain walk [--limit <n>] [--remote <addr>]")
	fmt.Fprintln(w, "  agentchain verify [--remote <addr>]")
	fmt.Fprintln(w, "  agentchain provenances --header <CID> [--remote <addr>]")
	fmt.Fprintln(w, "  agentchain export --out <bundle.tar> [--store-dir <dir>]")
	fmt.Fprintln(w, "  agentchain import --in <bundle.tar> [--store-dir <dir>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - <signer> is --seed-hex <64hex>, --signer <name> [--signer-role <role>], or --key-file <path>")
	fmt.Fprintln(w, "  - keys are stored under ~/.agentchain/keys/<name> (0600 seed files)")
	fmt.Fprintln(w, "  - the chain store defaults to ~/.agentchain/store")
	fmt.Fprintln(w, "  - with --remote, the daemon's key signs and local signer flags are ignored")
	fmt.Fprintln(w, "  - every mutation prints the new header hash on stdout")
}

// signerFlags are the shared local-signer selection flags.
type signerFlags struct {
	seedHex    string
	signerName string
	signerRole string
	keyFile    string
}

func (sf *signerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&sf.seedHex, "seed-hex", "", "ed25519 seed as 64 hex chars")
	fs.StringVar(&sf.signerName, "signer", "", "Use a stored key by name (from 'agentchain key init')")
	fs.StringVar(&sf.signerRole, "signer-role", "", "When using --signer, use a derived role key")
	fs.StringVar(&sf.keyFile, "key-file", "", "Path to a seed file created by 'agentchain key init/derive'")
}

func (sf *signerFlags) load(errOut io.Writer) (*keys.Ed25519Signer, bool) {
	if sf.seedHex == "" && sf.signerName == "" && sf.keyFile == "" {
		fmt.Fprintln(errOut, "missing signer: use --seed-hex, --signer, or --key-file")
		return nil, false
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return nil, false
	}
	seed, err := ks.LoadSeed(sf.seedHex, sf.signerName, sf.signerRole, sf.keyFile)
	if err != nil {
		fmt.Fprintf(errOut, "invalid signer: %v\n", err)
		return nil, false
	}
	signer, err := keys.NewEd25519Signer(seed)
	if err != nil {
		fmt.Fprintf(errOut, "invalid signer: %v\n", err)
		return nil, false
	}
	return signer, true
}

func defaultStoreDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".agentchain", "store"), nil
}

func openStore(dir string, errOut io.Writer) (*localfs.Store, bool) {
	if dir == "" {
		var err error
		dir, err = defaultStoreDir()
		if err != nil {
			fmt.Fprintf(errOut, "home dir: %v\n", err)
			return nil, false
		}
	}
	store, err := localfs.Open(dir)
	if err != nil {
		fmt.Fprintf(errOut, "open store %s: %v\n", dir, err)
		return nil, false
	}
	return store, true
}

// localEngine wires a pipeline and link engine over the local store.
func localEngine(store *localfs.Store, signer *keys.Ed25519Signer, errOut io.Writer) (*sourcechain.Pipeline, *linkgraph.Engine, bool) {
	c, err := sourcechain.New(signer.AgentKey(), store, store)
	if err != nil {
		fmt.Fprintf(errOut, "source chain: %v\n", err)
		return nil, nil, false
	}
	p, err := sourcechain.NewPipeline(c, signer, sourcechain.Config{Ledger: provenance.NewLedger()})
	if err != nil {
		fmt.Fprintf(errOut, "pipeline: %v\n", err)
		return nil, nil, false
	}
	return p, linkgraph.New(p), true
}

func dialRemote(addr string, errOut io.Writer) (*chainrpc.Client, bool) {
	client, err := chainrpc.Dial(addr, chainrpc.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		fmt.Fprintf(errOut, "dial %s: %v\n", addr, err)
		return nil, false
	}
	client.Timeout = 10 * time.Second
	return client, true
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "agentchain key: minimal local key management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  agentchain key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  agentchain key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  agentchain key list")
	fmt.Fprintln(w, "  agentchain key export --name <name> [--role <role>]")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var seedHex string
	var force bool

	fs.StringVar(&name, "name", "", "Key name (directory under ~/.agentchain/keys)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible demos)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}

	var seed []byte
	if seedHex != "" {
		var derr error
		seed, derr = keys.ParseSeedHex(seedHex)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", derr)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	agentKey, rootPath, err := ks.InitializeRootKey(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", agentKey)
	fmt.Fprintf(out, "Stored at: %s\n", rootPath)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var from string
	var role string
	var force bool

	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. committer, witness)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(errOut, "missing --role")
		return 2
	}
	if err := keys.CheckKeyName(from); err != nil {
		fmt.Fprintf(errOut, "invalid --from: %v\n", err)
		return 2
	}
	if err := keys.CheckRole(role); err != nil {
		fmt.Fprintf(errOut, "invalid --role: %v\n", err)
		return 2
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	agentKey, rolePath, err := ks.DeriveKeyFromRole(from, role, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created role key: %s\n", agentKey)
	fmt.Fprintf(out, "Stored at: %s\n", rolePath)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	entries, err := ks.ListKeys()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Identifier)
		for _, r := range e.Permissions {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var role string

	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&role, "role", "", "Optional role (if set, exports derived role key)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	if role != "" {
		if err := keys.CheckRole(role); err != nil {
			fmt.Fprintf(errOut, "invalid --role: %v\n", err)
			return 2
		}
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	agentKey, err := ks.ExportKey(name, role)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, agentKey)
	return 0
}
