package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/chain"
	"github.com/animanga/agentchain/sourcechain"
	"github.com/animanga/agentchain/storage/bundle"
)

func cmdInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf signerFlags
	sf.register(fs)
	storeDir := fs.String("store-dir", "", "Chain store directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	signer, ok := sf.load(errOut)
	if !ok {
		return 2
	}
	store, ok := openStore(*storeDir, errOut)
	if !ok {
		return 1
	}
	pipeline, _, ok := localEngine(store, signer, errOut)
	if !ok {
		return 1
	}
	genesis, err := pipeline.Bootstrap(context.Background())
	if err != nil {
		fmt.Fprintf(errOut, "bootstrap: %v\n", err)
		return 1
	}
	fmt.Fprintf(errOut, "Agent: %s\n", signer.AgentKey())
	_, _ = fmt.Fprintln(out, genesis)
	return 0
}

func cmdCommit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf signerFlags
	sf.register(fs)
	storeDir := fs.String("store-dir", "", "Chain store directory")
	remote := fs.String("remote", "", "agentchaind address; the daemon's key signs")
	entryType := fs.String("type", "", "Entry type (application types must not start with '%')")
	content := fs.String("content", "", "Entry content as text")
	file := fs.String("file", "", "Read entry content from a file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *entryType == "" {
		fmt.Fprintln(errOut, "missing --type")
		return 2
	}
	if *content != "" && *file != "" {
		fmt.Fprintln(errOut, "conflicting flags: --content and --file")
		return 2
	}
	payload := []byte(*content)
	if *file != "" {
		b, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(errOut, "read %s: %v\n", *file, err)
			return 1
		}
		payload = b
	}

	if *remote != "" {
		client, ok := dialRemote(*remote, errOut)
		if !ok {
			return 1
		}
		defer client.Close()
		id, err := client.Commit(context.Background(), *entryType, payload, nil)
		if err != nil {
			fmt.Fprintf(errOut, "commit: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(out, id)
		return 0
	}

	signer, ok := sf.load(errOut)
	if !ok {
		return 2
	}
	store, ok := openStore(*storeDir, errOut)
	if !ok {
		return 1
	}
	pipeline, _, ok := localEngine(store, signer, errOut)
	if !ok {
		return 1
	}
	id, err := pipeline.Commit(context.Background(), chain.Entry{Type: *entryType, Content: payload}, sourcechain.CommitOptions{})
	if err != nil {
		fmt.Fprintf(errOut, "commit: %v\n", err)
		if chain.IsRetryable(err) {
			fmt.Fprintln(errOut, "the chain tip moved; retry the commit")
		}
		return 1
	}
	_, _ = fmt.Fprintln(out, id)
	return 0
}

func cmdLink(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: agentchain link <add|remove> ...")
		return 2
	}
	switch args[0] {
	case "add":
		return cmdLinkAdd(args[1:], out, errOut)
	case "remove":
		return cmdLinkRemove(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown link subcommand: %s\n", args[0])
		return 2
	}
}

func cmdLinkAdd(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("link add", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf signerFlags
	sf.register(fs)
	storeDir := fs.String("store-dir", "", "Chain store directory")
	remote := fs.String("remote", "", "agentchaind address; the daemon's key signs")
	baseStr := fs.String("base", "", "Base entry CID")
	targetStr := fs.String("target", "", "Target entry CID")
	tag := fs.String("tag", "", "Link tag")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	base, ok := parseCID(*baseStr, "--base", errOut)
	if !ok {
		return 2
	}
	target, ok := parseCID(*targetStr, "--target", errOut)
	if !ok {
		return 2
	}

	if *remote != "" {
		client, ok := dialRemote(*remote, errOut)
		if !ok {
			return 1
		}
		defer client.Close()
		id, err := client.AddLink(context.Background(), base, target, *tag)
		if err != nil {
			fmt.Fprintf(errOut, "link add: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(out, id)
		return 0
	}

	signer, ok := sf.load(errOut)
	if !ok {
		return 2
	}
	store, ok := openStore(*storeDir, errOut)
	if !ok {
		return 1
	}
	_, links, ok := localEngine(store, signer, errOut)
	if !ok {
		return 1
	}
	id, err := links.AddLink(context.Background(), base, target, *tag, sourcechain.CommitOptions{})
	if err != nil {
		fmt.Fprintf(errOut, "link add: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id)
	return 0
}

func cmdLinkRemove(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("link remove", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf signerFlags
	sf.register(fs)
	storeDir := fs.String("store-dir", "", "Chain store directory")
	remote := fs.String("remote", "", "agentchaind address; the daemon's key signs")
	headerStr := fs.String("header", "", "LinkAdd header CID to tombstone")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	header, ok := parseCID(*headerStr, "--header", errOut)
	if !ok {
		return 2
	}

	if *remote != "" {
		client, ok := dialRemote(*remote, errOut)
		if !ok {
			return 1
		}
		defer client.Close()
		id, err := client.RemoveLink(context.Background(), header)
		if err != nil {
			fmt.Fprintf(errOut, "link remove: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(out, id)
		return 0
	}

	signer, ok := sf.load(errOut)
	if !ok {
		return 2
	}
	store, ok := openStore(*storeDir, errOut)
	if !ok {
		return 1
	}
	_, links, ok := localEngine(store, signer, errOut)
	if !ok {
		return 1
	}
	id, err := links.RemoveLink(context.Background(), header, sourcechain.CommitOptions{})
	if err != nil {
		fmt.Fprintf(errOut, "link remove: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id)
	return 0
}

func cmdRemoveEntry(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("remove-entry", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf signerFlags
	sf.register(fs)
	storeDir := fs.String("store-dir", "", "Chain store directory")
	remote := fs.String("remote", "", "agentchaind address; the daemon's key signs")
	refStr := fs.String("ref", "", "Entry CID or committing header CID")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ref, ok := parseCID(*refStr, "--ref", errOut)
	if !ok {
		return 2
	}

	if *remote != "" {
		client, ok := dialRemote(*remote, errOut)
		if !ok {
			return 1
		}
		defer client.Close()
		id, err := client.RemoveEntry(context.Background(), ref)
		if err != nil {
			fmt.Fprintf(errOut, "remove-entry: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(out, id)
		return 0
	}

	signer, ok := sf.load(errOut)
	if !ok {
		return 2
	}
	store, ok := openStore(*storeDir, errOut)
	if !ok {
		return 1
	}
	_, links, ok := localEngine(store, signer, errOut)
	if !ok {
		return 1
	}
	id, err := links.RemoveEntry(context.Background(), ref, sourcechain.CommitOptions{})
	if err != nil {
		fmt.Fprintf(errOut, "remove-entry: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id)
	return 0
}

func cmdLinks(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("links", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf signerFlags
	sf.register(fs)
	storeDir := fs.String("store-dir", "", "Chain store directory")
	remote := fs.String("remote", "", "agentchaind address")
	baseStr := fs.String("base", "", "Base entry CID")
	tag := fs.String("tag", "", "Tag filter (empty matches all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	base, ok := parseCID(*baseStr, "--base", errOut)
	if !ok {
		return 2
	}

	if *remote != "" {
		client, ok := dialRemote(*remote, errOut)
		if !ok {
			return 1
		}
		defer client.Close()
		records, err := client.GetLinks(context.Background(), base, *tag)
		if err != nil {
			fmt.Fprintf(errOut, "links: %v\n", err)
			return 1
		}
		for _, l := range records {
			fmt.Fprintf(out, "%s\t%s\t%s\n", l.Target, l.Tag, l.Header)
		}
		return 0
	}

	signer, ok := sf.load(errOut)
	if !ok {
		return 2
	}
	store, ok := openStore(*storeDir, errOut)
	if !ok {
		return 1
	}
	_, links, ok := localEngine(store, signer, errOut)
	if !ok {
		return 1
	}
	live, err := links.LiveLinks(base, *tag)
	if err != nil {
		fmt.Fprintf(errOut, "links: %v\n", err)
		return 1
	}
	for _, l := range live {
		fmt.Fprintf(out, "%s\t%s\t%s\n", l.Target, l.Tag, l.Header)
	}
	return 0
}

func cmdWalk(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("walk", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf signerFlags
	sf.register(fs)
	storeDir := fs.String("store-dir", "", "Chain store directory")
	remote := fs.String("remote", "", "agentchaind address")
	limit := fs.Int64("limit", 0, "Maximum number of headers (0 means all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *remote != "" {
		client, ok := dialRemote(*remote, errOut)
		if !ok {
			return 1
		}
		defer client.Close()
		headers, err := client.Walk(context.Background(), *limit)
		if err != nil {
			fmt.Fprintf(errOut, "walk: %v\n", err)
			return 1
		}
		for _, h := range headers {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", h.Hash, h.Header.Type, h.Header.Timestamp, h.Header.Entry)
		}
		return 0
	}

	signer, ok := sf.load(errOut)
	if !ok {
		return 2
	}
	store, ok := openStore(*storeDir, errOut)
	if !ok {
		return 1
	}
	pipeline, _, ok := localEngine(store, signer, errOut)
	if !ok {
		return 1
	}
	w, err := pipeline.Chain().Walk()
	if err != nil {
		fmt.Fprintf(errOut, "walk: %v\n", err)
		return 1
	}
	var printed int64
	for *limit <= 0 || printed < *limit {
		h, id, next, err := w.Next()
		if err != nil {
			fmt.Fprintf(errOut, "walk: %v\n", err)
			return 1
		}
		if !next {
			break
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", id, h.Type, h.Timestamp, h.Entry)
		printed++
	}
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf signerFlags
	sf.register(fs)
	storeDir := fs.String("store-dir", "", "Chain store directory")
	remote := fs.String("remote", "", "agentchaind address")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *remote != "" {
		client, ok := dialRemote(*remote, errOut)
		if !ok {
			return 1
		}
		defer client.Close()
		if err := client.Verify(context.Background(), ""); err != nil {
			fmt.Fprintf(errOut, "verify: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(out, "OK")
		return 0
	}

	signer, ok := sf.load(errOut)
	if !ok {
		return 2
	}
	store, ok := openStore(*storeDir, errOut)
	if !ok {
		return 1
	}
	c, err := sourcechain.New(signer.AgentKey(), store, store)
	if err != nil {
		fmt.Fprintf(errOut, "source chain: %v\n", err)
		return 1
	}
	if err := c.Verify(); err != nil {
		fmt.Fprintf(errOut, "verify: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, "OK")
	return 0
}

func cmdProvenances(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("provenances", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf signerFlags
	sf.register(fs)
	storeDir := fs.String("store-dir", "", "Chain store directory")
	remote := fs.String("remote", "", "agentchaind address")
	headerStr := fs.String("header", "", "Header CID")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	header, ok := parseCID(*headerStr, "--header", errOut)
	if !ok {
		return 2
	}

	if *remote != "" {
		client, ok := dialRemote(*remote, errOut)
		if !ok {
			return 1
		}
		defer client.Close()
		provs, err := client.Provenances(context.Background(), header)
		if err != nil {
			fmt.Fprintf(errOut, "provenances: %v\n", err)
			return 1
		}
		for _, p := range provs {
			fmt.Fprintf(out, "%s\n", p.AgentKey)
		}
		return 0
	}

	// Locally, provenances come from the header itself; the in-memory
	// ledger of a one-shot CLI run would be empty.
	signer, ok := sf.load(errOut)
	if !ok {
		return 2
	}
	store, ok := openStore(*storeDir, errOut)
	if !ok {
		return 1
	}
	c, err := sourcechain.New(signer.AgentKey(), store, store)
	if err != nil {
		fmt.Fprintf(errOut, "source chain: %v\n", err)
		return 1
	}
	h, err := c.GetHeader(header)
	if err != nil {
		fmt.Fprintf(errOut, "provenances: %v\n", err)
		return 1
	}
	for _, p := range h.Provenances {
		fmt.Fprintf(out, "%s\n", p.AgentKey)
	}
	return 0
}

func cmdExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf signerFlags
	sf.register(fs)
	storeDir := fs.String("store-dir", "", "Chain store directory")
	outPath := fs.String("out", "", "Bundle file to write")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *outPath == "" {
		fmt.Fprintln(errOut, "missing --out")
		return 2
	}
	signer, ok := sf.load(errOut)
	if !ok {
		return 2
	}
	store, ok := openStore(*storeDir, errOut)
	if !ok {
		return 1
	}
	c, err := sourcechain.New(signer.AgentKey(), store, store)
	if err != nil {
		fmt.Fprintf(errOut, "source chain: %v\n", err)
		return 1
	}

	// Every header block plus every referenced entry block.
	w, err := c.Walk()
	if err != nil {
		fmt.Fprintf(errOut, "walk: %v\n", err)
		return 1
	}
	var ids []cid.Cid
	labels := map[string]cid.Cid{}
	for {
		h, id, next, err := w.Next()
		if err != nil {
			fmt.Fprintf(errOut, "walk: %v\n", err)
			return 1
		}
		if !next {
			break
		}
		entryID, err := h.EntryCID()
		if err != nil {
			fmt.Fprintf(errOut, "walk: %v\n", err)
			return 1
		}
		ids = append(ids, id, entryID)
		if len(labels) == 0 {
			labels["tip"] = id
		}
	}
	if len(ids) == 0 {
		fmt.Fprintln(errOut, "chain is empty; nothing to export")
		return 1
	}

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(errOut, "create %s: %v\n", *outPath, err)
		return 1
	}
	defer f.Close()
	if err := bundle.Export(f, store, ids, bundle.ExportOptions{Labels: labels, IncludeIndex: true}); err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "exported %d blocks to %s\n", len(ids), *outPath)
	return 0
}

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	storeDir := fs.String("store-dir", "", "Chain store directory")
	inPath := fs.String("in", "", "Bundle file to read")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *inPath == "" {
		fmt.Fprintln(errOut, "missing --in")
		return 2
	}
	store, ok := openStore(*storeDir, errOut)
	if !ok {
		return 1
	}
	f, err := os.Open(*inPath)
	if err != nil {
		fmt.Fprintf(errOut, "open %s: %v\n", *inPath, err)
		return 1
	}
	defer f.Close()
	if err := bundle.Import(f, store); err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, "OK")
	return 0
}

func parseCID(s, flagName string, errOut io.Writer) (cid.Cid, bool) {
	if s == "" {
		fmt.Fprintf(errOut, "missing %s\n", flagName)
		return cid.Undef, false
	}
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		fmt.Fprintf(errOut, "invalid %s: %s\n", flagName, s)
		return cid.Undef, false
	}
	return id, true
}
