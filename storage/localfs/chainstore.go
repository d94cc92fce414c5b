package localfs

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/storage"
)

// Store combines the filesystem CAS with a filesystem chain index, giving a
// durable implementation of both storage halves under one root:
//
//	<root>/objects/<xx>/<cid>      immutable blocks
//	<root>/chains/<agent>/NNNNNNNN stored header CID per position
//	<root>/chains/<agent>/TIP      current tip CID
//
// The agent directory name is URL-safe base64 of the agent key string, since
// agent keys contain characters that are not filename-safe.
//
// Position files are created with O_EXCL, so two processes racing on the
// same chain cannot both claim a position; the loser observes ErrTipMoved.
type Store struct {
	*CAS

	root string
	mu   sync.Mutex
}

var (
	_ storage.CAS        = (*Store)(nil)
	_ storage.ChainStore = (*Store)(nil)
)

// Open constructs a Store rooted at root, creating directories as needed.
func Open(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("localfs: root directory is required")
	}
	cas, err := New(filepath.Join(root, "objects"))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(root, "chains"), 0o755); err != nil {
		return nil, err
	}
	return &Store{CAS: cas, root: root}, nil
}

func (s *Store) agentDir(agent string) string {
	enc := base64.RawURLEncoding.EncodeToString([]byte(agent))
	return filepath.Join(s.root, "chains", enc)
}

func (s *Store) AppendHeader(agent string, expectedTip, header cid.Cid) (int, error) {
	if agent == "" || !header.Defined() {
		return 0, storage.ErrInvalidCID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.agentDir(agent)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	tip, n, err := s.readTip(dir)
	if err != nil {
		return 0, err
	}
	if tip != expectedTip {
		return 0, storage.ErrTipMoved
	}

	pos := n + 1
	posPath := filepath.Join(dir, fmt.Sprintf("%08d", pos))
	f, err := os.OpenFile(posPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			// Another process appended between our tip read and now.
			return 0, storage.ErrTipMoved
		}
		return 0, err
	}
	if _, err := f.WriteString(header.String() + "\n"); err != nil {
		_ = f.Close()
		_ = os.Remove(posPath)
		return 0, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(posPath)
		return 0, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(posPath)
		return 0, err
	}

	if err := s.writeTip(dir, header); err != nil {
		return 0, err
	}
	return pos, nil
}

func (s *Store) Tip(agent string) (cid.Cid, bool, error) {
	dir := s.agentDir(agent)
	tip, _, err := s.readTip(dir)
	if err != nil {
		return cid.Undef, false, err
	}
	if !tip.Defined() {
		return cid.Undef, false, nil
	}
	return tip, true, nil
}

func (s *Store) Headers(agent string) ([]cid.Cid, error) {
	dir := s.agentDir(agent)
	positions, err := s.positions(dir)
	if err != nil {
		return nil, err
	}
	out := make([]cid.Cid, 0, len(positions))
	for _, name := range positions {
		id, err := s.readCIDFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *Store) Len(agent string) (int, error) {
	positions, err := s.positions(s.agentDir(agent))
	if err != nil {
		return 0, err
	}
	return len(positions), nil
}

// readTip returns the tip CID (Undef for an empty chain) and the chain length.
func (s *Store) readTip(dir string) (cid.Cid, int, error) {
	positions, err := s.positions(dir)
	if err != nil {
		return cid.Undef, 0, err
	}
	if len(positions) == 0 {
		return cid.Undef, 0, nil
	}
	// The TIP file is a convenience pointer; positions are authoritative.
	id, err := s.readCIDFile(filepath.Join(dir, positions[len(positions)-1]))
	if err != nil {
		return cid.Undef, 0, err
	}
	return id, len(positions), nil
}

func (s *Store) writeTip(dir string, tip cid.Cid) error {
	tmp := filepath.Join(dir, ".tip.tmp")
	if err := os.WriteFile(tmp, []byte(tip.String()+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, "TIP"))
}

func (s *Store) positions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) == 8 && isDigits(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) readCIDFile(path string) (cid.Cid, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cid.Undef, storage.ErrNotFound
		}
		return cid.Undef, err
	}
	id, err := cid.Decode(strings.TrimSpace(string(b)))
	if err != nil || !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	return id, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
