package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

// SeedFile is the optional seed read by NewFromDir.
const SeedFile = "seed_items.csv"

type Store struct {
	mu    sync.Mutex
	items []core.Record
	now   func() time.Time
}

func New(seed ...core.LineItem) *Store {
	s := &Store{now: time.Now}
	for _, it := range seed {
		s.add(it)
	}
	return s
}

// NewFromDir seeds the store from dir/seed_items.csv when it exists. The file
// has an item,category,price header; blank lines and lines starting with #
// are ignored.
func NewFromDir(dir string) (*Store, error) {
	f, err := os.Open(filepath.Join(dir, SeedFile))
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	seed, err := readSeed(f)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return New(seed...), nil
}

// Insert stores the item and returns a synthetic reference.
func (s *Store) Insert(ctx context.Context, it core.LineItem) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(it), nil
}

// List returns a copy of every stored record in insertion order.
func (s *Store) List(ctx context.Context) ([]core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Record(nil), s.items...), nil
}

// add must be called with mu held, or before the store is shared.
func (s *Store) add(it core.LineItem) string {
	id := fmt.Sprintf("mem:%d", len(s.items)+1)
	s.items = append(s.items, core.Record{
		ID:        id,
		Item:      it.Item,
		Category:  it.Category,
		Price:     it.Price,
		CreatedAt: s.now().UTC(),
	})
	return id
}

func readSeed(r io.Reader) ([]core.LineItem, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[core.Key(h)] = i
	}
	if _, ok := cols[core.KeyCategory]; !ok {
		return nil, errors.New(core.MsgNoCategoryColumn)
	}

	field := func(rec []string, key string) string {
		if i, ok := cols[key]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var out []core.LineItem
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(field(rec, core.KeyPrice))
		if err != nil {
			price = decimal.Zero
		}
		out = append(out, core.LineItem{
			Item:     field(rec, core.KeyItem),
			Category: field(rec, core.KeyCategory),
			Price:    price,
		})
	}
}
