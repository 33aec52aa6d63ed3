package chain

import (
	"bytes"
	"compress/zlib"
	"context"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abis/*.json
var bundledABIs embed.FS

// ErrABINotFound is returned when no source knows the contract's ABI.
var ErrABINotFound = errors.New("abi not found")

// ABIFetcher returns the compressed, base64 encoded ABI stored on chain.
type ABIFetcher func(ctx context.Context, name string) (string, error)

// ABIRegistry loads contract ABIs by name. Lookup order is the bundled set,
// an optional override directory, then the fetcher.
type ABIRegistry struct {
	mu     sync.RWMutex
	parsed map[string]*abi.ABI
	dir    string
	fetch  ABIFetcher
}

func NewABIRegistry(dir string, fetch ABIFetcher) *ABIRegistry {
	return &ABIRegistry{
		parsed: make(map[string]*abi.ABI),
		dir:    dir,
		fetch:  fetch,
	}
}

// Get returns the parsed ABI for a contract name.
func (r *ABIRegistry) Get(ctx context.Context, name string) (*abi.ABI, error) {
	r.mu.RLock()
	parsed, ok := r.parsed[name]
	r.mu.RUnlock()
	if ok {
		return parsed, nil
	}

	raw, err := r.load(ctx, name)
	if err != nil {
		return nil, err
	}
	contractABI, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse abi %s: %w", name, err)
	}

	r.mu.Lock()
	r.parsed[name] = &contractABI
	r.mu.Unlock()
	return &contractABI, nil
}

// MustGet is for bundled ABIs the process cannot run without.
func (r *ABIRegistry) MustGet(name string) *abi.ABI {
	parsed, err := r.Get(context.Background(), name)
	if err != nil {
		panic(err)
	}
	return parsed
}

func (r *ABIRegistry) load(ctx context.Context, name string) (string, error) {
	data, err := bundledABIs.ReadFile("abis/" + name + ".json")
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	if r.dir != "" {
		data, err := os.ReadFile(filepath.Join(r.dir, name+".json"))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read abi %s: %w", name, err)
		}
	}

	if r.fetch == nil {
		return "", fmt.Errorf("%w: %s", ErrABINotFound, name)
	}
	compressed, err := r.fetch(ctx, name)
	if err != nil {
		return "", fmt.Errorf("fetch abi %s: %w", name, err)
	}
	if compressed == "" {
		return "", fmt.Errorf("%w: %s", ErrABINotFound, name)
	}
	return InflateABI(compressed)
}

// InflateABI decodes the base64 zlib blob the storage contract keeps.
func InflateABI(compressed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(compressed)
	if err != nil {
		return "", fmt.Errorf("decode abi: %w", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("inflate abi: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("inflate abi: %w", err)
	}
	return string(out), nil
}
