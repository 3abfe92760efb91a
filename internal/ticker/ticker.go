// Package ticker maps asset display names to market symbols using a static
// JSON mapping file of the form {"asset name": "SYMBOL"}.
package ticker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

// symbolRegex matches exchange symbols as used by the market data provider.
// Examples: SAN.MC, BRK-B, ^GSPC, EURUSD=X
var symbolRegex = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-=^]*$`)

var (
	ErrMissingMapping = errors.New("ticker: no symbol mapped for asset")
	ErrInvalidSymbol  = errors.New("ticker: invalid symbol")
)

// Resolver holds an immutable name → symbol mapping.
type Resolver struct {
	symbols map[string]string
}

// New builds a resolver from an in-memory mapping. Names and symbols are
// trimmed, symbols upper-cased; blank symbols are treated as unmapped.
func New(mapping map[string]string) (*Resolver, error) {
	symbols := make(map[string]string, len(mapping))
	for name, sym := range mapping {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if !symbolRegex.MatchString(sym) {
			return nil, fmt.Errorf("%w: %q for asset %q", ErrInvalidSymbol, sym, name)
		}
		symbols[strings.TrimSpace(name)] = sym
	}
	return &Resolver{symbols: symbols}, nil
}

// Load reads a JSON mapping file.
func Load(path string) (*Resolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ticker mapping: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a JSON mapping from r.
func Decode(r io.Reader) (*Resolver, error) {
	var mapping map[string]string
	if err := json.NewDecoder(r).Decode(&mapping); err != nil {
		return nil, fmt.Errorf("decode ticker mapping: %w", err)
	}
	return New(mapping)
}

// Resolve returns the symbol for an asset name.
func (r *Resolver) Resolve(asset string) (string, error) {
	sym, ok := r.symbols[strings.TrimSpace(asset)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingMapping, asset)
	}
	return sym, nil
}

// ResolveAll resolves every asset. Assets without a mapping are returned
// in missing (sorted, deduplicated) and left out of the symbol map.
func (r *Resolver) ResolveAll(assets []string) (symbols map[string]string, missing []string) {
	symbols = make(map[string]string, len(assets))
	seen := make(map[string]bool)
	for _, a := range assets {
		sym, err := r.Resolve(a)
		if err != nil {
			if !seen[a] {
				seen[a] = true
				missing = append(missing, a)
			}
			continue
		}
		symbols[a] = sym
	}
	sort.Strings(missing)
	return symbols, missing
}

// Len returns the number of mapped assets.
func (r *Resolver) Len() int {
	return len(r.symbols)
}
