// Package securemem keeps API keys in memguard enclaves so they are not
// left in plain process memory between uses.
package securemem

import (
	"sort"
	"sync"

	"github.com/awnumar/memguard"
)

// Keyring maps credential names (e.g. "openai", "brave") to sealed values.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]*memguard.Enclave
}

// NewKeyring creates an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string]*memguard.Enclave)}
}

// Set seals value under name. An empty value removes the entry.
func (k *Keyring) Set(name, value string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if value == "" {
		delete(k.keys, name)
		return
	}
	// NewEnclave wipes the slice it is given.
	k.keys[name] = memguard.NewEnclave([]byte(value))
}

// Has reports whether a non-empty key is stored under name.
func (k *Keyring) Has(name string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.keys[name]
	return ok
}

// Names returns the stored credential names, sorted.
func (k *Keyring) Names() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	names := make([]string, 0, len(k.keys))
	for name := range k.keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reveal opens the enclave for name and returns a plain copy. The copy is
// meant to be handed straight to an SDK client constructor.
func (k *Keyring) Reveal(name string) (string, error) {
	k.mu.RLock()
	enclave, ok := k.keys[name]
	k.mu.RUnlock()
	if !ok {
		return "", nil
	}

	buf, err := enclave.Open()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()
	return buf.String(), nil
}

// Init installs memguard's interrupt handler, which purges sealed memory
// before the process exits on SIGINT.
func Init() {
	memguard.CatchInterrupt()
}

// Purge destroys all sealed memory. Call it on shutdown.
func Purge() {
	memguard.Purge()
}
