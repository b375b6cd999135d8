package mdl

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
)

// Registry holds the manifests of prepared deployments. Question
// pipelines resolve the manifest here when validating generated SQL.
type Registry struct {
	mu        sync.RWMutex
	manifests map[string]Manifest
}

func NewRegistry() *Registry {
	return &Registry{manifests: map[string]Manifest{}}
}

func (r *Registry) Put(deploymentID string, manifest Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifests[deploymentID] = manifest
}

func (r *Registry) Get(deploymentID string) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	manifest, ok := r.manifests[deploymentID]
	return manifest, ok
}

func (r *Registry) Delete(deploymentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.manifests, deploymentID)
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.manifests))
	for id := range r.manifests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Hash derives a deployment identifier from the raw manifest, so the
// same manifest always prepares to the same deployment.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}
