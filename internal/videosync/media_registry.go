package videosync

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// MediaRegistry exposes local files to renderers under unguessable URLs.
// Revoking a token is how a released surface loses access to its media.
type MediaRegistry struct {
	prefix string
	mu     sync.RWMutex
	files  map[string]string
}

// NewMediaRegistry creates a registry whose URLs start with prefix.
func NewMediaRegistry(prefix string) *MediaRegistry {
	return &MediaRegistry{prefix: prefix, files: map[string]string{}}
}

// Register exposes path and returns its URL and the function revoking it.
func (m *MediaRegistry) Register(path string) (url string, revoke func()) {
	token := uuid.NewString()
	m.mu.Lock()
	m.files[token] = path
	m.mu.Unlock()
	return m.prefix + token, func() {
		m.mu.Lock()
		delete(m.files, token)
		m.mu.Unlock()
	}
}

// Len reports how many files are exposed.
func (m *MediaRegistry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

func (m *MediaRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	path, ok := m.files[r.PathValue("token")]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}
