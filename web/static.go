package web

import (
	"container/list"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/searchktools/webstack/core/http"
)

// fileCache is an LRU cache of static file contents, so hot assets are
// served without touching the filesystem on every request.
type fileCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List
	maxFiles int
}

type cacheEntry struct {
	path string
	data []byte
}

func newFileCache(maxFiles int) *fileCache {
	return &fileCache{
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		maxFiles: maxFiles,
	}
}

func (fc *fileCache) get(path string) ([]byte, error) {
	fc.mu.Lock()
	if el, ok := fc.entries[path]; ok {
		fc.lru.MoveToFront(el)
		data := el.Value.(*cacheEntry).data
		fc.mu.Unlock()
		return data, nil
	}
	fc.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	if _, ok := fc.entries[path]; !ok {
		fc.entries[path] = fc.lru.PushFront(&cacheEntry{path: path, data: data})
		if fc.lru.Len() > fc.maxFiles {
			oldest := fc.lru.Back()
			fc.lru.Remove(oldest)
			delete(fc.entries, oldest.Value.(*cacheEntry).path)
		}
	}
	return data, nil
}

// sanitizePath strips ".." traversal from a request path and normalizes
// it to a clean, rooted, slash-separated path.
func sanitizePath(uri string) string {
	if q := strings.IndexByte(uri, '?'); q != -1 {
		uri = uri[:q]
	}
	uri = strings.ReplaceAll(uri, "..", "")
	cleaned := filepath.Clean("/" + strings.TrimLeft(uri, "/"))
	return cleaned
}

// serveStatic tries each registered static directory in registration
// order and serves the first file found. Paths that would escape a
// registered root are rejected.
func (s *Server) serveStatic(req *http.Request, res *http.Response) {
	rel := sanitizePath(req.URI())

	for _, dir := range s.staticDirs {
		full := filepath.Join(dir, rel)
		if !strings.HasPrefix(full, filepath.Clean(dir)+string(filepath.Separator)) {
			continue
		}

		data, err := s.files.get(full)
		if err != nil {
			continue
		}

		res.SetStatus(200, "OK")
		res.AddHeader("Content-Type", MimeType(fileExtension(req.URI())))
		res.SetBody(data)
		if err := res.Send(); err != nil {
			s.reportError(err)
		}
		return
	}

	res.SetStatus(404, "Not Found")
	if err := res.SendText("404 Not Found"); err != nil {
		s.reportError(err)
	}
}
