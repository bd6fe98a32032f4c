package twin

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Object — сохраненный объект хранилища.
type Object struct {
	ContentType string
	Meta        map[string]string // x-amz-meta-*
	Body        []byte
}

// Objects — path-style объектное хранилище (PUT/GET /{bucket}/{key}).
// Подпись presigned URL не проверяется.
type Objects struct {
	mu      sync.RWMutex
	objects map[string]Object
	fault   int
}

func NewObjects() *Objects {
	return &Objects{objects: make(map[string]Object)}
}

// SetFault заставляет PUT отвечать заданным статусом (0 сбрасывает).
func (o *Objects) SetFault(status int) {
	o.mu.Lock()
	o.fault = status
	o.mu.Unlock()
}

// Get возвращает объект по bucket/key.
func (o *Objects) Get(bucket, key string) (Object, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	obj, ok := o.objects[bucket+"/"+key]
	return obj, ok
}

func (o *Objects) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.objects)
}

func (o *Objects) Routes(r chi.Router) {
	r.Put("/{bucket}/*", o.put)
	r.Get("/{bucket}/*", o.get)
}

func (o *Objects) put(w http.ResponseWriter, r *http.Request) {
	o.mu.RLock()
	fault := o.fault
	o.mu.RUnlock()
	if fault != 0 {
		w.WriteHeader(fault)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	obj := Object{ContentType: r.Header.Get("Content-Type"), Meta: map[string]string{}, Body: body}
	for k := range r.Header {
		if name, ok := metaName(k); ok {
			obj.Meta[name] = r.Header.Get(k)
		}
	}

	o.mu.Lock()
	o.objects[chi.URLParam(r, "bucket")+"/"+chi.URLParam(r, "*")] = obj
	o.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (o *Objects) get(w http.ResponseWriter, r *http.Request) {
	obj, ok := o.Get(chi.URLParam(r, "bucket"), chi.URLParam(r, "*"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Write(obj.Body)
}

// metaName: X-Amz-Meta-Kind -> kind
func metaName(header string) (string, bool) {
	name, ok := strings.CutPrefix(http.CanonicalHeaderKey(header), "X-Amz-Meta-")
	if !ok || name == "" {
		return "", false
	}
	return strings.ToLower(name), true
}
