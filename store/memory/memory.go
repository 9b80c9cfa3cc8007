package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/kirsrus/termovisor/model"
	"github.com/kirsrus/termovisor/store"

	"github.com/patrickmn/go-cache"
)

const (
	cacheExpiration      = 30 * time.Minute // Время жизни записи в кэше
	cacheCleanupInterval = 10 * time.Minute // Интервал очистки мёртвых записей
	cacheMaxItems        = 256              // Предельное количество изображений в кэше
)

// Images кэш исходных изображений. Имплементирует интерфейс ImageStore
type Images struct {
	mu       sync.Mutex
	cache    *cache.Cache
	maxItems int
}

// NewImages конструктор Images. Нулевые значения заменяются значениями по умолчанию
func NewImages(expiration, cleanup time.Duration, maxItems int) store.ImageStore {
	if expiration == 0 {
		expiration = cacheExpiration
	}
	if cleanup == 0 {
		cleanup = cacheCleanupInterval
	}
	if maxItems <= 0 {
		maxItems = cacheMaxItems
	}
	return &Images{
		cache:    cache.New(expiration, cleanup),
		maxItems: maxItems,
	}
}

// NewImagesIfEnabled кэш с временем жизни ttl. При нулевом ttl кэш отключён и возвращается nil
func NewImagesIfEnabled(ttl time.Duration, maxItems int) store.ImageStore {
	if ttl <= 0 {
		return nil
	}
	return NewImages(ttl, 0, maxItems)
}

// Put запоминает изображение под его ключом. При заполненном кэше вытесняется
// изображение с ближайшим сроком истечения
func (m *Images) Put(img model.SourceImage) {
	if strings.TrimSpace(img.Base64String) == "" {
		return
	}
	key := img.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.cache.Get(key); !found && m.cache.ItemCount() >= m.maxItems {
		m.cache.DeleteExpired()
		for m.cache.ItemCount() >= m.maxItems {
			if !m.evictOldest() {
				break
			}
		}
	}
	m.cache.SetDefault(key, img.Base64String)
}

// Удаляет запись с ближайшим сроком истечения
func (m *Images) evictOldest() bool {
	var (
		oldestKey string
		oldest    int64
	)
	for k, item := range m.cache.Items() {
		if oldestKey == "" || item.Expiration < oldest {
			oldestKey, oldest = k, item.Expiration
		}
	}
	if oldestKey == "" {
		return false
	}
	m.cache.Delete(oldestKey)
	return true
}

// Get изображение по ключу SIDE/port/section/name. Сторона сравнивается без учёта регистра
func (m *Images) Get(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if i := strings.Index(id, "/"); i > 0 {
		id = strings.ToUpper(id[:i]) + id[i:]
	}
	value, ok := m.cache.Get(id)
	if !ok {
		return "", false
	}
	encoded, ok := value.(string)
	return encoded, ok
}

// Count количество изображений в кэше
func (m *Images) Count() int {
	return m.cache.ItemCount()
}
