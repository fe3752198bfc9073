package pager

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// NoPage is the pagenum of a frame that holds no page.
const NoPage = -1

// ErrPageOverflow is returned by Update when a write would run past the end of the page.
var ErrPageOverflow = errors.New("write exceeds page size")

// Page is a frame in the pager's buffer together with the metadata of the page it holds.
type Page struct {
	pager    *Pager       // Pager owning this frame
	pagenum  int64        // Position of the page in the backing file, or NoPage
	pinCount atomic.Int64 // Number of active references to this page
	dirty    bool         // Whether data differs from what is on disk
	rwlock   sync.RWMutex // Reader-writer lock on the page contents
	data     []byte       // Pagesize bytes, aligned for direct io
}

// GetPager returns the pager this page belongs to.
func (page *Page) GetPager() *Pager {
	return page.pager
}

// GetPageNum returns the page's pagenum.
func (page *Page) GetPageNum() int64 {
	return page.pagenum
}

// GetPinCount returns the number of outstanding references to the page.
func (page *Page) GetPinCount() int64 {
	return page.pinCount.Load()
}

func (page *Page) IsDirty() bool {
	return page.dirty
}

func (page *Page) SetDirty(dirty bool) {
	page.dirty = dirty
}

// GetData returns the page's bytes. Writers should go through Update so the page is marked dirty.
func (page *Page) GetData() []byte {
	return page.data
}

// Get increments the pin count.
func (page *Page) Get() {
	page.pinCount.Add(1)
}

// Put decrements the pin count and returns the new value.
func (page *Page) Put() int64 {
	return page.pinCount.Add(-1)
}

// Update copies size bytes of data into the page at offset and marks it dirty.
func (page *Page) Update(data []byte, offset int64, size int64) error {
	if offset < 0 || size < 0 || offset+size > int64(len(page.data)) || size > int64(len(data)) {
		return fmt.Errorf("%w: offset %d, size %d", ErrPageOverflow, offset, size)
	}
	page.dirty = true
	copy(page.data[offset:offset+size], data)
	return nil
}

// [CONCURRENCY] Grab a writers lock on the page.
func (page *Page) WLock() {
	page.rwlock.Lock()
}

// [CONCURRENCY] Release a writers lock.
func (page *Page) WUnlock() {
	page.rwlock.Unlock()
}

// [CONCURRENCY] Grab a readers lock on the page.
func (page *Page) RLock() {
	page.rwlock.RLock()
}

// [CONCURRENCY] Release a readers lock.
func (page *Page) RUnlock() {
	page.rwlock.RUnlock()
}
