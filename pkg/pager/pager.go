// Package pager implements a buffer pool of page frames backed by a database file.
// Resident pages are tracked by an extendible hash table keyed by pagenum.
package pager

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"ehtdb/pkg/config"
	"ehtdb/pkg/hash"
	"ehtdb/pkg/list"

	"github.com/hashicorp/go-multierror"
	"github.com/ncw/directio"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("pager")

// Pagesize is the size of an individual page in bytes.
const Pagesize int64 = directio.BlockSize

var (
	// ErrRanOutOfPages is returned when every frame is pinned.
	ErrRanOutOfPages = errors.New("no available pages")
	// ErrInvalidPagenum is returned for pagenums outside the backing file.
	ErrInvalidPagenum = errors.New("invalid pagenum")
	// ErrPagesPinned is returned by Close while pages are still in use.
	ErrPagesPinned = errors.New("pages are still pinned on close")
	// ErrNegativePinCount is returned by PutPage when a page is put more times than it was got.
	ErrNegativePinCount = errors.New("pinCount for page is < 0")
	// ErrCorruptFile is returned when the backing file is not a whole number of pages.
	ErrCorruptFile = errors.New("DB file has been corrupted")
)

type frameTable = hash.Table[int64, *list.Link[*Page]]

// Pager manages pages of data stored in a file.
type Pager struct {
	file         *os.File          // Backing file
	numPages     int64             // Number of pages in the file, resident or not
	frames       int64             // Number of frames in the buffer
	freeList     *list.List[*Page] // Frames holding no page
	unpinnedList *list.List[*Page] // Resident pages nobody is using; eviction candidates
	pinnedList   *list.List[*Page] // Resident pages in use
	limits       config.Limits     // Bucket limits of the page table
	// Maps resident pagenums to the link holding the page in pinnedList or unpinnedList.
	pageTable *frameTable
	ptMtx     sync.Mutex // Serializes frame list manipulation
}

// New constructs a Pager configured from the environment and backs it with the file at filePath.
func New(filePath string) (*Pager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(filePath, cfg)
}

// NewWithConfig constructs a Pager with cfg.PagesInBuffer frames.
// See [*Pager.Open] for how the backing file is handled.
func NewWithConfig(filePath string, cfg config.Config) (*Pager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pager := &Pager{
		frames:       cfg.PagesInBuffer,
		freeList:     list.NewList[*Page](),
		unpinnedList: list.NewList[*Page](),
		pinnedList:   list.NewList[*Page](),
		limits:       cfg.Limits,
	}
	pager.pageTable = hash.NewTable[int64, *list.Link[*Page]](hash.XxHasher[int64](), pager.limits)
	buffer := directio.AlignedBlock(int(Pagesize * cfg.PagesInBuffer))
	for i := int64(0); i < cfg.PagesInBuffer; i++ {
		pager.freeList.PushTail(&Page{
			pager:   pager,
			pagenum: NoPage,
			data:    buffer[i*Pagesize : (i+1)*Pagesize],
		})
	}
	if err := pager.Open(filePath); err != nil {
		return nil, err
	}
	return pager, nil
}

// GetFileName returns the path of the pager's backing file.
func (pager *Pager) GetFileName() string {
	return pager.file.Name()
}

// GetNumPages returns the number of pages.
func (pager *Pager) GetNumPages() int64 {
	return pager.numPages
}

// GetFreePN returns the next available page number.
func (pager *Pager) GetFreePN() int64 {
	return pager.numPages
}

// GetPageTableStats returns the page table's global depth, bucket count and resident page count.
func (pager *Pager) GetPageTableStats() (globalDepth, buckets, pages int64) {
	return pager.pageTable.GetGlobalDepth(), pager.pageTable.GetNumBuckets(), pager.pageTable.GetNumPairs()
}

// Open (re-)initializes the pager with the database file at filePath,
// creating the file and its directory if needed. Files whose size is not a
// multiple of Pagesize are rejected. The pager must not be used after an error.
func (pager *Pager) Open(filePath string) (err error) {
	if err = os.MkdirAll(filepath.Dir(filePath), 0775); err != nil {
		return err
	}
	pager.file, err = directio.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		// Some filesystems (tmpfs among them) reject O_DIRECT.
		log.Warningf("direct io unavailable for %s, falling back to buffered io: %v", filePath, err)
		if pager.file, err = os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0666); err != nil {
			return err
		}
	}
	info, err := pager.file.Stat()
	if err != nil {
		return err
	}
	if info.Size()%Pagesize != 0 {
		return fmt.Errorf("%w: %s is %d bytes", ErrCorruptFile, filePath, info.Size())
	}
	pager.numPages = info.Size() / Pagesize
	log.Debugf("opened %s with %d pages", filePath, pager.numPages)
	return nil
}

// Close flushes every dirty page, empties the buffer and closes the backing file.
// It fails without side effects if any page is still pinned.
func (pager *Pager) Close() error {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	if pager.pinnedList.Len() > 0 {
		return fmt.Errorf("%w: %d pages", ErrPagesPinned, pager.pinnedList.Len())
	}
	result := multierror.Append(nil, pager.flushAllPages())
	pager.unpinnedList.Map(func(link *list.Link[*Page]) {
		link.PopSelf()
		page := link.GetValue()
		page.pagenum = NoPage
		page.dirty = false
		pager.freeList.PushTail(page)
	})
	pager.pageTable = hash.NewTable[int64, *list.Link[*Page]](hash.XxHasher[int64](), pager.limits)
	result = multierror.Append(result, pager.file.Close())
	return result.ErrorOrNil()
}

// fillPageFromDisk reads a page's data from the backing file.
func (pager *Pager) fillPageFromDisk(page *Page) error {
	if _, err := pager.file.Seek(page.pagenum*Pagesize, io.SeekStart); err != nil {
		return err
	}
	if _, err := pager.file.Read(page.data); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// newPage returns an unused frame from the free list, evicting the oldest
// unpinned page if the free list is empty. The ptMtx should be locked on entry.
func (pager *Pager) newPage(pagenum int64) (*Page, error) {
	var page *Page
	if freeLink := pager.freeList.PeekHead(); freeLink != nil {
		freeLink.PopSelf()
		page = freeLink.GetValue()
	} else if unpinLink := pager.unpinnedList.PeekHead(); unpinLink != nil {
		page = unpinLink.GetValue()
		if err := pager.FlushPage(page); err != nil {
			return nil, err
		}
		if err := pager.pageTable.Delete(page.pagenum); err != nil {
			return nil, fmt.Errorf("evicting page %d: %w", page.pagenum, err)
		}
		unpinLink.PopSelf()
		log.Debugf("evicted page %d for page %d", page.pagenum, pagenum)
	} else {
		return nil, ErrRanOutOfPages
	}
	page.pagenum = pagenum
	page.dirty = false
	page.pinCount.Store(1)
	return page, nil
}

// pin records page as resident and in use.
func (pager *Pager) pin(page *Page) error {
	return pager.pageTable.Insert(page.pagenum, pager.pinnedList.PushTail(page))
}

// GetNewPage returns a pinned page with the next available pagenum.
func (pager *Pager) GetNewPage() (*Page, error) {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	page, err := pager.newPage(pager.numPages)
	if err != nil {
		return nil, err
	}
	// A new page only exists on disk once it is flushed.
	page.dirty = true
	if err := pager.pin(page); err != nil {
		return nil, err
	}
	pager.numPages++
	return page, nil
}

// GetPage returns the page with the given pagenum, pinning it and reading it from disk if it is not resident.
func (pager *Pager) GetPage(pagenum int64) (*Page, error) {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	if pagenum < 0 || pagenum >= pager.numPages {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPagenum, pagenum)
	}
	link, err := pager.pageTable.Find(pagenum)
	if err == nil {
		page := link.GetValue()
		if link.GetList() == pager.unpinnedList {
			link.PopSelf()
			if err := pager.pin(page); err != nil {
				return nil, err
			}
		}
		page.Get()
		return page, nil
	}
	if !errors.Is(err, hash.ErrKeyNotFound) {
		return nil, err
	}

	page, err := pager.newPage(pagenum)
	if err != nil {
		return nil, err
	}
	if err := pager.fillPageFromDisk(page); err != nil {
		page.pagenum = NoPage
		pager.freeList.PushTail(page)
		return nil, err
	}
	if err := pager.pin(page); err != nil {
		return nil, err
	}
	return page, nil
}

// PutPage releases a reference to a page, making it evictable once nobody holds it.
func (pager *Pager) PutPage(page *Page) error {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	ret := page.Put()
	if ret < 0 {
		page.Get()
		return fmt.Errorf("%w: page %d", ErrNegativePinCount, page.pagenum)
	}
	if ret == 0 {
		link, err := pager.pageTable.Find(page.pagenum)
		if err != nil {
			return fmt.Errorf("unpinning page %d: %w", page.pagenum, err)
		}
		link.PopSelf()
		return pager.pageTable.Insert(page.pagenum, pager.unpinnedList.PushTail(page))
	}
	return nil
}

// FlushPage writes a page to disk if it is dirty.
// Concurrency note: the page should at least be read-locked upon entry.
func (pager *Pager) FlushPage(page *Page) error {
	if !page.IsDirty() {
		return nil
	}
	if _, err := pager.file.WriteAt(page.data, page.pagenum*Pagesize); err != nil {
		return fmt.Errorf("flushing page %d: %w", page.pagenum, err)
	}
	page.SetDirty(false)
	return nil
}

// SnapshotAllPages flushes every dirty resident page while holding all page
// read locks, so the file reflects one consistent state of the buffer.
func (pager *Pager) SnapshotAllPages() error {
	pager.LockAllPages()
	defer pager.UnlockAllPages()
	return pager.flushAllPages()
}

// FlushAllPages writes every dirty resident page to disk.
func (pager *Pager) FlushAllPages() error {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	return pager.flushAllPages()
}

func (pager *Pager) flushAllPages() error {
	var result *multierror.Error
	writer := func(link *list.Link[*Page]) {
		if err := pager.FlushPage(link.GetValue()); err != nil {
			result = multierror.Append(result, err)
		}
	}
	pager.pinnedList.Map(writer)
	pager.unpinnedList.Map(writer)
	return result.ErrorOrNil()
}

// LockAllPages locks the pager and read locks every resident page, so no
// page can be evicted or written until UnlockAllPages.
func (pager *Pager) LockAllPages() {
	pager.ptMtx.Lock()
	for _, e := range pager.pageTable.Select() {
		e.Value.GetValue().RLock()
	}
}

// UnlockAllPages releases the locks taken by LockAllPages.
func (pager *Pager) UnlockAllPages() {
	for _, e := range pager.pageTable.Select() {
		e.Value.GetValue().RUnlock()
	}
	pager.ptMtx.Unlock()
}
