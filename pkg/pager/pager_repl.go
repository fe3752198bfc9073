package pager

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ehtdb/pkg/config"
	"ehtdb/pkg/list"
	"ehtdb/pkg/repl"
)

// ErrPageNotResident is returned by REPL commands that need a page already in the buffer.
var ErrPageNotResident = errors.New("page not found; did you pager_get it first?")

// PagerRepl creates a REPL driving a pager backed by filePath.
func PagerRepl(filePath string, cfg config.Config) (*repl.REPL, *Pager, error) {
	p, err := NewWithConfig(filePath, cfg)
	if err != nil {
		return nil, nil, err
	}
	r := repl.NewRepl()
	commands := []struct {
		trigger string
		handler func(*Pager, []string) (string, error)
		help    string
	}{
		{"pager_print", HandlePagerPrint, "Print out the state of the pager. usage: pager_print"},
		{"pager_table", HandlePagerTable, "Print out the pager's page table. usage: pager_table"},
		{"pager_get", HandlePagerGet, "Get a page into the pager. usage: pager_get <page_num>"},
		{"pager_new", HandlePagerNew, "Allocate a new page. usage: pager_new"},
		{"pager_write", HandlePagerWrite, "Write data to a page. usage: pager_write <page_num> <payload>"},
		{"pager_read", HandlePagerRead, "Read data from a page. usage: pager_read <page_num>"},
		{"pager_pin", HandlePagerPin, "Pin a page. usage: pager_pin <page_num>"},
		{"pager_unpin", HandlePagerUnpin, "Unpin a page. usage: pager_unpin <page_num>"},
		{"pager_flush", HandlePagerFlush, "Flush a page. usage: pager_flush <page_num>"},
		{"pager_flushall", HandlePagerFlushAll, "Flush all pages. usage: pager_flushall"},
	}
	for _, c := range commands {
		handler := c.handler
		err := r.AddCommand(c.trigger, func(payload string, _ *repl.REPLConfig) (string, error) {
			return handler(p, strings.Fields(payload))
		}, c.help)
		if err != nil {
			panic(err)
		}
	}
	return r, p, nil
}

// usage wraps a command's usage line in an error.
func usage(format string) error {
	return fmt.Errorf("usage: %s", format)
}

// pagenumArg parses the pagenum argument of a `<command> <page_num> ...` line.
func pagenumArg(fields []string, want int, format string) (int64, error) {
	if len(fields) != want {
		return 0, usage(format)
	}
	return strconv.ParseInt(fields[1], 10, 64)
}

// resident returns the buffered page with the given pagenum without pinning it.
func resident(p *Pager, pagenum int64) (*Page, error) {
	link, err := p.pageTable.Find(pagenum)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrPageNotResident, pagenum)
	}
	return link.GetValue(), nil
}

// HandlePagerPrint prints the frame lists of the pager.
func HandlePagerPrint(p *Pager, fields []string) (string, error) {
	if len(fields) != 1 {
		return "", usage("pager_print")
	}
	p.ptMtx.Lock()
	defer p.ptMtx.Unlock()
	w := new(strings.Builder)
	fmt.Fprintf(w, "numPages: %v, frames: %v\n", p.numPages, p.frames)
	fmt.Fprintf(w, "freeList: %d frames\n", p.freeList.Len())
	printList := func(name string, l *list.List[*Page]) {
		fmt.Fprintf(w, "%s: ", name)
		l.Map(func(link *list.Link[*Page]) {
			page := link.GetValue()
			fmt.Fprintf(w, "(pagenum: %v, pincount: %v), ", page.GetPageNum(), page.GetPinCount())
		})
		w.WriteString("\n")
	}
	printList("unpinnedList", p.unpinnedList)
	printList("pinnedList", p.pinnedList)
	return w.String(), nil
}

// HandlePagerTable prints the extendible hash table mapping pagenums to frames.
func HandlePagerTable(p *Pager, fields []string) (string, error) {
	if len(fields) != 1 {
		return "", usage("pager_table")
	}
	w := new(strings.Builder)
	p.pageTable.Print(w)
	return w.String(), nil
}

// HandlePagerGet pins an existing page into the buffer.
func HandlePagerGet(p *Pager, fields []string) (string, error) {
	pagenum, err := pagenumArg(fields, 2, "pager_get <page_num>")
	if err != nil {
		return "", err
	}
	_, err = p.GetPage(pagenum)
	return "", err
}

// HandlePagerNew allocates and pins a new page.
func HandlePagerNew(p *Pager, fields []string) (string, error) {
	if len(fields) != 1 {
		return "", usage("pager_new")
	}
	page, err := p.GetNewPage()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("allocated page %d", page.GetPageNum()), nil
}

// HandlePagerWrite writes a payload at the start of a resident page.
func HandlePagerWrite(p *Pager, fields []string) (string, error) {
	pagenum, err := pagenumArg(fields, 3, "pager_write <page_num> <payload>")
	if err != nil {
		return "", err
	}
	page, err := resident(p, pagenum)
	if err != nil {
		return "", err
	}
	data := []byte(fields[2])
	page.WLock()
	defer page.WUnlock()
	return "", page.Update(data, 0, int64(len(data)))
}

// HandlePagerRead prints the contents of a resident page up to the first zero byte.
func HandlePagerRead(p *Pager, fields []string) (string, error) {
	pagenum, err := pagenumArg(fields, 2, "pager_read <page_num>")
	if err != nil {
		return "", err
	}
	page, err := resident(p, pagenum)
	if err != nil {
		return "", err
	}
	page.RLock()
	defer page.RUnlock()
	data, _, _ := strings.Cut(string(page.GetData()), "\x00")
	return data, nil
}

// HandlePagerPin takes another reference on a resident page.
func HandlePagerPin(p *Pager, fields []string) (string, error) {
	pagenum, err := pagenumArg(fields, 2, "pager_pin <page_num>")
	if err != nil {
		return "", err
	}
	if _, err := resident(p, pagenum); err != nil {
		return "", err
	}
	_, err = p.GetPage(pagenum)
	return "", err
}

// HandlePagerUnpin releases a reference on a resident page.
func HandlePagerUnpin(p *Pager, fields []string) (string, error) {
	pagenum, err := pagenumArg(fields, 2, "pager_unpin <page_num>")
	if err != nil {
		return "", err
	}
	page, err := resident(p, pagenum)
	if err != nil {
		return "", err
	}
	return "", p.PutPage(page)
}

// HandlePagerFlush writes a resident page to disk.
func HandlePagerFlush(p *Pager, fields []string) (string, error) {
	pagenum, err := pagenumArg(fields, 2, "pager_flush <page_num>")
	if err != nil {
		return "", err
	}
	page, err := resident(p, pagenum)
	if err != nil {
		return "", err
	}
	page.RLock()
	defer page.RUnlock()
	return "", p.FlushPage(page)
}

// HandlePagerFlushAll writes a consistent snapshot of every dirty page to disk.
func HandlePagerFlushAll(p *Pager, fields []string) (string, error) {
	if len(fields) != 1 {
		return "", usage("pager_flushall")
	}
	return "", p.SnapshotAllPages()
}
