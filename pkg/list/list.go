// Package list implements the doubly linked list backing the pager's frame lists.
package list

// List is a doubly linked list of values of type T.
type List[T any] struct {
	head *Link[T]
	tail *Link[T]
	size int
}

// NewList creates an empty list.
func NewList[T any]() *List[T] {
	return &List[T]{}
}

// PeekHead returns the head of the list, or nil if it is empty.
func (list *List[T]) PeekHead() *Link[T] {
	return list.head
}

// PeekTail returns the tail of the list, or nil if it is empty.
func (list *List[T]) PeekTail() *Link[T] {
	return list.tail
}

// Len returns the number of links in the list.
func (list *List[T]) Len() int {
	return list.size
}

// PushHead adds an element to the start of the list. Returns the added link.
func (list *List[T]) PushHead(value T) *Link[T] {
	link := &Link[T]{list: list, next: list.head, value: value}
	if list.head != nil {
		list.head.prev = link
	}
	list.head = link
	if list.tail == nil {
		list.tail = link
	}
	list.size++
	return link
}

// PushTail adds an element to the end of the list. Returns the added link.
func (list *List[T]) PushTail(value T) *Link[T] {
	link := &Link[T]{list: list, prev: list.tail, value: value}
	if list.tail != nil {
		list.tail.next = link
	}
	list.tail = link
	if list.head == nil {
		list.head = link
	}
	list.size++
	return link
}

// Find returns the first link for which f returns true, or nil.
func (list *List[T]) Find(f func(*Link[T]) bool) *Link[T] {
	for cur := list.head; cur != nil; cur = cur.next {
		if f(cur) {
			return cur
		}
	}
	return nil
}

// Map applies f to every link in the list, head to tail.
// f may pop the link it is given.
func (list *List[T]) Map(f func(*Link[T])) {
	for cur := list.head; cur != nil; {
		next := cur.next
		f(cur)
		cur = next
	}
}

// Link is an element of a List.
type Link[T any] struct {
	list  *List[T]
	prev  *Link[T]
	next  *Link[T]
	value T
}

// GetList returns the list this link belongs to, or nil once popped.
func (link *Link[T]) GetList() *List[T] {
	return link.list
}

// GetValue returns the link's value.
func (link *Link[T]) GetValue() T {
	return link.value
}

// SetValue replaces the link's value.
func (link *Link[T]) SetValue(value T) {
	link.value = value
}

// GetPrev returns the previous link.
func (link *Link[T]) GetPrev() *Link[T] {
	return link.prev
}

// GetNext returns the next link.
func (link *Link[T]) GetNext() *Link[T] {
	return link.next
}

// PopSelf removes the link from its list. Popping a detached link is a no-op.
func (link *Link[T]) PopSelf() {
	list := link.list
	if list == nil {
		return
	}
	if link.prev != nil {
		link.prev.next = link.next
	} else {
		list.head = link.next
	}
	if link.next != nil {
		link.next.prev = link.prev
	} else {
		list.tail = link.prev
	}
	list.size--
	link.list, link.prev, link.next = nil, nil, nil
}
