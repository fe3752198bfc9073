package list

import (
	"strings"
	"testing"

	"ehtdb/pkg/repl"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values[T any](list *List[T]) []T {
	ret := make([]T, 0, list.Len())
	for curr := list.PeekHead(); curr != nil; curr = curr.GetNext() {
		ret = append(ret, curr.GetValue())
	}
	return ret
}

func TestList(t *testing.T) {
	t.Run("EmptyList", testEmptyList)
	t.Run("SingletonList", testSingletonList)
	t.Run("PushHead", testPushHead)
	t.Run("PushTail", testPushTail)
	t.Run("Find", testFind)
	t.Run("MapPopping", testMapPopping)
	t.Run("PopSelf", testPopSelf)
	t.Run("PopDetached", testPopDetached)
}

func testEmptyList(t *testing.T) {
	list := NewList[int]()
	assert.Nil(t, list.PeekHead())
	assert.Nil(t, list.PeekTail())
	assert.Equal(t, 0, list.Len())
}

func testSingletonList(t *testing.T) {
	list := NewList[int]()
	link := list.PushHead(5)
	assert.Same(t, link, list.PeekHead())
	assert.Same(t, link, list.PeekTail())
	assert.Same(t, list, link.GetList())
	assert.Nil(t, link.GetPrev())
	assert.Nil(t, link.GetNext())
}

func testPushHead(t *testing.T) {
	list := NewList[int]()
	for i := 0; i < 4; i++ {
		list.PushHead(i)
	}
	assert.Equal(t, []int{3, 2, 1, 0}, values(list))
	assert.Equal(t, 4, list.Len())
}

func testPushTail(t *testing.T) {
	list := NewList[int]()
	for i := 0; i < 4; i++ {
		list.PushTail(i)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, values(list))
	assert.Equal(t, 3, list.PeekTail().GetValue())
}

func testFind(t *testing.T) {
	list := NewList[string]()
	assert.Nil(t, list.Find(func(*Link[string]) bool { return true }))
	list.PushTail("a")
	b := list.PushTail("b")
	assert.Same(t, b, list.Find(func(l *Link[string]) bool { return l.GetValue() == "b" }))
	assert.Nil(t, list.Find(func(l *Link[string]) bool { return l.GetValue() == "c" }))
}

// Map must survive the callback unlinking the link it was handed.
func testMapPopping(t *testing.T) {
	list := NewList[int]()
	for i := 0; i < 6; i++ {
		list.PushTail(i)
	}
	list.Map(func(l *Link[int]) {
		if l.GetValue()%2 == 0 {
			l.PopSelf()
		} else {
			l.SetValue(l.GetValue() * 10)
		}
	})
	assert.Equal(t, []int{10, 30, 50}, values(list))
	assert.Equal(t, 3, list.Len())
}

func testPopSelf(t *testing.T) {
	list := NewList[int]()
	head := list.PushTail(1)
	middle := list.PushTail(2)
	tail := list.PushTail(3)

	middle.PopSelf()
	assert.Equal(t, []int{1, 3}, values(list))
	assert.Same(t, tail, head.GetNext())
	assert.Same(t, head, tail.GetPrev())

	head.PopSelf()
	assert.Same(t, tail, list.PeekHead())
	tail.PopSelf()
	assert.Nil(t, list.PeekHead())
	assert.Nil(t, list.PeekTail())
	assert.Equal(t, 0, list.Len())
}

func testPopDetached(t *testing.T) {
	list := NewList[int]()
	link := list.PushTail(1)
	list.PushTail(2)
	link.PopSelf()
	link.PopSelf()
	assert.Equal(t, 1, list.Len())
	assert.Equal(t, []int{2}, values(list))
}

func runListRepl(t *testing.T, lines ...string) string {
	t.Helper()
	output := new(strings.Builder)
	ListRepl(NewList[string]()).Run(uuid.New(), "", strings.NewReader(strings.Join(lines, "\n")+"\n"), output)
	_, out, found := strings.Cut(output.String(), "\n")
	require.True(t, found)
	return out
}

func TestListRepl(t *testing.T) {
	t.Run("Help", func(t *testing.T) {
		out := runListRepl(t, repl.TriggerHelpMetacommand)
		for _, help := range []string{HelpListPrint, HelpListPushHead, HelpListPushTail, HelpListRemove, HelpListContains} {
			assert.Contains(t, out, help)
		}
	})
	t.Run("PushAndPrint", func(t *testing.T) {
		out := runListRepl(t, "list_push_head 1", "list_push_tail 2", "list_push_head 0", "list_print")
		assert.Equal(t, "0\n1\n2\n\n", out)
	})
	t.Run("BadArgs", func(t *testing.T) {
		out := runListRepl(t, "list_push_head")
		assert.Equal(t, repl.ErrorPrependStr+ErrListPushHeadInvalidArgs.Error()+"\n\n", out)
	})
	t.Run("RemoveAndContains", func(t *testing.T) {
		out := runListRepl(t, "list_push_tail x", "list_contains x", "list_remove x", "list_contains x", "list_remove x")
		want := OutputListContainsFound + "\n" +
			OutputListContainsNotFound + "\n" +
			repl.ErrorPrependStr + ErrListRemoveValueNotFound.Error() + "\n\n"
		assert.Equal(t, want, out)
	})
}
