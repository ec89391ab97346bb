package cache

// lruNode is an element of lruList.
type lruNode[K any] struct {
	key        K
	prev, next *lruNode[K]
}

// lruList is a doubly linked list of keys ordered by recency.
// The front holds the most recently used key. It is not safe for concurrent
// use; each shard guards its own list.
type lruList[K any] struct {
	root lruNode[K] // sentinel: root.next is the front, root.prev the back
	len  int
}

func newLRUList[K any]() *lruList[K] {
	l := &lruList[K]{}
	l.root.next = &l.root
	l.root.prev = &l.root
	return l
}

// Len returns the number of keys.
func (l *lruList[K]) Len() int { return l.len }

// PushFront inserts key as the most recently used.
func (l *lruList[K]) PushFront(key K) *lruNode[K] {
	n := &lruNode[K]{key: key}
	l.insertAfter(n, &l.root)
	l.len++
	return n
}

func (l *lruList[K]) insertAfter(n, at *lruNode[K]) {
	n.prev = at
	n.next = at.next
	at.next.prev = n
	at.next = n
}

func (l *lruList[K]) unlink(n *lruNode[K]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
}

// MoveToFront marks n as the most recently used. A nil node is ignored.
func (l *lruList[K]) MoveToFront(n *lruNode[K]) {
	if n == nil || n.prev == nil || l.root.next == n {
		return
	}
	l.unlink(n)
	l.insertAfter(n, &l.root)
}

// Remove drops n from the list. A nil or detached node is ignored.
func (l *lruList[K]) Remove(n *lruNode[K]) {
	if n == nil || n.prev == nil {
		return
	}
	l.unlink(n)
	l.len--
}

// RemoveOldest drops and returns the least recently used key.
func (l *lruList[K]) RemoveOldest() (K, bool) {
	if l.len == 0 {
		var zero K
		return zero, false
	}
	n := l.root.prev
	l.Remove(n)
	return n.key, true
}
