package history

// DefaultCapacity bounds the stack at 100 entries.
const DefaultCapacity = 100

// Stack is a bounded LIFO of commit ids kept for undo-style tooling.
// When full, a push drops the oldest entry. The engine rebuilds it on
// load by replaying history newest-first, which leaves the root commit
// on top after a full replay; that ordering is deliberate and pinned by
// tests.
type Stack struct {
	ids []string
	cap int
}

func New(capacity int) *Stack {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stack{cap: capacity}
}

func (s *Stack) Push(id string) {
	if len(s.ids) == s.cap {
		s.ids = s.ids[1:]
	}
	s.ids = append(s.ids, id)
}

// Pop removes and returns the top id, or "" when empty.
func (s *Stack) Pop() string {
	if len(s.ids) == 0 {
		return ""
	}
	id := s.ids[len(s.ids)-1]
	s.ids = s.ids[:len(s.ids)-1]
	return id
}

// Peek returns the top id without removing it, or "" when empty.
func (s *Stack) Peek() string {
	if len(s.ids) == 0 {
		return ""
	}
	return s.ids[len(s.ids)-1]
}

func (s *Stack) Len() int {
	return len(s.ids)
}
