// Package floorset is an ordered set of floor numbers answering strict
// "next above" and "next below" queries. It is not safe for concurrent use;
// owners guard it with their own lock.
package floorset

import "github.com/google/btree"

const degree = 8

type Set struct {
	tree *btree.BTreeG[int]
}

func New(floors ...int) *Set {
	s := &Set{tree: btree.NewOrderedG[int](degree)}
	for _, f := range floors {
		s.Add(f)
	}
	return s
}

// Add inserts floor and reports whether it was new.
func (s *Set) Add(floor int) bool {
	_, replaced := s.tree.ReplaceOrInsert(floor)
	return !replaced
}

// Remove deletes floor and reports whether it was present.
func (s *Set) Remove(floor int) bool {
	_, found := s.tree.Delete(floor)
	return found
}

func (s *Set) Has(floor int) bool { return s.tree.Has(floor) }

func (s *Set) Len() int { return s.tree.Len() }

func (s *Set) Empty() bool { return s.tree.Len() == 0 }

func (s *Set) Min() (int, bool) { return s.tree.Min() }

func (s *Set) Max() (int, bool) { return s.tree.Max() }

// Above returns the smallest floor strictly greater than floor.
func (s *Set) Above(floor int) (next int, ok bool) {
	s.tree.AscendGreaterOrEqual(floor+1, func(f int) bool {
		next, ok = f, true
		return false
	})
	return next, ok
}

// Below returns the largest floor strictly smaller than floor.
func (s *Set) Below(floor int) (next int, ok bool) {
	s.tree.DescendLessOrEqual(floor-1, func(f int) bool {
		next, ok = f, true
		return false
	})
	return next, ok
}

// Floors returns the members in ascending order.
func (s *Set) Floors() []int {
	floors := make([]int, 0, s.tree.Len())
	s.tree.Ascend(func(f int) bool {
		floors = append(floors, f)
		return true
	})
	return floors
}
