// Package auth holds the allowlist of Telegram users who may talk to the bot.
// An empty allowlist admits everyone.
package auth

import (
	"sort"
	"sync"
)

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

type Repository interface {
	LoadAll() ([]User, error)
	Upsert(user User) error
	Remove(userID int64) error
}

type Allowlist struct {
	repo Repository

	mu    sync.RWMutex
	users map[int64]User
}

// New merges the users persisted in repo (may be nil) with the initial IDs
// from the environment.
func New(repo Repository, initial []int64) (*Allowlist, error) {
	a := &Allowlist{repo: repo, users: make(map[int64]User)}
	if repo != nil {
		users, err := repo.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			a.users[u.ID] = u
		}
	}
	for _, id := range initial {
		if _, ok := a.users[id]; !ok {
			a.users[id] = User{ID: id}
		}
	}
	return a, nil
}

func (a *Allowlist) Open() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.users) == 0
}

func (a *Allowlist) IsAllowed(userID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.users) == 0 {
		return true
	}
	_, ok := a.users[userID]
	return ok
}

func (a *Allowlist) Upsert(user User) error {
	a.mu.Lock()
	a.users[user.ID] = user
	a.mu.Unlock()
	if a.repo != nil {
		return a.repo.Upsert(user)
	}
	return nil
}

func (a *Allowlist) Remove(userID int64) error {
	a.mu.Lock()
	delete(a.users, userID)
	a.mu.Unlock()
	if a.repo != nil {
		return a.repo.Remove(userID)
	}
	return nil
}

// List returns the users ordered by ID.
func (a *Allowlist) List() []User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]User, 0, len(a.users))
	for _, u := range a.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
