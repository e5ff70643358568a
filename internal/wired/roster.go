package wired

import "sync"

type User struct {
	ID     uint32
	Nick   string
	Login  string
	Status string
	Idle   bool
}

// Roster: пользователи публичного чата по id.
type Roster struct {
	mu    sync.RWMutex
	users map[uint32]User
}

func NewRoster() *Roster {
	return &Roster{users: make(map[uint32]User)}
}

// Update вливает поля сообщения в запись пользователя; отсутствующие поля
// не трогаются.
func (r *Roster) Update(m *Message) User {
	id := m.Uint32(FieldUserID)
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.users[id]
	u.ID = id
	if m.Has(FieldUserNick) {
		u.Nick = m.String(FieldUserNick)
	}
	if m.Has(FieldUserLogin) {
		u.Login = m.String(FieldUserLogin)
	}
	if m.Has(FieldUserStatus) {
		u.Status = m.String(FieldUserStatus)
	}
	if m.Has(FieldUserIdle) {
		u.Idle = m.Bool(FieldUserIdle)
	}
	r.users[id] = u
	return u
}

func (r *Roster) Remove(id uint32) {
	r.mu.Lock()
	delete(r.users, id)
	r.mu.Unlock()
}

func (r *Roster) User(id uint32) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

func (r *Roster) Reset() {
	r.mu.Lock()
	r.users = make(map[uint32]User)
	r.mu.Unlock()
}
