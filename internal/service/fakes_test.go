package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/medev213/darksmart/internal/domain"
	"github.com/medev213/darksmart/internal/repository"
)

func userWith(email, passwordHash string) domain.User {
	return domain.User{Email: email, PasswordHash: passwordHash}
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]domain.User)}
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return domain.User{}, repository.ErrNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = "user-" + user.Email
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	byUser map[string]domain.OAuthToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{byUser: make(map[string]domain.OAuthToken)}
}

func (r *fakeTokenRepo) Upsert(_ context.Context, token domain.OAuthToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUser[token.UserID] = token
	return nil
}

func (r *fakeTokenRepo) GetByRefreshToken(_ context.Context, refreshToken string) (domain.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byUser {
		if t.RefreshToken == refreshToken && refreshToken != "" && t.ExpiresAt.After(time.Now()) {
			return t, nil
		}
	}
	return domain.OAuthToken{}, repository.ErrNotFound
}

func (r *fakeTokenRepo) SetAccessToken(_ context.Context, id int64, accessToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, t := range r.byUser {
		if t.ID == id {
			t.AccessToken = accessToken
			r.byUser[userID] = t
		}
	}
	return nil
}

func (r *fakeTokenRepo) ClearByValue(_ context.Context, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if value == "" {
		return nil
	}
	for userID, t := range r.byUser {
		if t.AccessToken == value || t.RefreshToken == value {
			t.AccessToken = ""
			t.RefreshToken = ""
			r.byUser[userID] = t
		}
	}
	return nil
}

func (r *fakeTokenRepo) ClearByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byUser[userID]; ok {
		t.AccessToken = ""
		t.RefreshToken = ""
		r.byUser[userID] = t
	}
	return nil
}

type fakeCodeRepo struct {
	mu    sync.Mutex
	codes map[string]domain.AuthCode
}

func newFakeCodeRepo() *fakeCodeRepo {
	return &fakeCodeRepo{codes: make(map[string]domain.AuthCode)}
}

func (r *fakeCodeRepo) Create(_ context.Context, code domain.AuthCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[code.Code] = code
	return nil
}

// Consume mirrors the conditional-update semantics of the Postgres
// implementation: one winner, everyone else sees ErrCodeConsumed or
// ErrNotFound.
func (r *fakeCodeRepo) Consume(_ context.Context, code string, now time.Time) (domain.AuthCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[code]
	if !ok {
		return domain.AuthCode{}, repository.ErrNotFound
	}
	if c.ConsumedAt != nil || !now.Before(c.ExpiresAt) {
		return domain.AuthCode{}, repository.ErrCodeConsumed
	}
	consumed := now
	c.ConsumedAt = &consumed
	r.codes[code] = c
	return c, nil
}

type fakeDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]domain.Device
	failIDs map[string]bool
}

func newFakeDeviceRepo(devices ...domain.Device) *fakeDeviceRepo {
	r := &fakeDeviceRepo{
		devices: make(map[string]domain.Device),
		failIDs: make(map[string]bool),
	}
	for _, d := range devices {
		if d.Status == nil {
			d.Status = domain.DeviceStatus{}
		}
		r.devices[d.DeviceID] = d
	}
	return r
}

func (r *fakeDeviceRepo) ListByUser(_ context.Context, userID string) ([]domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Device
	for _, d := range r.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDeviceRepo) GetByIDAndUser(_ context.Context, id, userID string) (domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok || d.UserID != userID {
		return domain.Device{}, repository.ErrNotFound
	}
	return d, nil
}

func (r *fakeDeviceRepo) UpdateStatus(_ context.Context, id, userID string, status domain.DeviceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failIDs[id] {
		return context.DeadlineExceeded
	}
	d, ok := r.devices[id]
	if !ok || d.UserID != userID {
		return repository.ErrNotFound
	}
	d.Status = status
	d.LastUpdated = time.Now()
	r.devices[id] = d
	return nil
}

type recordedState struct {
	UserID   string
	DeviceID string
	State    map[string]any
}

type fakeReporter struct {
	mu           sync.Mutex
	reports      []recordedState
	deletedUsers []string
}

func (r *fakeReporter) ReportState(_ context.Context, userID, deviceID string, state map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, recordedState{UserID: userID, DeviceID: deviceID, State: state})
	return nil
}

func (r *fakeReporter) RequestSync(_ context.Context, _ string) error { return nil }

func (r *fakeReporter) DeleteAgentUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletedUsers = append(r.deletedUsers, userID)
	return nil
}

type fakeCommander struct {
	mu   sync.Mutex
	sent []recordedState
}

func (c *fakeCommander) SendState(_ context.Context, deviceID string, state map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, recordedState{DeviceID: deviceID, State: state})
	return nil
}
