// Package session keeps web login sessions in a bbolt file.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	bucketSessions = "sessions" // key: session ID -> Session JSON

	// CookieName is the name of the session cookie
	CookieName = "labelr_session"
)

// Session is the server-side state of one browser session
type Session struct {
	ID string `json:"id"`

	// State is the pending OAuth state parameter
	State string `json:"state,omitempty"`

	// Next is where to redirect after a successful login
	Next string `json:"next,omitempty"`

	AccessToken string `json:"access_token,omitempty"`
	Login       string `json:"login,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticated reports whether the session holds a user token
func (s *Session) Authenticated() bool {
	return s != nil && s.AccessToken != ""
}

// Store persists sessions in bbolt
type Store struct {
	db     *bbolt.DB
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// Open opens or creates the session database at path
func Open(path string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSessions))
		return err
	}); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

// WithSecureCookies marks issued cookies Secure
func (s *Store) WithSecureCookies(secure bool) *Store {
	s.secure = secure
	return s
}

// WithClock replaces the time source
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Close closes the session database
func (s *Store) Close() error {
	return s.db.Close()
}

// New returns a fresh unsaved session
func (s *Store) New() *Session {
	now := s.now()

	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
}

// Get returns the session with id, or nil if it does not exist or expired
func (s *Store) Get(id string) (*Session, error) {
	var sess *Session

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketSessions)).Get([]byte(id))
		if data == nil {
			return nil
		}

		sess = &Session{}

		return json.Unmarshal(data, sess)
	})
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	if sess != nil && !s.now().Before(sess.ExpiresAt) {
		if err := s.Delete(id); err != nil {
			return nil, err
		}

		return nil, nil
	}

	return sess, nil
}

// Save writes sess and extends its expiry
func (s *Store) Save(sess *Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session id is required")
	}

	sess.ExpiresAt = s.now().Add(s.ttl)

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Put([]byte(sess.ID), data)
	})
}

// Delete removes the session with id
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Delete([]byte(id))
	})
}

// Purge removes every expired session and returns how many were removed
func (s *Store) Purge() (int, error) {
	now := s.now()
	removed := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions))

		var expired [][]byte

		if err := b.ForEach(func(k, v []byte) error {
			var sess Session
			if err := json.Unmarshal(v, &sess); err != nil || !now.Before(sess.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}

			return nil
		}); err != nil {
			return err
		}

		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		removed = len(expired)

		return nil
	})

	return removed, err
}

// Load returns the session referenced by the request cookie, or a new
// unsaved one when the cookie is missing or stale
func (s *Store) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return s.New(), nil
	}

	sess, err := s.Get(c.Value)
	if err != nil {
		return nil, err
	}

	if sess == nil {
		return s.New(), nil
	}

	return sess, nil
}

// Write saves sess and sets its cookie on the response
func (s *Store) Write(w http.ResponseWriter, sess *Session) error {
	if err := s.Save(sess); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// Clear deletes the request's session and expires its cookie
func (s *Store) Clear(w http.ResponseWriter, r *http.Request) error {
	if c, err := r.Cookie(CookieName); err == nil {
		if err := s.Delete(c.Value); err != nil {
			return err
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}
