package sessionstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/jjeffery/errors"

	"github.com/jjeffery/states/statestore"
)

// defaultMaxAgeSeconds is used when the session options do not specify
// a positive max age.
const defaultMaxAgeSeconds = 86400 * 30

var errEmptySessionID = errors.New("empty session id")

// randRead reads random bytes, and can be replaced during testing
var randRead = rand.Read

type sessionID [16]byte

func newSessionID() (sessionID, error) {
	var sid sessionID
	if _, err := randRead(sid[:]); err != nil {
		return sid, err
	}
	return sid, nil
}

func (sid sessionID) String() string {
	return hex.EncodeToString(sid[:])
}

func parseSessionID(str string) (sessionID, error) {
	var sid sessionID
	if str == "" {
		// empty session IDs are expected, so detect and error quickly
		return sid, errEmptySessionID
	}
	if len(str) > hex.EncodedLen(len(sid)) {
		// hex.Decode would overrun sid
		return sid, fmt.Errorf("sessionID too large len=%d", len(str)/2)
	}
	n, err := hex.Decode(sid[:], []byte(str))
	if err != nil {
		return sid, err
	}
	if n < len(sid) {
		return sid, fmt.Errorf("sessionID too small len=%d", n)
	}
	return sid, nil
}

type sessionStore struct {
	namespace string
	options   sessions.Options
	states    *statestore.Store
	codecs    []securecookie.Codec
}

// New creates a store suitable for persisting Gorilla sessions through
// states. The options describe the session cookie; secret is the keying
// material from which the cookie hash and encryption keys are derived.
// If multiple web applications persist to the same table, each should
// use a different namespace so their records are kept separate.
func New(states *statestore.Store, options sessions.Options, namespace string, secret []byte) sessions.Store {
	return &sessionStore{
		namespace: namespace,
		options:   options,
		states:    states,
		codecs:    newCodecs(secret),
	}
}

// Get returns a cached session.
func (ss *sessionStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(ss, name)
}

// New creates and returns a new session.
//
// Note that New should never return a nil session, even in the case of
// an error if using the Registry infrastructure to cache the session.
func (ss *sessionStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(ss, name)
	// make a copy
	options := ss.options
	session.Options = &options
	session.IsNew = true
	c, err := r.Cookie(name)
	if err == http.ErrNoCookie {
		return session, nil
	}
	if err != nil {
		return session, errors.Wrap(err, "cannot obtain cookie")
	}
	var sid sessionID
	if err := securecookie.DecodeMulti(name, c.Value, &sid, ss.codecs...); err != nil {
		return session, errors.Wrap(err, "cannot decode cookie")
	}
	session.ID = sid.String()
	fields, err := ss.states.Get(r.Context(), ss.recordKey(session))
	if err == nil && fields != nil {
		session.IsNew = false // session data exists, so not new
		for k, v := range fields {
			session.Values[k] = v
		}
	}
	return session, err
}

// Save persists the session to the backing state store.
func (ss *sessionStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	// Marked for deletion.
	if session.Options.MaxAge < 0 {
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		if session.ID != "" {
			if err := ss.states.Remove(r.Context(), ss.recordKey(session)); err != nil {
				return err
			}
		}
		return nil
	}

	sid, err := parseSessionID(session.ID)
	if err != nil {
		sid, err = newSessionID()
		if err != nil {
			// this will only happen if the crypto RNG fails
			return errors.Wrap(err, "cannot generate random session id")
		}
		session.ID = sid.String()
	}

	expireSeconds := session.Options.MaxAge
	if expireSeconds <= 0 {
		expireSeconds = defaultMaxAgeSeconds
	}
	fields := make(map[string]interface{}, len(session.Values))
	for k, v := range session.Values {
		if ks, ok := k.(string); ok {
			fields[ks] = v
		}
	}
	expiresIn := time.Duration(expireSeconds) * time.Second
	if err := ss.states.Set(r.Context(), ss.recordKey(session), fields, expiresIn); err != nil {
		return err
	}
	encoded, err := securecookie.EncodeMulti(session.Name(), sid, ss.codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// recordKey returns the key for saving a session record to persistent
// storage.
func (ss *sessionStore) recordKey(session *sessions.Session) string {
	if ss.namespace == "" {
		return session.ID
	}
	return ss.namespace + "-" + session.ID
}
