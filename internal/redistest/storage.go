package redistest

import (
	"errors"
	"sort"
	"strconv"
	"time"
)

type dataType byte

const (
	typeString dataType = iota + 1
	typeSet
	typeHash
)

func (t dataType) String() string {
	switch t {
	case typeString:
		return "string"
	case typeSet:
		return "set"
	case typeHash:
		return "hash"
	}
	return "none"
}

type expiryStatus int

const (
	// expNotFound means that the key does not exist
	expNotFound expiryStatus = -2
	// expNoTimeout means that the key exists, but it does not have a TTL
	expNoTimeout expiryStatus = -1
	// expActive means that the key has an active lifetime
	expActive expiryStatus = 1
)

var (
	errWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
	errNotInt    = errors.New("ERR value is not an integer or out of range")
)

// setOptions mirrors the SET flags
type setOptions struct {
	TTL     time.Duration // key lifetime
	KeepTTL bool          // retain the existing TTL (ignore TTL field)
	NX      bool          // only set if the key does not exist
	XX      bool          // only set if the key already exists
}

// entity is a generic container for a value
type entity struct {
	kind     dataType
	str      string
	set      map[string]struct{}
	hash     map[string]string
	expireAt int64 // unix nanoseconds, 0 means no TTL
}

// keyspace is one logical database. It is not safe for concurrent use,
// the engine serializes every access
type keyspace struct {
	data map[string]*entity
	now  func() time.Time
}

func newKeyspace(now func() time.Time) *keyspace {
	return &keyspace{
		data: make(map[string]*entity),
		now:  now,
	}
}

// lookup returns the live entity for key, dropping it when expired
func (k *keyspace) lookup(key string) (*entity, bool) {
	e, ok := k.data[key]
	if !ok {
		return nil, false
	}
	if e.expireAt != 0 && k.now().UnixNano() > e.expireAt {
		delete(k.data, key)
		return nil, false
	}
	return e, true
}

// lookupKind is lookup that fails with WRONGTYPE for other kinds
func (k *keyspace) lookupKind(key string, kind dataType) (*entity, bool, error) {
	e, ok := k.lookup(key)
	if !ok {
		return nil, false, nil
	}
	if e.kind != kind {
		return nil, false, errWrongType
	}
	return e, true, nil
}

// get returns the string value and true if the key is found
func (k *keyspace) get(key string) (string, bool, error) {
	e, ok, err := k.lookupKind(key, typeString)
	if err != nil || !ok {
		return "", false, err
	}
	return e.str, true, nil
}

// set writes the value based on the options. Returns true if recording has been performed
func (k *keyspace) set(key, value string, options setOptions) bool {
	old, exists := k.lookup(key)

	if options.NX && exists {
		return false
	}
	if options.XX && !exists {
		return false
	}

	e := &entity{kind: typeString, str: value}
	switch {
	case options.KeepTTL:
		// KEEPTTL on a fresh key behaves like no TTL
		if exists {
			e.expireAt = old.expireAt
		}
	case options.TTL > 0:
		e.expireAt = k.now().Add(options.TTL).UnixNano()
	}
	k.data[key] = e

	return true
}

func (k *keyspace) incrBy(key string, delta int64) (int64, error) {
	e, ok, err := k.lookupKind(key, typeString)
	if err != nil {
		return 0, err
	}

	var n int64
	if ok {
		if n, err = strconv.ParseInt(e.str, 10, 64); err != nil {
			return 0, errNotInt
		}
	} else {
		e = &entity{kind: typeString}
		k.data[key] = e
	}

	n += delta
	e.str = strconv.FormatInt(n, 10)
	return n, nil
}

// delete deletes the key. Returns true if the key existed
func (k *keyspace) delete(key string) bool {
	if _, ok := k.lookup(key); !ok {
		return false
	}
	delete(k.data, key)
	return true
}

func (k *keyspace) exists(key string) bool {
	_, ok := k.lookup(key)
	return ok
}

// expire sets a TTL on an existing key. A non-positive TTL deletes it
func (k *keyspace) expire(key string, ttl time.Duration) bool {
	e, ok := k.lookup(key)
	if !ok {
		return false
	}
	if ttl <= 0 {
		delete(k.data, key)
		return true
	}
	e.expireAt = k.now().Add(ttl).UnixNano()
	return true
}

// expiry returns the remaining lifetime and status
func (k *keyspace) expiry(key string) (time.Duration, expiryStatus) {
	e, ok := k.lookup(key)
	if !ok {
		return 0, expNotFound
	}
	if e.expireAt == 0 {
		return 0, expNoTimeout
	}
	return time.Duration(e.expireAt - k.now().UnixNano()), expActive
}

// persist removes the expiration date of the key
func (k *keyspace) persist(key string) bool {
	e, ok := k.lookup(key)
	if !ok || e.expireAt == 0 {
		return false
	}
	e.expireAt = 0
	return true
}

func (k *keyspace) typeOf(key string) dataType {
	e, ok := k.lookup(key)
	if !ok {
		return 0
	}
	return e.kind
}

func (k *keyspace) flush() {
	clear(k.data)
}

func (k *keyspace) sAdd(key string, members []string) (int64, error) {
	e, ok, err := k.lookupKind(key, typeSet)
	if err != nil {
		return 0, err
	}
	if !ok {
		e = &entity{kind: typeSet, set: make(map[string]struct{})}
		k.data[key] = e
	}

	var added int64
	for _, m := range members {
		if _, dup := e.set[m]; !dup {
			e.set[m] = struct{}{}
			added++
		}
	}
	return added, nil
}

// sRem removes members and deletes the key once the set is empty
func (k *keyspace) sRem(key string, members []string) (int64, error) {
	e, ok, err := k.lookupKind(key, typeSet)
	if err != nil || !ok {
		return 0, err
	}

	var removed int64
	for _, m := range members {
		if _, found := e.set[m]; found {
			delete(e.set, m)
			removed++
		}
	}
	if len(e.set) == 0 {
		delete(k.data, key)
	}
	return removed, nil
}

func (k *keyspace) sIsMember(key, member string) (bool, error) {
	e, ok, err := k.lookupKind(key, typeSet)
	if err != nil || !ok {
		return false, err
	}
	_, found := e.set[member]
	return found, nil
}

func (k *keyspace) sMembers(key string) ([]string, error) {
	e, ok, err := k.lookupKind(key, typeSet)
	if err != nil || !ok {
		return nil, err
	}
	out := make([]string, 0, len(e.set))
	for m := range e.set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// hSet sets fields to their values. Returns the number of new fields
func (k *keyspace) hSet(key string, pairs []string) (int64, error) {
	e, ok, err := k.lookupKind(key, typeHash)
	if err != nil {
		return 0, err
	}
	if !ok {
		e = &entity{kind: typeHash, hash: make(map[string]string)}
		k.data[key] = e
	}

	var added int64
	for i := 0; i+1 < len(pairs); i += 2 {
		if _, found := e.hash[pairs[i]]; !found {
			added++
		}
		e.hash[pairs[i]] = pairs[i+1]
	}
	return added, nil
}

func (k *keyspace) hGet(key, field string) (string, bool, error) {
	e, ok, err := k.lookupKind(key, typeHash)
	if err != nil || !ok {
		return "", false, err
	}
	v, found := e.hash[field]
	return v, found, nil
}

// hGetAll returns field/value pairs ordered by field
func (k *keyspace) hGetAll(key string) ([]string, error) {
	e, ok, err := k.lookupKind(key, typeHash)
	if err != nil || !ok {
		return nil, err
	}
	fields := make([]string, 0, len(e.hash))
	for f := range e.hash {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	out := make([]string, 0, 2*len(fields))
	for _, f := range fields {
		out = append(out, f, e.hash[f])
	}
	return out, nil
}
