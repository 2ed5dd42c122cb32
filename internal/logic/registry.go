package logic

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/presence-node/internal/store"
)

// RegistryNamespace is the store namespace holding the known-device registry.
const RegistryNamespace = "known_devices"

// Registry is the bounded set of known devices. Entries keep insertion order;
// removal compacts the backing slice so indices stay dense.
type Registry struct {
	entries          []KnownDevice
	capacity         int
	defaultThreshold int
	store            store.Store
}

// NewRegistry creates an empty registry. A nil store disables persistence.
func NewRegistry(capacity, defaultThreshold int, st store.Store) *Registry {
	return &Registry{
		entries:          make([]KnownDevice, 0, capacity),
		capacity:         capacity,
		defaultThreshold: defaultThreshold,
		store:            st,
	}
}

// Add inserts address or, if it is already known, updates its comment and
// threshold in place. It returns the entry's index. ErrRegistryFull is only
// returned for a new address when the registry is at capacity.
func (r *Registry) Add(address, comment string, threshold int) (int, error) {
	comment = truncateComment(comment)
	if i := r.index(address); i >= 0 {
		r.entries[i].Comment = comment
		r.entries[i].RSSIThreshold = threshold
		r.persist()
		return i, nil
	}
	if len(r.entries) >= r.capacity {
		return -1, fmt.Errorf("add %s: %w", address, ErrRegistryFull)
	}
	r.entries = append(r.entries, KnownDevice{
		Address:       address,
		Comment:       comment,
		RSSIThreshold: threshold,
	})
	r.persist()
	return len(r.entries) - 1, nil
}

// Remove deletes address, shifting later entries left. It reports whether the
// address was present.
func (r *Registry) Remove(address string) bool {
	i := r.index(address)
	if i < 0 {
		return false
	}
	copy(r.entries[i:], r.entries[i+1:])
	r.entries[len(r.entries)-1] = KnownDevice{}
	r.entries = r.entries[:len(r.entries)-1]
	r.persist()
	return true
}

// Contains reports whether address is known. Exact string match.
func (r *Registry) Contains(address string) bool {
	return r.index(address) >= 0
}

// Lookup returns the entry for address and its index.
func (r *Registry) Lookup(address string) (KnownDevice, int, bool) {
	i := r.index(address)
	if i < 0 {
		return KnownDevice{}, -1, false
	}
	return r.entries[i], i, true
}

// Entries returns a copy of the registry in registry order.
func (r *Registry) Entries() []KnownDevice {
	out := make([]KnownDevice, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of known devices.
func (r *Registry) Len() int { return len(r.entries) }

// Cap returns the registry capacity.
func (r *Registry) Cap() int { return r.capacity }

func (r *Registry) index(address string) int {
	for i := range r.entries {
		if r.entries[i].Address == address {
			return i
		}
	}
	return -1
}

// Load replaces the in-memory registry with the persisted one. The stored
// count is clamped to capacity and entries with an empty address are skipped.
func (r *Registry) Load() error {
	if r.store == nil {
		return nil
	}
	sess, err := r.store.Open(RegistryNamespace, true)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer sess.Close()

	count := sess.GetInt("count", 0)
	if count > r.capacity {
		log.WithFields(log.Fields{"component": "registry", "count": count, "capacity": r.capacity}).
			Warn("stored count exceeds capacity, clamping")
		count = r.capacity
	}

	r.entries = r.entries[:0]
	for i := 0; i < count; i++ {
		idx := strconv.Itoa(i)
		mac := sess.GetString("mac"+idx, "")
		if mac == "" {
			continue
		}
		r.entries = append(r.entries, KnownDevice{
			Address:       mac,
			Comment:       truncateComment(sess.GetString("comment"+idx, "")),
			RSSIThreshold: sess.GetInt("threshold"+idx, r.defaultThreshold),
		})
	}
	return nil
}

// Save writes the whole registry, replacing whatever the namespace held.
func (r *Registry) Save() error {
	if r.store == nil {
		return nil
	}
	sess, err := r.store.Open(RegistryNamespace, false)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	if err := r.write(sess); err != nil {
		if aerr := sess.Abort(); aerr != nil {
			log.WithField("component", "registry").Warnf("abort failed: %v", aerr)
		}
		return err
	}
	return sess.Close()
}

func (r *Registry) write(sess store.Session) error {
	if err := sess.Clear(); err != nil {
		return fmt.Errorf("clear registry: %w", err)
	}
	if err := sess.PutInt("count", len(r.entries)); err != nil {
		return err
	}
	for i, e := range r.entries {
		idx := strconv.Itoa(i)
		if err := sess.PutString("mac"+idx, e.Address); err != nil {
			return err
		}
		if err := sess.PutString("comment"+idx, e.Comment); err != nil {
			return err
		}
		if err := sess.PutInt("threshold"+idx, e.RSSIThreshold); err != nil {
			return err
		}
	}
	return nil
}

// persist saves after a mutation. The in-memory state is authoritative, so a
// failed save is logged and not rolled back.
func (r *Registry) persist() {
	if err := r.Save(); err != nil {
		log.WithField("component", "registry").Errorf("save failed: %v", err)
	}
}

// truncateComment bounds a comment to MaxCommentLength-1 bytes without
// splitting a rune.
func truncateComment(s string) string {
	max := MaxCommentLength - 1
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 {
		if r, size := utf8.DecodeLastRuneInString(s); r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}
