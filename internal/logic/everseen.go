package logic

const everSeenBits = 256

// EverSeen approximately counts distinct addresses observed since startup.
//
// Each address is hashed into one of 256 buckets and the counter only grows
// when a bucket is set for the first time. Two addresses sharing a bucket are
// counted once, so Total undercounts once collisions occur and saturates at
// 256. It is a statistic for display and must not be used as a membership test.
type EverSeen struct {
	bits  [everSeenBits / 64]uint64
	total int
}

// Observe records address and reports whether the total increased.
func (e *EverSeen) Observe(address string) bool {
	b := everSeenBucket(address)
	word, mask := b/64, uint64(1)<<(b%64)
	if e.bits[word]&mask != 0 {
		return false
	}
	e.bits[word] |= mask
	e.total++
	return true
}

// Total returns the approximate number of distinct addresses seen.
func (e *EverSeen) Total() int { return e.total }

// Reset clears every bucket.
func (e *EverSeen) Reset() { *e = EverSeen{} }

// everSeenBucket is the polynomial string hash h = h*31 + b, reduced mod 256.
func everSeenBucket(address string) uint32 {
	var h uint32
	for i := 0; i < len(address); i++ {
		h = h*31 + uint32(address[i])
	}
	return h % everSeenBits
}
